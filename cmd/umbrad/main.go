// Umbra wallet daemon: syncs the local ledger against the remote
// indexer for every address in the configured wallet.
//
// Usage:
//
//	umbrad [--network=testnet --indexer-rpc=... --indexer-ws=...]
//	umbrad --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/umbra-network/umbra-wallet/config"
	"github.com/umbra-network/umbra-wallet/internal/engine"
	"github.com/umbra-network/umbra-wallet/internal/log"
)

const version = "0.3.0"

func main() {
	flags := config.ParseFlags()
	if flags.Help {
		config.Usage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("umbrad", version)
		os.Exit(0)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		eng.Stop()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	eng.Stop()
}
