// umbra-cli manages Umbra wallet files and inspects the local ledger.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/umbra-network/umbra-wallet/config"
	"github.com/umbra-network/umbra-wallet/internal/dust"
	"github.com/umbra-network/umbra-wallet/internal/indexer"
	"github.com/umbra-network/umbra-wallet/internal/ledger"
	"github.com/umbra-network/umbra-wallet/internal/manager"
	"github.com/umbra-network/umbra-wallet/internal/storage"
	"github.com/umbra-network/umbra-wallet/internal/wallet"
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	dataDir := config.DefaultDataDir()
	network := "mainnet"
	rpcURL := ""

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	cfg := config.Default(config.NetworkType(network))
	cfg.DataDir = dataDir
	if rpcURL != "" {
		cfg.Indexer.RPCURL = rpcURL
	}
	types.SetAddressHRP(cfg.AddressHRP())

	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]
	switch cmd {
	case "create":
		cmdCreate(cfg, cmdArgs)
	case "restore":
		cmdRestore(cfg, cmdArgs)
	case "wallets":
		cmdWallets(cfg)
	case "address":
		cmdAddress(cfg, cmdArgs)
	case "balance":
		cmdBalance(cfg, cmdArgs)
	case "status":
		cmdStatus(cfg)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: umbra-cli [global flags] <command> [args]

Global flags:
  --datadir <path>   Data directory (default: ~/.umbra)
  --network <net>    mainnet (default) or testnet
  --rpc <url>        Indexer JSON-RPC endpoint

Commands:
  create <name>               Create a new wallet (prints the mnemonic once)
  restore <name>              Restore a wallet from a mnemonic
  wallets                     List wallet files in the keystore
  address new <name> [label]  Derive the next receiving address
  address list <name>         List recorded addresses
  balance <name>              Show NIGHT and DUST balances per address
  status                      Check indexer health and network height
`)
}

func openKeystore(cfg *config.Config) *wallet.Keystore {
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	return ks
}

func cmdCreate(cfg *config.Config, args []string) {
	if len(args) != 1 {
		fatal("usage: umbra-cli create <name>")
	}
	name := args[0]
	ks := openKeystore(cfg)

	password := mustReadPassword("New wallet password: ")
	confirm := mustReadPassword("Confirm password: ")
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}

	w, mnemonic, err := wallet.Create(ks, name, password, wallet.DefaultParams())
	if err != nil {
		fatal("create wallet: %v", err)
	}

	fmt.Println("Wallet created. Write down the recovery phrase; it is shown only once:")
	fmt.Println()
	fmt.Println("  " + mnemonic)
	fmt.Println()

	addr, err := w.NewExternalAddress(0, "default")
	if err != nil {
		fatal("derive first address: %v", err)
	}
	fmt.Println("First receiving address:", addr.String())
}

func cmdRestore(cfg *config.Config, args []string) {
	if len(args) != 1 {
		fatal("usage: umbra-cli restore <name>")
	}
	name := args[0]
	ks := openKeystore(cfg)

	fmt.Fprint(os.Stderr, "Recovery phrase: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fatal("read mnemonic: %v", err)
	}
	mnemonic := wallet.NormalizeMnemonic(line)
	if !wallet.ValidateMnemonic(mnemonic) {
		fatal("invalid recovery phrase")
	}

	password := mustReadPassword("New wallet password: ")
	w, err := wallet.Restore(ks, name, mnemonic, "", password, wallet.DefaultParams())
	if err != nil {
		fatal("restore wallet: %v", err)
	}

	addr, err := w.NewExternalAddress(0, "default")
	if err != nil {
		fatal("derive first address: %v", err)
	}
	fmt.Println("Wallet restored. First receiving address:", addr.String())
	fmt.Println("Run umbrad to replay history from the indexer.")
}

func cmdWallets(cfg *config.Config) {
	ks := openKeystore(cfg)
	names, err := ks.List()
	if err != nil {
		fatal("list wallets: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No wallets. Create one with: umbra-cli create <name>")
		return
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func cmdAddress(cfg *config.Config, args []string) {
	if len(args) < 2 {
		fatal("usage: umbra-cli address <new|list> <name> [label]")
	}
	sub, name := args[0], args[1]
	ks := openKeystore(cfg)

	switch sub {
	case "new":
		label := "deposit"
		if len(args) > 2 {
			label = args[2]
		}
		password := mustReadPassword("Wallet password: ")
		w, err := wallet.Open(ks, name, password)
		if err != nil {
			fatal("open wallet: %v", err)
		}
		addr, err := w.NewExternalAddress(0, label)
		if err != nil {
			fatal("derive address: %v", err)
		}
		fmt.Println(addr.String())

	case "list":
		entries, err := ks.ListAccounts(name)
		if err != nil {
			fatal("list addresses: %v", err)
		}
		for _, e := range entries {
			path := wallet.Path{Change: e.Change, Index: e.Index}
			fmt.Printf("%-12s %s  %s\n", e.Label, e.Address, path)
		}

	default:
		fatal("usage: umbra-cli address <new|list> <name> [label]")
	}
}

func cmdBalance(cfg *config.Config, args []string) {
	if len(args) != 1 {
		fatal("usage: umbra-cli balance <name>")
	}
	name := args[0]
	ks := openKeystore(cfg)
	entries, err := ks.ListAccounts(name)
	if err != nil {
		fatal("list addresses: %v", err)
	}

	// Reads the ledger database directly; stop umbrad first (the
	// database is single-process).
	db, err := storage.NewBadger(cfg.LedgerDir())
	if err != nil {
		fatal("open ledger db (is umbrad running?): %v", err)
	}
	defer db.Close()

	params := dust.Params{
		NightDustRatio:    cfg.Dust.NightDustRatio,
		GenerationRateNum: cfg.Dust.GenerationRateNum,
		GenerationRateDen: cfg.Dust.GenerationRateDen,
	}
	mgr := manager.New(ledger.NewStore(db), params, zerolog.Nop())

	totalNight, totalDust := new(uint256.Int), new(uint256.Int)
	for _, e := range entries {
		night, err := mgr.Balance(e.Address, types.KindNight)
		if err != nil {
			fatal("balance: %v", err)
		}
		dustBal, err := mgr.Balance(e.Address, types.KindDust)
		if err != nil {
			fatal("balance: %v", err)
		}
		fmt.Printf("%-12s %s  NIGHT %s  DUST %s\n", e.Label, e.Address, night, dustBal)
		totalNight.Add(totalNight, night)
		totalDust.Add(totalDust, dustBal)
	}
	fmt.Printf("total: NIGHT %s  DUST %s\n", totalNight, totalDust)
}

func cmdStatus(cfg *config.Config) {
	client := indexer.New(cfg.Indexer.RPCURL, cfg.Indexer.WSURL, cfg.Indexer.Timeout, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		fatal("indexer unhealthy: %v", err)
	}
	height, err := client.NetworkHeight(ctx)
	if err != nil {
		fatal("network height: %v", err)
	}
	fmt.Println("indexer:", cfg.Indexer.RPCURL)
	fmt.Println("status:  healthy")
	fmt.Println("height: ", height)
}

func mustReadPassword(prompt string) []byte {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		fatal("read password: %v", err)
	}
	return password
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
