package config

import (
	"flag"
	"fmt"
	"os"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// Indexer
	IndexerRPC string
	IndexerWS  string

	// Wallet
	WalletName string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetLogJSON bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	return parseFlags(os.Args[1:])
}

func parseFlags(args []string) *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("umbra", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Indexer
	fs.StringVar(&f.IndexerRPC, "indexer-rpc", "", "Indexer JSON-RPC endpoint URL")
	fs.StringVar(&f.IndexerWS, "indexer-ws", "", "Indexer websocket base URL")

	// Wallet
	fs.StringVar(&f.WalletName, "wallet", "", "Wallet name within the keystore")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = printUsage

	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "log-json" {
			f.SetLogJSON = true
		}
	})

	f.Args = fs.Args()
	return f
}

// Apply overlays flag values onto the config.
func (f *Flags) Apply(cfg *Config) {
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.IndexerRPC != "" {
		cfg.Indexer.RPCURL = f.IndexerRPC
	}
	if f.IndexerWS != "" {
		cfg.Indexer.WSURL = f.IndexerWS
	}
	if f.WalletName != "" {
		cfg.Wallet.Name = f.WalletName
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// Load builds the effective configuration: defaults for the selected
// network, overlaid with the config file, overlaid with flags.
func Load(f *Flags) (*Config, error) {
	network := Mainnet
	if f.Network != "" {
		network = NetworkType(f.Network)
	}
	cfg := Default(network)

	path := f.Config
	if path == "" {
		path = cfg.ConfigFile()
	}
	values, err := LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, values); err != nil {
		return nil, err
	}

	f.Apply(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Usage prints the daemon's flag help to stderr.
func Usage() {
	printUsage()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Umbra wallet daemon

Usage:
  umbrad [flags]

Flags:
  -network string      Network type: mainnet or testnet (default mainnet)
  -datadir string      Data directory path
  -config, -c string   Config file path
  -indexer-rpc string  Indexer JSON-RPC endpoint URL
  -indexer-ws string   Indexer websocket base URL
  -wallet string       Wallet name within the keystore
  -log-level string    Log level: debug, info, warn, error
  -log-file string     Log file path
  -log-json            Output logs as JSON
  -version, -v         Show version
  -help, -h            Show this help
`)
}
