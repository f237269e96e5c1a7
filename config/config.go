// Package config handles wallet daemon configuration.
//
// Settings come from three layers, later overriding earlier:
// built-in defaults, the config file, and command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds the wallet daemon's runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Remote indexer
	Indexer IndexerConfig

	// Sync behavior
	Sync SyncConfig

	// DUST generation parameters (network-defined; overridable for
	// private test networks)
	Dust DustConfig

	// Wallet keystore
	Wallet WalletConfig

	// Logging
	Log LogConfig
}

// IndexerConfig holds the remote indexer endpoints.
type IndexerConfig struct {
	RPCURL  string        `conf:"indexer.rpc"`
	WSURL   string        `conf:"indexer.ws"`
	Timeout time.Duration `conf:"indexer.timeout"`
}

// SyncConfig holds stream retry and reorg window settings.
type SyncConfig struct {
	RetryBaseDelay time.Duration `conf:"sync.retry_base"`
	RetryMaxDelay  time.Duration `conf:"sync.retry_max"`
	MaxRetries     int           `conf:"sync.max_retries"` // 0 = retry forever

	// HistoryDepth is how many recent block digests are kept for reorg
	// detection. Must exceed FinalityThreshold.
	HistoryDepth uint64 `conf:"sync.history_depth"`

	// FinalityThreshold is the reorg depth past which the chain is
	// assumed final; deeper forks are fatal anomalies.
	FinalityThreshold uint64 `conf:"sync.finality_threshold"`
}

// DustConfig holds DUST generation parameters.
type DustConfig struct {
	NightDustRatio    uint64 `conf:"dust.ratio"`
	GenerationRateNum uint64 `conf:"dust.rate_num"`
	GenerationRateDen uint64 `conf:"dust.rate_den"`
}

// WalletConfig holds keystore settings.
type WalletConfig struct {
	Name string `conf:"wallet.name"` // wallet file name within the keystore dir
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.umbra
//	macOS:   ~/Library/Application Support/Umbra
//	Windows: %APPDATA%\Umbra
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".umbra"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Umbra")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Umbra")
		}
		return filepath.Join(home, "AppData", "Roaming", "Umbra")
	default:
		return filepath.Join(home, ".umbra")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// LedgerDir returns the ledger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.NetworkDataDir(), "ledger")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "umbra.conf")
}

// AddressHRP returns the bech32m human-readable part for the network.
func (c *Config) AddressHRP() string {
	if c.Network == Testnet {
		return "tumbra"
	}
	return "umbra"
}
