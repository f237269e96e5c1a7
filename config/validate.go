package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.Indexer.RPCURL == "" {
		return fmt.Errorf("indexer.rpc must be set")
	}
	if cfg.Indexer.WSURL == "" {
		return fmt.Errorf("indexer.ws must be set")
	}
	if !strings.HasPrefix(cfg.Indexer.WSURL, "ws://") && !strings.HasPrefix(cfg.Indexer.WSURL, "wss://") {
		return fmt.Errorf("indexer.ws must be a ws:// or wss:// URL")
	}
	if cfg.Indexer.Timeout <= 0 {
		return fmt.Errorf("indexer.timeout must be positive")
	}

	if cfg.Sync.RetryBaseDelay <= 0 {
		return fmt.Errorf("sync.retry_base must be positive")
	}
	if cfg.Sync.RetryMaxDelay < cfg.Sync.RetryBaseDelay {
		return fmt.Errorf("sync.retry_max must be >= sync.retry_base")
	}
	if cfg.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must be >= 0")
	}
	if cfg.Sync.FinalityThreshold == 0 {
		return fmt.Errorf("sync.finality_threshold must be positive")
	}
	if cfg.Sync.HistoryDepth <= cfg.Sync.FinalityThreshold {
		return fmt.Errorf("sync.history_depth (%d) must exceed sync.finality_threshold (%d)",
			cfg.Sync.HistoryDepth, cfg.Sync.FinalityThreshold)
	}

	if cfg.Dust.NightDustRatio == 0 {
		return fmt.Errorf("dust.ratio must be positive")
	}
	if cfg.Dust.GenerationRateDen == 0 {
		return fmt.Errorf("dust.rate_den must be positive")
	}

	if cfg.Wallet.Name == "" {
		return fmt.Errorf("wallet.name must be set")
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error")
	}

	return nil
}
