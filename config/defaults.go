package config

import "time"

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Indexer: IndexerConfig{
			RPCURL:  "https://indexer.umbra.network/rpc",
			WSURL:   "wss://indexer.umbra.network/ws",
			Timeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			RetryBaseDelay:    500 * time.Millisecond,
			RetryMaxDelay:     30 * time.Second,
			MaxRetries:        0, // retry forever; the wallet is offline-tolerant
			HistoryDepth:      128,
			FinalityThreshold: 32,
		},
		Dust: DustConfig{
			NightDustRatio:    5,
			GenerationRateNum: 1,
			GenerationRateDen: 17280,
		},
		Wallet: WalletConfig{
			Name: "default",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Indexer.RPCURL = "https://indexer.testnet.umbra.network/rpc"
	cfg.Indexer.WSURL = "wss://indexer.testnet.umbra.network/ws"
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
