package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	for _, network := range []NetworkType{Mainnet, Testnet} {
		if err := Validate(Default(network)); err != nil {
			t.Errorf("Default(%s) invalid: %v", network, err)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad network", func(c *Config) { c.Network = "devnet" }},
		{"empty rpc url", func(c *Config) { c.Indexer.RPCURL = "" }},
		{"non-ws url", func(c *Config) { c.Indexer.WSURL = "https://x" }},
		{"zero timeout", func(c *Config) { c.Indexer.Timeout = 0 }},
		{"zero finality", func(c *Config) { c.Sync.FinalityThreshold = 0 }},
		{"window too small", func(c *Config) { c.Sync.HistoryDepth = c.Sync.FinalityThreshold }},
		{"retry max below base", func(c *Config) { c.Sync.RetryMaxDelay = c.Sync.RetryBaseDelay / 2 }},
		{"zero dust ratio", func(c *Config) { c.Dust.NightDustRatio = 0 }},
		{"zero rate denominator", func(c *Config) { c.Dust.GenerationRateDen = 0 }},
		{"empty wallet name", func(c *Config) { c.Wallet.Name = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultMainnet()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFileAndApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "umbra.conf")
	content := `
# comment
network = testnet
indexer.rpc = "http://localhost:8700/rpc"
indexer.ws = ws://localhost:8700/ws
indexer.timeout = 3s
sync.finality_threshold = 6
sync.history_depth = 64
dust.rate_den = 100
wallet.name = primary
log.level = debug
log.json = true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}

	if cfg.Network != Testnet {
		t.Errorf("network = %s", cfg.Network)
	}
	if cfg.Indexer.RPCURL != "http://localhost:8700/rpc" {
		t.Errorf("rpc url = %s (quotes should be stripped)", cfg.Indexer.RPCURL)
	}
	if cfg.Indexer.Timeout != 3*time.Second {
		t.Errorf("timeout = %s", cfg.Indexer.Timeout)
	}
	if cfg.Sync.FinalityThreshold != 6 || cfg.Sync.HistoryDepth != 64 {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Dust.GenerationRateDen != 100 {
		t.Errorf("rate den = %d", cfg.Dust.GenerationRateDen)
	}
	if cfg.Wallet.Name != "primary" {
		t.Errorf("wallet name = %s", cfg.Wallet.Name)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.JSON {
		t.Errorf("log = %+v", cfg.Log)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoadFileMissingIsEmpty(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("values = %v, want empty", values)
	}
}

func TestApplyFileConfigUnknownKey(t *testing.T) {
	cfg := DefaultMainnet()
	err := ApplyFileConfig(cfg, map[string]string{"mining.enabled": "true"})
	if err == nil {
		t.Error("unknown key should be rejected")
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	f := parseFlags([]string{
		"-network", "testnet",
		"-indexer-rpc", "http://10.0.0.1/rpc",
		"-wallet", "cold",
		"-log-json",
	})
	cfg := DefaultMainnet()
	f.Apply(cfg)

	if cfg.Network != Testnet {
		t.Errorf("network = %s", cfg.Network)
	}
	if cfg.Indexer.RPCURL != "http://10.0.0.1/rpc" {
		t.Errorf("rpc = %s", cfg.Indexer.RPCURL)
	}
	if cfg.Wallet.Name != "cold" {
		t.Errorf("wallet = %s", cfg.Wallet.Name)
	}
	if !cfg.Log.JSON {
		t.Error("log.json flag not applied")
	}
}
