package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Indexer
	case "indexer.rpc":
		cfg.Indexer.RPCURL = value
	case "indexer.ws":
		cfg.Indexer.WSURL = value
	case "indexer.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Indexer.Timeout = d

	// Sync
	case "sync.retry_base":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Sync.RetryBaseDelay = d
	case "sync.retry_max":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Sync.RetryMaxDelay = d
	case "sync.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Sync.MaxRetries = n
	case "sync.history_depth":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Sync.HistoryDepth = n
	case "sync.finality_threshold":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Sync.FinalityThreshold = n

	// Dust
	case "dust.ratio":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Dust.NightDustRatio = n
	case "dust.rate_num":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Dust.GenerationRateNum = n
	case "dust.rate_den":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Dust.GenerationRateDen = n

	// Wallet
	case "wallet.name":
		cfg.Wallet.Name = value

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		return fmt.Errorf("unknown config key")
	}
	return nil
}

// parseBool parses a boolean config value.
func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
