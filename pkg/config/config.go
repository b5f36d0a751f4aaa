// Package config loads the StateChain Entity's runtime configuration
// from environment variables, with an optional YAML settings file
// layered underneath, following the entity's own layered-defaults
// convention (defaults -> settings file -> env vars).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Network identifies the Bitcoin-like network this entity serves.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkRegtest Network = "regtest"
)

var networkPrefixes = map[Network][]string{
	NetworkMainnet: {"bc1", "1", "3"},
	NetworkTestnet: {"tb1", "m", "n", "2"},
	NetworkRegtest: {"bcrt1", "m", "n", "2"},
}

// Config holds all configuration for the StateChain Entity service.
type Config struct {
	// Network / protocol parameters (spec §6 Configuration)
	Network            Network
	BlockTimeSeconds    int64
	FeeAddress          string
	FeeDepositSats      int64
	FeeWithdrawSats     int64
	BatchLifetimeSecs   int64
	PunishmentDurSecs   int64
	TestingMode         bool

	// Server
	ListenAddr  string
	MetricsAddr string
	HealthAddr  string
	LogLevel    string

	// Storage (read/write endpoint split per spec §6)
	DatabaseReadURL     string
	DatabaseWriteURL    string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds

	// Anchoring adapter
	AnchorEndpoint     string
	AnchorPollInterval time.Duration
}

// fileSettings mirrors the subset of Config that may be supplied via an
// optional YAML settings file, layered beneath environment variables.
type fileSettings struct {
	Network           string `yaml:"network"`
	BlockTimeSeconds  int64  `yaml:"block_time"`
	FeeAddress        string `yaml:"fee_address"`
	FeeDepositSats    int64  `yaml:"fee_deposit"`
	FeeWithdrawSats   int64  `yaml:"fee_withdraw"`
	BatchLifetimeSecs int64  `yaml:"batch_lifetime"`
	PunishmentDurSecs int64  `yaml:"punishment_duration"`
}

// Load reads configuration from an optional settings file (SCE_SETTINGS_FILE,
// defaulting to "Settings.yaml" if present) and then environment
// variables, with env vars taking precedence - mirroring the layered
// defaults -> file -> env model of the entity's reference
// implementation.
func Load() (*Config, error) {
	fs := loadFileSettings(getEnv("SCE_SETTINGS_FILE", "Settings.yaml"))

	cfg := &Config{
		Network:           Network(getEnv("SCE_NETWORK", fallback(fs.Network, "regtest"))),
		BlockTimeSeconds:  getEnvInt64("SCE_BLOCK_TIME", fallbackInt64(fs.BlockTimeSeconds, 600)),
		FeeAddress:        getEnv("SCE_FEE_ADDRESS", fs.FeeAddress),
		FeeDepositSats:    getEnvInt64("SCE_FEE_DEPOSIT", fallbackInt64(fs.FeeDepositSats, 300)),
		FeeWithdrawSats:   getEnvInt64("SCE_FEE_WITHDRAW", fallbackInt64(fs.FeeWithdrawSats, 300)),
		BatchLifetimeSecs: getEnvInt64("SCE_BATCH_LIFETIME", fallbackInt64(fs.BatchLifetimeSecs, 3600)),
		PunishmentDurSecs: getEnvInt64("SCE_PUNISHMENT_DURATION", fallbackInt64(fs.PunishmentDurSecs, 360)),
		TestingMode:       getEnvBool("SCE_TESTING_MODE", false),

		ListenAddr:  getEnv("SCE_LISTEN_ADDR", "0.0.0.0:8000"),
		MetricsAddr: getEnv("SCE_METRICS_ADDR", "0.0.0.0:9090"),
		HealthAddr:  getEnv("SCE_HEALTH_ADDR", "0.0.0.0:8081"),
		LogLevel:    getEnv("SCE_LOG_LEVEL", "info"),

		DatabaseReadURL:     getEnv("SCE_DATABASE_READ_URL", getEnv("SCE_DATABASE_URL", "")),
		DatabaseWriteURL:    getEnv("SCE_DATABASE_WRITE_URL", getEnv("SCE_DATABASE_URL", "")),
		DatabaseMaxConns:    getEnvInt("SCE_DATABASE_MAX_CONNS", 25),
		DatabaseMinConns:    getEnvInt("SCE_DATABASE_MIN_CONNS", 5),
		DatabaseMaxIdleTime: getEnvInt("SCE_DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("SCE_DATABASE_MAX_LIFETIME", 3600),

		AnchorEndpoint:     getEnv("SCE_ANCHOR_ENDPOINT", ""),
		AnchorPollInterval: getEnvDuration("SCE_ANCHOR_POLL_INTERVAL", 30*time.Second),
	}

	return cfg, nil
}

// Validate enforces the fatal-at-startup checks named in spec §6: an
// invalid fee_address is fatal regardless of testing_mode.
func (c *Config) Validate() error {
	var errs []string

	switch c.Network {
	case NetworkMainnet, NetworkTestnet, NetworkRegtest:
	default:
		errs = append(errs, fmt.Sprintf("SCE_NETWORK %q is not one of mainnet|testnet|regtest", c.Network))
	}

	if c.FeeAddress == "" {
		errs = append(errs, "SCE_FEE_ADDRESS is required but not set")
	} else if err := c.validateFeeAddress(); err != nil {
		errs = append(errs, err.Error())
	}

	if !c.TestingMode {
		if c.DatabaseWriteURL == "" {
			errs = append(errs, "SCE_DATABASE_WRITE_URL is required but not set (or set SCE_TESTING_MODE=true)")
		}
		if c.DatabaseReadURL == "" {
			errs = append(errs, "SCE_DATABASE_READ_URL is required but not set (or set SCE_TESTING_MODE=true)")
		}
	}

	if c.BatchLifetimeSecs <= 0 {
		errs = append(errs, "SCE_BATCH_LIFETIME must be positive")
	}
	if c.PunishmentDurSecs <= 0 {
		errs = append(errs, "SCE_PUNISHMENT_DURATION must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateForDevelopment performs the relaxed validation used when
// testing_mode is set, requiring only a syntactically valid fee
// address.
func (c *Config) ValidateForDevelopment() error {
	if c.FeeAddress == "" {
		return fmt.Errorf("SCE_FEE_ADDRESS is required even in testing mode")
	}
	return c.validateFeeAddress()
}

// validateFeeAddress checks the configured fee_address carries a prefix
// consistent with the configured network. This is not a full Bech32/
// Base58Check decode (out of scope per spec §1's Non-goals on wallet
// logic) but matches the reference implementation's startup-time
// sanity check.
func (c *Config) validateFeeAddress() error {
	prefixes, ok := networkPrefixes[c.Network]
	if !ok {
		return fmt.Errorf("cannot validate fee_address: unknown network %q", c.Network)
	}
	for _, p := range prefixes {
		if strings.HasPrefix(c.FeeAddress, p) {
			return nil
		}
	}
	return fmt.Errorf("fee_address %q does not match any expected prefix for network %q", c.FeeAddress, c.Network)
}

func loadFileSettings(path string) fileSettings {
	var fs fileSettings
	data, err := os.ReadFile(path)
	if err != nil {
		return fs
	}
	_ = yaml.Unmarshal(data, &fs)
	return fs
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func fallbackInt64(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
