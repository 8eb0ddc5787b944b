// Package config loads the engine configuration from a YAML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// PollingConfig bounds the indexer polling backoff.
type PollingConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	MaxAttempts  uint          `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// Config is the engine configuration.
type Config struct {
	// ChainID of the EVM chain the engine operates on.
	ChainID uint64 `mapstructure:"chain_id" yaml:"chain_id"`
	// RPCURL of the chain node.
	RPCURL string `mapstructure:"rpc_url" yaml:"rpc_url"`
	// IndexerURL of the transaction indexing service.
	IndexerURL string `mapstructure:"indexer_url" yaml:"indexer_url"`
	// RelayURL of the gasless relay. Empty disables the relay path.
	RelayURL string `mapstructure:"relay_url" yaml:"relay_url"`
	// RegistryURL of the role rule registry.
	RegistryURL string `mapstructure:"registry_url" yaml:"registry_url"`
	// MultiSendAddress is the batch dispatch contract.
	MultiSendAddress string `mapstructure:"multisend_address" yaml:"multisend_address"`
	// LogLevel is a zap level string (debug, info, warn, error).
	LogLevel string        `mapstructure:"log_level" yaml:"log_level"`
	Polling  PollingConfig `mapstructure:"polling" yaml:"polling"`
}

// Load reads the configuration from the given file path (optional, may be
// empty) with INTENT_* environment variables taking precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INTENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults register every key with viper so environment-only overrides
	// survive Unmarshal.
	v.SetDefault("chain_id", 0)
	v.SetDefault("rpc_url", "")
	v.SetDefault("indexer_url", "")
	v.SetDefault("relay_url", "")
	v.SetDefault("registry_url", "")
	v.SetDefault("multisend_address", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("polling.initial_delay", 2*time.Second)
	v.SetDefault("polling.max_delay", 30*time.Second)
	v.SetDefault("polling.max_attempts", 10)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration for completeness and well-formedness.
func (c Config) Validate() error {
	var errs []error
	if c.ChainID == 0 {
		errs = append(errs, errors.New("chain_id is required"))
	}
	if c.RPCURL == "" {
		errs = append(errs, errors.New("rpc_url is required"))
	}
	if c.IndexerURL == "" {
		errs = append(errs, errors.New("indexer_url is required"))
	}
	if c.MultiSendAddress != "" && !common.IsHexAddress(c.MultiSendAddress) {
		errs = append(errs, fmt.Errorf("multisend_address %q is not a valid address", c.MultiSendAddress))
	}
	if c.Polling.MaxAttempts == 0 {
		errs = append(errs, errors.New("polling.max_attempts must be positive"))
	}

	return errors.Join(errs...)
}

// RelayEnabled reports whether the relay path is configured.
func (c Config) RelayEnabled() bool {
	return c.RelayURL != ""
}

// MultiSend returns the parsed batch dispatch address.
func (c Config) MultiSend() common.Address {
	return common.HexToAddress(c.MultiSendAddress)
}
