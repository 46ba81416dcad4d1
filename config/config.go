package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/openbridge/gmp-relayer/pkg/store"
)

const APP_NAME = "gmp-relayer"

// ChainConfig describes one gateway deployment the relayer connects to.
type ChainConfig struct {
	Name               string        `mapstructure:"name" validate:"required"`
	RPCUrl             string        `mapstructure:"rpc_url" validate:"required"`
	Gateway            string        `mapstructure:"gateway" validate:"required"`
	ChainID            uint64        `mapstructure:"chain_id"`
	BlockConfirmations uint64        `mapstructure:"block_confirmations"`
	GasLimit           uint64        `mapstructure:"gas_limit"`
	GasPrice           int64         `mapstructure:"gas_price"` // wei; 0 uses the node's suggestion
	RecoverRange       uint64        `mapstructure:"recover_range"`
	BlockTime          time.Duration `mapstructure:"block_time"` // ms; overrides the global polling interval
}

// RelayerConfig is the relay engine's tuning surface.
type RelayerConfig struct {
	PrivateKey      string        `mapstructure:"private_key" validate:"required"`
	PollingInterval time.Duration `mapstructure:"polling_interval_ms"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryInterval   time.Duration `mapstructure:"retry_interval_ms"`
	BackoffBase     time.Duration `mapstructure:"backoff_base_ms"`
	BackoffMax      time.Duration `mapstructure:"backoff_max_ms"`
	SafetyMargin    uint64        `mapstructure:"safety_margin"`
	EventBufferSize int           `mapstructure:"event_buffer_size"`
}

// APIConfig configures the operational HTTP surface.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

type Config struct {
	Chains  []ChainConfig `mapstructure:"chains" validate:"required,min=1,dive"`
	Relayer RelayerConfig `mapstructure:"relayer"`
	Store   store.Config  `mapstructure:"store" validate:"required"`
	API     APIConfig     `mapstructure:"api"`

	ConfigPath string
}

var GlobalConfig *Config

// LoadEnv loads .env (if present) and the process environment into viper.
func LoadEnv() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	// A missing .env file is fine, the environment still applies.
	_ = viper.ReadInConfig()
}

// Load reads <configPath>/chains.json and <configPath>/relayer.json,
// applies env overrides and defaults, validates and sets GlobalConfig.
func Load(configPath string) (*Config, error) {
	cfg := Config{ConfigPath: configPath}

	chainsViper := viper.New()
	chainsViper.SetConfigFile(filepath.Join(configPath, "chains.json"))
	chainsViper.SetConfigType("json")
	if err := chainsViper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading chains config file: %w", err)
	}
	if err := chainsViper.UnmarshalKey("chains", &cfg.Chains); err != nil {
		return nil, fmt.Errorf("error unmarshaling chains config: %w", err)
	}

	relayerViper := viper.New()
	relayerViper.SetConfigFile(filepath.Join(configPath, "relayer.json"))
	relayerViper.SetConfigType("json")
	if err := relayerViper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading relayer config file: %w", err)
	}
	if err := relayerViper.UnmarshalKey("relayer", &cfg.Relayer); err != nil {
		return nil, fmt.Errorf("error unmarshaling relayer config: %w", err)
	}
	if err := relayerViper.UnmarshalKey("store", &cfg.Store); err != nil {
		return nil, fmt.Errorf("error unmarshaling store config: %w", err)
	}
	if err := relayerViper.UnmarshalKey("api", &cfg.API); err != nil {
		return nil, fmt.Errorf("error unmarshaling api config: %w", err)
	}

	// The signing key comes from the environment when set, never from the
	// chains file.
	if key := viper.GetString("RELAYER_PRIVATE_KEY"); key != "" {
		cfg.Relayer.PrivateKey = key
	}
	if dsn := viper.GetString("DATABASE_URL"); dsn != "" {
		cfg.Store.DSN = dsn
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Relayer.PollingInterval == 0 {
		c.Relayer.PollingInterval = 5 * time.Second
	} else {
		c.Relayer.PollingInterval *= time.Millisecond
	}
	if c.Relayer.MaxRetries == 0 {
		c.Relayer.MaxRetries = 3
	}
	if c.Relayer.RetryInterval == 0 {
		c.Relayer.RetryInterval = 30 * time.Second
	} else {
		c.Relayer.RetryInterval *= time.Millisecond
	}
	if c.Relayer.BackoffBase == 0 {
		c.Relayer.BackoffBase = 10 * time.Second
	} else {
		c.Relayer.BackoffBase *= time.Millisecond
	}
	if c.Relayer.BackoffMax == 0 {
		c.Relayer.BackoffMax = 10 * time.Minute
	} else {
		c.Relayer.BackoffMax *= time.Millisecond
	}
	if c.Relayer.SafetyMargin == 0 {
		c.Relayer.SafetyMargin = 16
	}
	if c.Relayer.EventBufferSize == 0 {
		c.Relayer.EventBufferSize = 256
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "file"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data"
	}
	if c.Store.MaxProcessedEvents == 0 {
		c.Store.MaxProcessedEvents = 100000
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	for i := range c.Chains {
		if c.Chains[i].GasLimit == 0 {
			c.Chains[i].GasLimit = 3000000
		}
		if c.Chains[i].RecoverRange == 0 {
			c.Chains[i].RecoverRange = 1000000
		}
		if c.Chains[i].BlockTime == 0 {
			c.Chains[i].BlockTime = c.Relayer.PollingInterval
		} else {
			c.Chains[i].BlockTime *= time.Millisecond
		}
	}
}

// ChainNames lists the configured chain identifiers.
func (c *Config) ChainNames() []string {
	names := make([]string, len(c.Chains))
	for i, chain := range c.Chains {
		names[i] = chain.Name
	}
	return names
}
