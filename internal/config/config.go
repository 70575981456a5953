// Package config loads and validates the registry configuration from
// environment variables and an optional YAML file. Configuration errors are
// fatal: the process refuses to start with a partially valid setup.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"licbind/internal/chain"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Binding   BindingConfig   `yaml:"binding" envconfig:"BINDING"`
	Registry  RegistryConfig  `yaml:"registry" envconfig:"REGISTRY"`
	Admin     AdminConfig     `yaml:"admin" envconfig:"ADMIN"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// BindingConfig holds the account-binding engine addresses. All four
// addresses are required and must be non-zero.
type BindingConfig struct {
	AccountRegistry string `yaml:"account_registry" envconfig:"ACCOUNT_REGISTRY"`
	ProxyTemplate   string `yaml:"proxy_template" envconfig:"PROXY_TEMPLATE"`
	Implementation  string `yaml:"implementation" envconfig:"IMPLEMENTATION"`
	Executor        string `yaml:"executor" envconfig:"EXECUTOR"`
	Salt            string `yaml:"salt" envconfig:"SALT" default:"licbind.account.v1"`
}

// RegistryConfig holds license registry settings. The issuer address is
// stamped as the authoritative terms issuer on every mint.
type RegistryConfig struct {
	ChainID      uint64 `yaml:"chain_id" envconfig:"CHAIN_ID" default:"1"`
	Issuer       string `yaml:"issuer" envconfig:"ISSUER"`
	MetadataBase string `yaml:"metadata_base" envconfig:"METADATA_BASE" default:"https://licenses.local/meta/"`
}

// AdminConfig holds the single-owner administrative credential.
type AdminConfig struct {
	Token string `yaml:"token" envconfig:"TOKEN"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend" envconfig:"BACKEND" default:"memory"` // memory|sqlite
	DSN     string `yaml:"dsn" envconfig:"DSN" default:"file:licbind.db"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// WebSocketConfig contains WebSocket event stream configuration.
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// Load loads configuration from environment variables and config file.
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process("LICBIND", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Load from config file if exists
	configFile := getConfigFilePath()
	if configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file.
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence).
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Binding.AccountRegistry == "" {
		envConfig.Binding.AccountRegistry = fileConfig.Binding.AccountRegistry
	}
	if envConfig.Binding.ProxyTemplate == "" {
		envConfig.Binding.ProxyTemplate = fileConfig.Binding.ProxyTemplate
	}
	if envConfig.Binding.Implementation == "" {
		envConfig.Binding.Implementation = fileConfig.Binding.Implementation
	}
	if envConfig.Binding.Executor == "" {
		envConfig.Binding.Executor = fileConfig.Binding.Executor
	}
	if envConfig.Admin.Token == "" {
		envConfig.Admin.Token = fileConfig.Admin.Token
	}
	if envConfig.Registry.Issuer == "" {
		envConfig.Registry.Issuer = fileConfig.Registry.Issuer
	}
	if envConfig.Registry.MetadataBase == "" {
		envConfig.Registry.MetadataBase = fileConfig.Registry.MetadataBase
	}

	return envConfig
}

// IssuerAddress resolves and validates the registry issuer address.
func (c *Config) IssuerAddress() (chain.Address, error) {
	addr, err := chain.ParseAddress(c.Registry.Issuer)
	if err != nil {
		return chain.ZeroAddress, fmt.Errorf("registry.issuer: %w", err)
	}
	if addr.IsZero() {
		return chain.ZeroAddress, fmt.Errorf("registry.issuer must not be the zero address")
	}
	return addr, nil
}

// BindingAddresses resolves and validates the four binding addresses.
func (c *Config) BindingAddresses() (registry, proxy, implementation, executor chain.Address, err error) {
	fields := []struct {
		name  string
		value string
		out   *chain.Address
	}{
		{"account_registry", c.Binding.AccountRegistry, &registry},
		{"proxy_template", c.Binding.ProxyTemplate, &proxy},
		{"implementation", c.Binding.Implementation, &implementation},
		{"executor", c.Binding.Executor, &executor},
	}
	for _, f := range fields {
		addr, parseErr := chain.ParseAddress(f.value)
		if parseErr != nil {
			err = fmt.Errorf("binding.%s: %w", f.name, parseErr)
			return
		}
		if addr.IsZero() {
			err = fmt.Errorf("binding.%s must not be the zero address", f.name)
			return
		}
		*f.out = addr
	}
	return
}

// validate validates the configuration. Zero or malformed addresses are
// fatal: no partial setup is accepted.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Registry.ChainID == 0 {
		return fmt.Errorf("registry chain id must not be zero")
	}

	if c.Registry.MetadataBase == "" {
		return fmt.Errorf("registry metadata base must not be empty")
	}

	if _, err := c.IssuerAddress(); err != nil {
		return err
	}

	if _, _, _, _, err := c.BindingAddresses(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}

	if c.Logging.Format != "json" {
		// Always JSON in production; plain text only aids local reading.
		c.Logging.Format = "json"
	}

	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "stdout" {
		c.Logging.Output = "both"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file.
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns a default configuration suitable for tests and local runs.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Binding: BindingConfig{
			AccountRegistry: "0x0000000000000000000000000000000000000101",
			ProxyTemplate:   "0x0000000000000000000000000000000000000102",
			Implementation:  "0x0000000000000000000000000000000000000103",
			Executor:        "0x0000000000000000000000000000000000000104",
			Salt:            "licbind.account.v1",
		},
		Registry: RegistryConfig{
			ChainID:      1,
			Issuer:       "0x0000000000000000000000000000000000000e01",
			MetadataBase: "https://licenses.local/meta/",
		},
		Store: StoreConfig{
			Backend: "memory",
			DSN:     "file:licbind.db",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
