// ABOUTME: Configuration loading and parsing for ai-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ai-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Providers ProvidersConfig `yaml:"providers"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Batch     BatchConfig     `yaml:"batch"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration.
// The realtime WebSocket listener starts at BasePort and increments on bind
// conflicts up to MaxPortAttempts before the gateway accepts degraded mode.
type ServerConfig struct {
	HTTPAddr        string `yaml:"http_addr"`
	BasePort        int    `yaml:"base_port"`
	MaxPortAttempts int    `yaml:"max_port_attempts"`
}

// AuthConfig holds authentication configuration.
// APIKeyHashes is a bcrypt-hashed allow-list of shared keys.
// DevAcceptAnyMinLen, when >0, accepts any credential of at least that
// length. It exists for local development only and defaults to off.
type AuthConfig struct {
	JWTSecret          string   `yaml:"jwt_secret"`
	APIKeyHashes       []string `yaml:"api_key_hashes"`
	DevAcceptAnyMinLen int      `yaml:"dev_accept_any_min_len"`
}

// ProvidersConfig holds upstream AI provider configuration.
type ProvidersConfig struct {
	Default   string          `yaml:"default"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Bedrock   BedrockConfig   `yaml:"bedrock"`
	OpenAI    OpenAIConfig    `yaml:"openai"`

	RequestTimeout    time.Duration `yaml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout"`
}

// AnthropicConfig configures the direct Anthropic API provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// BedrockConfig configures the AWS Bedrock provider.
type BedrockConfig struct {
	Region          string `yaml:"region"`
	ModelID         string `yaml:"model_id"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Profile         string `yaml:"profile"`
}

// OpenAIConfig configures an OpenAI-compatible HTTP provider.
type OpenAIConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// SessionsConfig holds session liveness configuration.
type SessionsConfig struct {
	SweepInterval    time.Duration `yaml:"-"`
	InactivityWindow time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	SweepIntervalRaw    string `yaml:"sweep_interval"`
	InactivityWindowRaw string `yaml:"inactivity_window"`
}

// BatchConfig holds batch execution configuration.
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

// DatabaseConfig holds database configuration.
// An empty Path disables the usage store; the gateway runs without
// invocation history.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when fields are absent from the config file.
const (
	DefaultBasePort         = 8090
	DefaultMaxPortAttempts  = 10
	DefaultSweepInterval    = 30 * time.Second
	DefaultInactivityWindow = 10 * time.Minute
	DefaultBatchConcurrency = 3
	DefaultRequestTimeout   = 120 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in zero-valued fields with package defaults.
func (c *Config) applyDefaults() {
	if c.Server.BasePort == 0 {
		c.Server.BasePort = DefaultBasePort
	}
	if c.Server.MaxPortAttempts == 0 {
		c.Server.MaxPortAttempts = DefaultMaxPortAttempts
	}
	if c.Sessions.SweepInterval == 0 {
		c.Sessions.SweepInterval = DefaultSweepInterval
	}
	if c.Sessions.InactivityWindow == 0 {
		c.Sessions.InactivityWindow = DefaultInactivityWindow
	}
	if c.Batch.MaxConcurrency == 0 {
		c.Batch.MaxConcurrency = DefaultBatchConcurrency
	}
	if c.Providers.RequestTimeout == 0 {
		c.Providers.RequestTimeout = DefaultRequestTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Server.BasePort <= 0 || c.Server.BasePort > 65535 {
		return fmt.Errorf("server.base_port must be a valid port, got %d", c.Server.BasePort)
	}
	if c.Server.MaxPortAttempts <= 0 {
		return fmt.Errorf("server.max_port_attempts must be positive, got %d", c.Server.MaxPortAttempts)
	}
	if c.Batch.MaxConcurrency <= 0 {
		return fmt.Errorf("batch.max_concurrency must be positive, got %d", c.Batch.MaxConcurrency)
	}
	if c.Providers.Default != "" {
		switch c.Providers.Default {
		case "anthropic", "bedrock", "openai":
		default:
			return fmt.Errorf("providers.default must be one of anthropic, bedrock, openai; got %q", c.Providers.Default)
		}
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sessions.SweepIntervalRaw != "" {
		cfg.Sessions.SweepInterval, err = time.ParseDuration(cfg.Sessions.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Sessions.SweepIntervalRaw, err)
		}
	}

	if cfg.Sessions.InactivityWindowRaw != "" {
		cfg.Sessions.InactivityWindow, err = time.ParseDuration(cfg.Sessions.InactivityWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing inactivity_window %q: %w", cfg.Sessions.InactivityWindowRaw, err)
		}
	}

	if cfg.Providers.RequestTimeoutRaw != "" {
		cfg.Providers.RequestTimeout, err = time.ParseDuration(cfg.Providers.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Providers.RequestTimeoutRaw, err)
		}
	}

	return nil
}
