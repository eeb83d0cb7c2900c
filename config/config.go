// Package config loads the parlord daemon configuration from YAML files
// with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete parlord configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Model    ModelConfig    `yaml:"model"`
	Agent    AgentConfig    `yaml:"agent"`
	Tools    ToolsConfig    `yaml:"tools"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// AllowedOrigins lists CORS origins permitted to call the API.
	// "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	ShutdownTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds checkpoint database configuration.
type DatabaseConfig struct {
	// Path is the SQLite database file. Set to ":memory:" or leave the
	// in_memory flag on to run without durable storage.
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// ModelConfig selects and configures the language model provider.
type ModelConfig struct {
	// Provider is one of "openai", "anthropic" or "mock".
	Provider string `yaml:"provider"`
	Name     string `yaml:"name"`
	APIKey   string `yaml:"api_key"`
}

// AgentConfig holds turn execution configuration.
type AgentConfig struct {
	Instructions     string `yaml:"instructions"`
	MaxIterations    int    `yaml:"max_iterations"`
	MaxParallelTools int    `yaml:"max_parallel_tools"`
}

// ToolsConfig enables the built-in tools.
type ToolsConfig struct {
	WebSearch  bool   `yaml:"web_search"`
	Calculator bool   `yaml:"calculator"`
	StockPrice bool   `yaml:"stock_price"`
	// AlphaVantageKey authorizes stock price lookups. Required when
	// stock_price is enabled.
	AlphaVantageKey string `yaml:"alpha_vantage_key"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8000", AllowedOrigins: []string{"*"}, ShutdownTimeout: 10 * time.Second},
		Database: DatabaseConfig{Path: "parlor.db"},
		Model:    ModelConfig{Provider: "openai", Name: "gpt-4o-mini", APIKey: os.Getenv("OPENAI_API_KEY")},
		Agent:    AgentConfig{MaxIterations: 10, MaxParallelTools: 4},
		Tools: ToolsConfig{
			WebSearch:  true,
			Calculator: true,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure
// encountered.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if !c.Database.InMemory && c.Database.Path == "" {
		return fmt.Errorf("database.path is required (or set database.in_memory)")
	}

	switch c.Model.Provider {
	case "openai", "anthropic":
		if c.Model.APIKey == "" {
			return fmt.Errorf("model.api_key is required for provider %q", c.Model.Provider)
		}
	case "mock":
	default:
		return fmt.Errorf("model.provider must be one of openai, anthropic, mock (got %q)", c.Model.Provider)
	}

	if c.Tools.StockPrice && c.Tools.AlphaVantageKey == "" {
		return fmt.Errorf("tools.alpha_vantage_key is required when tools.stock_price is enabled")
	}

	if c.Agent.MaxIterations < 0 {
		return fmt.Errorf("agent.max_iterations must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration
// values.
func parseDurations(cfg *Config) error {
	if cfg.Server.ShutdownTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Server.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_timeout %q: %w", cfg.Server.ShutdownTimeoutRaw, err)
		}
		cfg.Server.ShutdownTimeout = d
	} else if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	return nil
}
