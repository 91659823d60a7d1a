// ABOUTME: Configuration loading and parsing for triage-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left unset.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultMaxTokens     = 1024
	DefaultTemperature   = 0.7
	DefaultMinConfidence = 0.5
)

// Config represents the complete triage-gateway configuration. It is
// loaded once at process start and treated as read-only afterwards.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Inference InferenceConfig `yaml:"inference"`
	Routing   RoutingConfig   `yaml:"routing"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds ticket database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// InferenceConfig holds the upstream completion endpoint configuration
// plus per-agent model selection.
type InferenceConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`

	Timeout time.Duration `yaml:"-"`
	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`

	Coding   ModelConfig `yaml:"coding"`
	Research ModelConfig `yaml:"research"`
}

// ModelConfig selects a model and its generation parameters for one agent.
// Temperature is a pointer so an explicit 0 (deterministic sampling) is
// distinguishable from unset.
type ModelConfig struct {
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

// RoutingConfig holds classification configuration. RulesPath optionally
// points at a TOML rule table; when empty the built-in rules apply.
type RoutingConfig struct {
	RulesPath     string  `yaml:"rules_path"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a
// parsed Config. Environment variables in the format ${VAR_NAME} are
// expanded. Duration strings are parsed into time.Duration values and
// defaults are applied before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

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

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Inference.Timeout == 0 {
		c.Inference.Timeout = DefaultTimeout
	}
	if c.Routing.MinConfidence == 0 {
		c.Routing.MinConfidence = DefaultMinConfidence
	}
	for _, m := range []*ModelConfig{&c.Inference.Coding, &c.Inference.Research} {
		if m.MaxTokens == 0 {
			m.MaxTokens = DefaultMaxTokens
		}
		if m.Temperature == nil {
			t := DefaultTemperature
			m.Temperature = &t
		}
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Inference.Endpoint == "" {
		return fmt.Errorf("inference.endpoint is required")
	}
	if c.Inference.Coding.Model == "" {
		return fmt.Errorf("inference.coding.model is required")
	}
	if c.Inference.Research.Model == "" {
		return fmt.Errorf("inference.research.model is required")
	}
	if c.Routing.MinConfidence <= 0 || c.Routing.MinConfidence >= 1 {
		return fmt.Errorf("routing.min_confidence must be in (0, 1)")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration
// values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Inference.TimeoutRaw != "" {
		cfg.Inference.Timeout, err = time.ParseDuration(cfg.Inference.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing inference timeout %q: %w", cfg.Inference.TimeoutRaw, err)
		}
	}

	return nil
}
