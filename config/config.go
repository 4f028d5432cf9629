// Package config loads the agentrun configuration file. Values come from
// Default, then the YAML file, then AGENTRUN_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"

	"github.com/hupe1980/agentrun/logging"
)

// CurrentVersion is the version written by Save.
const CurrentVersion = "v1"

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the complete configuration.
type Config struct {
	Version string        `yaml:"version,omitempty"`
	Runner  RunnerConfig  `yaml:"runner"`
	Model   ModelConfig   `yaml:"model"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Gate    GateConfig    `yaml:"gate,omitempty"`
	Memory  MemoryConfig  `yaml:"memory,omitempty"`
}

// RunnerConfig holds per-run limits.
type RunnerConfig struct {
	MaxModelCalls   int `yaml:"max_model_calls"`
	MaxToolCalls    int `yaml:"max_tool_calls,omitempty"`
	ToolParallelism int `yaml:"tool_parallelism"`
	EventBuffer     int `yaml:"event_buffer"`
}

// ModelConfig selects the model provider.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int64   `yaml:"max_tokens,omitempty"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	// Retries wraps the model in a retrying decorator when greater than one.
	Retries int `yaml:"retries,omitempty"`
}

// APIKey returns the key from APIKeyEnv, or "" to let the SDK use its own
// default variable.
func (m ModelConfig) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}

// StorageConfig selects the session store. Path is a directory for the file
// driver and a database file for sqlite.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path,omitempty"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GateConfig holds escalation patterns raising matching tools to
// requires_confirmation.
type GateConfig struct {
	Escalate []string `yaml:"escalate,omitempty"`
}

// MemoryConfig enables post-turn memory extraction.
type MemoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Runner: RunnerConfig{
			MaxModelCalls:   50,
			ToolParallelism: 8,
			EventBuffer:     100,
		},
		Model: ModelConfig{
			Provider:  ProviderOpenAI,
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Storage: StorageConfig{Driver: DriverMemory},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path atomically.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	c.Version = CurrentVersion

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return atomic.WriteFile(path, bytes.NewReader(data))
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Runner.MaxModelCalls < 0 {
		errs = append(errs, errors.New("runner.max_model_calls must not be negative"))
	}
	if c.Runner.MaxToolCalls < 0 {
		errs = append(errs, errors.New("runner.max_tool_calls must not be negative"))
	}
	if c.Runner.EventBuffer < 0 {
		errs = append(errs, errors.New("runner.event_buffer must not be negative"))
	}

	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("model.provider %q is not one of %s, %s", c.Model.Provider, ProviderOpenAI, ProviderAnthropic))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverFile, DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %s", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of %s, %s, %s", c.Storage.Driver, DriverMemory, DriverFile, DriverSQLite))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Errorf("logging.format %q is not json or text", c.Logging.Format))
	}

	for _, p := range c.Gate.Escalate {
		if _, err := filepath.Match(p, ""); err != nil {
			errs = append(errs, fmt.Errorf("gate.escalate pattern %q: %w", p, err))
		}
	}

	return errors.Join(errs...)
}

// LoggerConfig converts the logging section. Validate has checked the level.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultLoggerConfig()
	if lvl, err := logging.ParseLevel(c.Logging.Level); err == nil {
		cfg.Level = lvl
	}
	cfg.Format = c.Logging.Format
	return cfg
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	num("AGENTRUN_MAX_MODEL_CALLS", &c.Runner.MaxModelCalls)
	num("AGENTRUN_MAX_TOOL_CALLS", &c.Runner.MaxToolCalls)
	num("AGENTRUN_TOOL_PARALLELISM", &c.Runner.ToolParallelism)
	num("AGENTRUN_EVENT_BUFFER", &c.Runner.EventBuffer)
	str("AGENTRUN_MODEL_PROVIDER", &c.Model.Provider)
	str("AGENTRUN_MODEL_NAME", &c.Model.Name)
	str("AGENTRUN_MODEL_API_KEY_ENV", &c.Model.APIKeyEnv)
	str("AGENTRUN_STORAGE_DRIVER", &c.Storage.Driver)
	str("AGENTRUN_STORAGE_PATH", &c.Storage.Path)
	str("AGENTRUN_LOG_LEVEL", &c.Logging.Level)
	str("AGENTRUN_LOG_FORMAT", &c.Logging.Format)

	if v, ok := lookup("AGENTRUN_GATE_ESCALATE"); ok {
		c.Gate.Escalate = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Gate.Escalate = append(c.Gate.Escalate, p)
			}
		}
	}
	if v, ok := lookup("AGENTRUN_MEMORY_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("AGENTRUN_MEMORY_ENABLED: %w", err))
		} else {
			c.Memory.Enabled = b
		}
	}

	return errors.Join(errs...)
}
