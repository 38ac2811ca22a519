// Package config loads sleuth settings from an optional file and the
// environment. File keys are exported as SLEUTH_* variables unless the
// variable is already set, then everything is decoded with envconfig.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/hupe1980/sleuth/core"
)

// Prefix of all environment variables.
const Prefix = "SLEUTH"

// Providers.
const (
	ProviderNone       = "none"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
)

// Cache backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds every runtime setting.
type Config struct {
	Provider string `envconfig:"PROVIDER" default:"none"`
	Model    string `envconfig:"MODEL"`
	APIKey   string `envconfig:"API_KEY"`
	BaseURL  string `envconfig:"BASE_URL"`
	// ClassifyWithModel asks the model for the answer format before dispatch.
	ClassifyWithModel bool `envconfig:"CLASSIFY_WITH_MODEL" default:"false"`

	MaxIterations       int           `envconfig:"MAX_ITERATIONS" default:"8"`
	PerIterationTimeout time.Duration `envconfig:"PER_ITERATION_TIMEOUT" default:"30s"`
	TotalTimeout        time.Duration `envconfig:"TOTAL_TIMEOUT" default:"3m"`

	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	CacheCapacity int           `envconfig:"CACHE_CAPACITY" default:"512"`
	// CachePath enables persistence when set.
	CachePath    string `envconfig:"CACHE_PATH"`
	CacheBackend string `envconfig:"CACHE_BACKEND" default:"file"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"warn"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load reads path (YAML, JSON, TOML or .env; optional) and the environment.
func Load(path string) (*Config, error) {
	if path = strings.TrimSpace(path); path != "" {
		if err := exportFile(path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	return &cfg, nil
}

// LoadIfExists is Load that ignores a missing file.
func LoadIfExists(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return Load(path)
}

func exportFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for k, val := range flatten("", v.AllSettings()) {
		name := strings.ToUpper(k)
		if !strings.HasPrefix(name, Prefix+"_") {
			name = Prefix + "_" + name
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, val); err != nil {
			return err
		}
	}

	return nil
}

// flatten turns nested keys into underscore separated ones: cache.path becomes cache_path.
func flatten(prefix string, settings map[string]any) map[string]string {
	out := map[string]string{}
	for k, v := range settings {
		key := k
		if prefix != "" {
			key = prefix + "_" + k
		}
		switch val := v.(type) {
		case map[string]any:
			for fk, fv := range flatten(key, val) {
				out[fk] = fv
			}
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return out
}

// Core returns the budget settings for one supervisor run.
func (c *Config) Core() core.Config {
	return core.Config{
		MaxIterationsPerAgent: c.MaxIterations,
		PerIterationTimeout:   c.PerIterationTimeout,
		TotalTimeout:          c.TotalTimeout,
		CacheTTL:              c.CacheTTL,
		CacheCapacity:         c.CacheCapacity,
	}
}

// ResolvedAPIKey returns APIKey or the provider's conventional variable.
func (c *Config) ResolvedAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	switch c.Provider {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenRouter:
		return os.Getenv("OPENROUTER_API_KEY")
	}
	return ""
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderNone:
	case ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter:
		if c.ResolvedAPIKey() == "" {
			errs = append(errs, fmt.Errorf("provider %s requires an API key", c.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}

	switch c.CacheBackend {
	case BackendFile, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.CacheBackend))
	}

	if c.MaxIterations <= 0 {
		errs = append(errs, errors.New("max iterations must be positive"))
	}
	if c.PerIterationTimeout <= 0 {
		errs = append(errs, errors.New("per-iteration timeout must be positive"))
	}
	if c.TotalTimeout < c.PerIterationTimeout {
		errs = append(errs, errors.New("total timeout must not be shorter than the per-iteration timeout"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("cache ttl must not be negative"))
	}
	if c.CacheCapacity <= 0 {
		errs = append(errs, errors.New("cache capacity must be positive"))
	}

	return errors.Join(errs...)
}
