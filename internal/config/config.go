package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vilaca/flatrest/internal/domain"
	"github.com/vilaca/flatrest/internal/parser"
)

// DefaultBaseURL is the public KEGG REST root.
const DefaultBaseURL = "https://rest.kegg.jp"

var validate = validator.New()

// Config holds application configuration.
// Values come from defaults, then an optional YAML file, then FLATREST_* variables.
type Config struct {
	BaseURL       string        `yaml:"base_url" validate:"required,url"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	UserAgent     string        `yaml:"user_agent"`
	LogLevel      string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	BatchSize     int           `yaml:"batch_size" validate:"min=1,max=10"`
	MaxConcurrent int           `yaml:"max_concurrent" validate:"min=1"`
	Retries       int           `yaml:"retries" validate:"min=0,max=10"`
	RetryBackoff  time.Duration `yaml:"retry_backoff" validate:"gte=0"`
	Strict        bool          `yaml:"strict"`
	Duplicates    string        `yaml:"duplicates" validate:"oneof=last first reject error"`
	Port          int           `yaml:"port" validate:"min=1,max=65535"`

	Cache CacheConfig `yaml:"cache"`
	Store StoreConfig `yaml:"store"`
}

// CacheConfig configures the in-memory response cache. Size 0 disables it.
type CacheConfig struct {
	Size int           `yaml:"size" validate:"min=0"`
	TTL  time.Duration `yaml:"ttl" validate:"gte=0"`
}

// StoreConfig configures the SQLite response store. An empty Path disables it.
type StoreConfig struct {
	Path          string        `yaml:"path"`
	MaxAge        time.Duration `yaml:"max_age" validate:"gte=0"`
	PruneInterval time.Duration `yaml:"prune_interval" validate:"gte=0"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		BaseURL:       DefaultBaseURL,
		Timeout:       30 * time.Second,
		LogLevel:      "info",
		BatchSize:     domain.MaxEntriesPerRequest,
		MaxConcurrent: 5,
		Retries:       0,
		RetryBackoff:  500 * time.Millisecond,
		Duplicates:    "last",
		Port:          8080,
		Cache:         CacheConfig{Size: 512, TTL: 10 * time.Minute},
		Store:         StoreConfig{MaxAge: 24 * time.Hour, PruneInterval: time.Hour},
	}
}

// Load builds the configuration from path (skipped when empty) and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
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

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ParserOptions returns the parser behaviour selected by Strict and Duplicates.
func (c *Config) ParserOptions() (parser.Options, error) {
	policy, err := parser.ParseDuplicatePolicy(c.Duplicates)
	if err != nil {
		return parser.Options{}, err
	}
	return parser.Options{Strict: c.Strict, Duplicates: policy}, nil
}

// CacheEnabled reports whether the in-memory cache is on.
func (c *Config) CacheEnabled() bool { return c.Cache.Size > 0 }

// StoreEnabled reports whether the persistent store is on.
func (c *Config) StoreEnabled() bool { return c.Store.Path != "" }

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("FLATREST_BASE_URL", &c.BaseURL)
	str("FLATREST_LOG_LEVEL", &c.LogLevel)
	str("FLATREST_STORE_PATH", &c.Store.Path)
	str("FLATREST_DUPLICATES", &c.Duplicates)

	if v, ok := lookup("FLATREST_STRICT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FLATREST_STRICT: %w", err)
		}
		c.Strict = b
	}

	return errors.Join(
		dur("FLATREST_TIMEOUT", &c.Timeout),
		dur("FLATREST_CACHE_TTL", &c.Cache.TTL),
		num("FLATREST_CACHE_SIZE", &c.Cache.Size),
		num("FLATREST_RETRIES", &c.Retries),
		num("FLATREST_PORT", &c.Port),
	)
}
