// Package config provides configuration types for the prober.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Common errors.
var (
	ErrMissingURL      = errors.New("URL is required")
	ErrInvalidOutput   = errors.New("invalid output format")
	ErrInvalidSelector = errors.New("invalid track selector")
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STREAMPROBE_"

// LogConfig configures the logger.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text, json
	File       string `yaml:"file"`   // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Config holds all application configuration.
type Config struct {
	// Input
	URLs    []string `yaml:"urls"`
	PageURL string   `yaml:"page_url"`

	// Fetch settings
	LightTimeout      time.Duration `yaml:"light_timeout"`
	FullTimeout       time.Duration `yaml:"full_timeout"`
	HeadTimeout       time.Duration `yaml:"head_timeout"`
	VariantTimeout    time.Duration `yaml:"variant_timeout"`
	RangeBytes        int           `yaml:"range_bytes"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	MaxConcurrency    int           `yaml:"max_concurrency"`
	Threads           int           `yaml:"threads"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	HeadProbe         bool          `yaml:"head_probe"`

	// HTTP settings
	UserAgent      string            `yaml:"user_agent"`
	AcceptLanguage string            `yaml:"accept_language"`
	Headers        map[string]string `yaml:"headers"`

	RegistrySize int `yaml:"registry_size"`

	// Track selection and planning
	TrackSelector string `yaml:"track_selector"`
	PlanOutput    string `yaml:"plan_output"`
	Checkpoint    string `yaml:"checkpoint"`

	// Server
	Listen string `yaml:"listen"`

	// UI/Logging
	Output      string    `yaml:"output"` // text, json
	Log         LogConfig `yaml:"log"`
	Verbose     bool      `yaml:"verbose"`
	ShowVersion bool      `yaml:"-"`
}

// Default configuration values.
const (
	DefaultLightTimeout   = 5 * time.Second
	DefaultFullTimeout    = 10 * time.Second
	DefaultHeadTimeout    = 3 * time.Second
	DefaultVariantTimeout = 10 * time.Second
	DefaultRangeBytes     = 4096
	DefaultMaxRetries     = 2
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultMaxConcurrency = 8
	DefaultThreads        = 8
	DefaultRegistrySize   = 4096
	DefaultTrackSelector  = "best"
	DefaultOutput         = "text"
	DefaultListen         = ":8080"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"

	MaxThreads = 128
	MinThreads = 1
)

// New returns a Config with sensible defaults.
func New() *Config {
	return &Config{
		LightTimeout:   DefaultLightTimeout,
		FullTimeout:    DefaultFullTimeout,
		HeadTimeout:    DefaultHeadTimeout,
		VariantTimeout: DefaultVariantTimeout,
		RangeBytes:     DefaultRangeBytes,
		MaxRetries:     DefaultMaxRetries,
		RetryDelay:     DefaultRetryDelay,
		MaxConcurrency: DefaultMaxConcurrency,
		Threads:        DefaultThreads,
		RegistrySize:   DefaultRegistrySize,
		TrackSelector:  DefaultTrackSelector,
		Output:         DefaultOutput,
		Listen:         DefaultListen,
		Headers:        make(map[string]string),
		Log: LogConfig{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load builds a Config from defaults, then the YAML file at path (if
// any), then .env files, then STREAMPROBE_* environment variables.
// A missing .env file is not an error; a missing config file is.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := New()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from STREAMPROBE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for name, set := range c.envSetters() {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := set(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
	}
	return nil
}

func (c *Config) envSetters() map[string]func(string) error {
	return map[string]func(string) error{
		"LIGHT_TIMEOUT":   durationSetter(&c.LightTimeout),
		"FULL_TIMEOUT":    durationSetter(&c.FullTimeout),
		"HEAD_TIMEOUT":    durationSetter(&c.HeadTimeout),
		"VARIANT_TIMEOUT": durationSetter(&c.VariantTimeout),
		"RETRY_DELAY":     durationSetter(&c.RetryDelay),
		"RANGE_BYTES":     intSetter(&c.RangeBytes),
		"MAX_RETRIES":     intSetter(&c.MaxRetries),
		"MAX_CONCURRENCY": intSetter(&c.MaxConcurrency),
		"THREADS":         intSetter(&c.Threads),
		"REGISTRY_SIZE":   intSetter(&c.RegistrySize),
		"HEAD_PROBE":      boolSetter(&c.HeadProbe),
		"VERBOSE":         boolSetter(&c.Verbose),
		"USER_AGENT":      stringSetter(&c.UserAgent),
		"ACCEPT_LANGUAGE": stringSetter(&c.AcceptLanguage),
		"PAGE_URL":        stringSetter(&c.PageURL),
		"TRACK_SELECTOR":  stringSetter(&c.TrackSelector),
		"PLAN_OUTPUT":     stringSetter(&c.PlanOutput),
		"CHECKPOINT":      stringSetter(&c.Checkpoint),
		"LISTEN":          stringSetter(&c.Listen),
		"OUTPUT":          stringSetter(&c.Output),
		"LOG_LEVEL":       stringSetter(&c.Log.Level),
		"LOG_FORMAT":      stringSetter(&c.Log.Format),
		"LOG_FILE":        stringSetter(&c.Log.File),
		"LOG_COMPRESS":    boolSetter(&c.Log.Compress),
		"REQUESTS_PER_SECOND": func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			c.RequestsPerSecond = f
			return nil
		},
	}
}

func durationSetter(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func boolSetter(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func stringSetter(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

// Validate checks if the configuration is valid and normalizes values.
func (c *Config) Validate() error {
	// Clamp threads to valid range
	if c.Threads < MinThreads {
		c.Threads = MinThreads
	}
	if c.Threads > MaxThreads {
		c.Threads = MaxThreads
	}
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = 1
	}
	if c.RangeBytes <= 0 {
		c.RangeBytes = DefaultRangeBytes
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RegistrySize <= 0 {
		c.RegistrySize = DefaultRegistrySize
	}
	if c.LightTimeout <= 0 {
		c.LightTimeout = DefaultLightTimeout
	}
	if c.FullTimeout <= 0 {
		c.FullTimeout = DefaultFullTimeout
	}
	if c.HeadTimeout <= 0 {
		c.HeadTimeout = DefaultHeadTimeout
	}
	if c.VariantTimeout <= 0 {
		c.VariantTimeout = c.FullTimeout
	}
	if strings.TrimSpace(c.TrackSelector) == "" {
		c.TrackSelector = DefaultTrackSelector
	}
	if strings.ContainsAny(c.TrackSelector, "\n\r\t") {
		return ErrInvalidSelector
	}

	c.Output = strings.ToLower(c.Output)
	switch c.Output {
	case "":
		c.Output = DefaultOutput
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOutput, c.Output)
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	switch c.Log.Level {
	case "":
		c.Log.Level = DefaultLogLevel
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	if c.Log.Format != "json" {
		c.Log.Format = DefaultLogFormat
	}

	// Initialize headers map if nil
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}

	return nil
}

// RequireInput reports ErrMissingURL when there is nothing to probe.
func (c *Config) RequireInput() error {
	if len(c.URLs) == 0 && c.PageURL == "" {
		return ErrMissingURL
	}
	return nil
}

// RequestHeaders returns the configured headers with User-Agent and
// Accept-Language folded in. Explicit headers win.
func (c *Config) RequestHeaders() map[string]string {
	h := make(map[string]string, len(c.Headers)+2)
	if c.UserAgent != "" {
		h["User-Agent"] = c.UserAgent
	}
	if c.AcceptLanguage != "" {
		h["Accept-Language"] = c.AcceptLanguage
	}
	for k, v := range c.Headers {
		h[k] = v
	}
	return h
}
