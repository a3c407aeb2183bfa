package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/r2rprobe/internal/probe"
	"github.com/kailas-cloud/r2rprobe/internal/sample"
)

// DefaultBaseURL is the R2R address used when none is configured.
const DefaultBaseURL = "http://192.168.1.4:7272"

// Config holds the r2rprobe configuration.
type Config struct {
	R2R     R2RConfig     `yaml:"r2r"`
	Probe   ProbeConfig   `yaml:"probe"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// R2RConfig holds connection settings for the R2R service.
type R2RConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	ConnectTimeoutSec int     `yaml:"connect_timeout_sec"`
	RequestTimeoutSec int     `yaml:"request_timeout_sec"`
	RateLimitRPS      float64 `yaml:"rate_limit_rps"` // 0 = unlimited
	RateLimitBurst    int     `yaml:"rate_limit_burst"`
	Tracing           bool    `yaml:"tracing"`
}

// ProbeConfig holds the exercise parameters.
type ProbeConfig struct {
	SamplePath        string   `yaml:"sample_path"`
	ListLimit         int      `yaml:"list_limit"`
	ProcessingWaitSec *int     `yaml:"processing_wait_sec"` // nil = default, 0 = no pause
	SearchLimit       int      `yaml:"search_limit"`
	SearchQueries     []string `yaml:"search_queries"`
	RAGQueries        []string `yaml:"rag_queries"`
}

// MetricsConfig holds the optional Prometheus endpoint settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit YAML path.
// A .env file in the working directory, if present, is loaded first.
func LoadFile(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.R2R.BaseURL == "" {
		c.R2R.BaseURL = DefaultBaseURL
	}
	if c.R2R.ConnectTimeoutSec <= 0 {
		c.R2R.ConnectTimeoutSec = 5
	}
	if c.R2R.RequestTimeoutSec <= 0 {
		c.R2R.RequestTimeoutSec = 120
	}
	if c.R2R.RateLimitRPS > 0 && c.R2R.RateLimitBurst <= 0 {
		c.R2R.RateLimitBurst = 1
	}
	if c.Probe.SamplePath == "" {
		c.Probe.SamplePath = sample.DefaultPath
	}
	if c.Probe.ProcessingWaitSec == nil {
		wait := int(probe.DefaultProcessingWait / time.Second)
		c.Probe.ProcessingWaitSec = &wait
	}
	if c.Probe.ListLimit == 0 {
		c.Probe.ListLimit = probe.DefaultListLimit
	}
	if c.Probe.SearchLimit == 0 {
		c.Probe.SearchLimit = probe.DefaultSearchLimit
	}
	if c.Probe.SearchQueries == nil {
		c.Probe.SearchQueries = append([]string(nil), probe.DefaultSearchQueries...)
	}
	if c.Probe.RAGQueries == nil {
		c.Probe.RAGQueries = append([]string(nil), probe.DefaultRAGQueries...)
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	u, err := url.Parse(c.R2R.BaseURL)
	if err != nil {
		return fmt.Errorf("r2r.base_url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("r2r.base_url must use http or https, got %q", c.R2R.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("r2r.base_url must include a host, got %q", c.R2R.BaseURL)
	}
	if c.R2R.RateLimitRPS < 0 {
		return fmt.Errorf("r2r.rate_limit_rps must not be negative, got %g", c.R2R.RateLimitRPS)
	}
	if c.Probe.ProcessingWaitSec != nil && *c.Probe.ProcessingWaitSec < 0 {
		return fmt.Errorf("probe.processing_wait_sec must not be negative, got %d", *c.Probe.ProcessingWaitSec)
	}
	if c.Probe.ListLimit <= 0 {
		return fmt.Errorf("probe.list_limit must be positive, got %d", c.Probe.ListLimit)
	}
	if c.Probe.SearchLimit <= 0 {
		return fmt.Errorf("probe.search_limit must be positive, got %d", c.Probe.SearchLimit)
	}
	if len(c.Probe.SearchQueries) == 0 {
		return fmt.Errorf("probe.search_queries must not be empty")
	}
	if len(c.Probe.RAGQueries) == 0 {
		return fmt.Errorf("probe.rag_queries must not be empty")
	}
	for i, q := range c.Probe.SearchQueries {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("probe.search_queries[%d] is blank", i)
		}
	}
	for i, q := range c.Probe.RAGQueries {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("probe.rag_queries[%d] is blank", i)
		}
	}
	return nil
}

// ConnectTimeout returns the reachability check bound.
func (c R2RConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

// RequestTimeout returns the per-call bound.
func (c R2RConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// RunConfig converts the configuration into the orchestrator's run parameters.
func (c *Config) RunConfig() probe.Config {
	cfg := probe.DefaultConfig(c.R2R.BaseURL)
	cfg.SamplePath = c.Probe.SamplePath
	if c.Probe.ProcessingWaitSec != nil {
		cfg.ProcessingWait = time.Duration(*c.Probe.ProcessingWaitSec) * time.Second
	}
	cfg.ListLimit = c.Probe.ListLimit
	cfg.SearchLimit = c.Probe.SearchLimit
	cfg.SearchQueries = append([]string(nil), c.Probe.SearchQueries...)
	cfg.RAGQueries = append([]string(nil), c.Probe.RAGQueries...)
	return cfg
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
