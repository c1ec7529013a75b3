package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the guardscan service configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
	Cache       CacheConfig       `yaml:"cache"`
	SharedCache SharedCacheConfig `yaml:"shared_cache"`
	Blocklist   BlocklistConfig   `yaml:"blocklist"`
	Keywords    KeywordsConfig    `yaml:"keywords"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Classifiers ClassifiersConfig `yaml:"classifiers"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: determined by env)
	Format string `yaml:"format"` // json, console (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxUploadBytes  int64 `yaml:"max_upload_bytes"`
}

// CacheConfig holds the in-process verdict cache settings.
type CacheConfig struct {
	Capacity      int   `yaml:"capacity"`
	TTLSec        int   `yaml:"ttl_sec"`
	CacheBlocked  *bool `yaml:"cache_blocked"`  // default true
	CacheFailures *bool `yaml:"cache_failures"` // default true
}

// SharedCacheConfig holds the optional Redis/Valkey verdict store settings.
type SharedCacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	TTLSec           int      `yaml:"ttl_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// BlocklistConfig holds blocked-domain filter settings.
type BlocklistConfig struct {
	ExpectedItems    uint64   `yaml:"expected_items"`
	FPRate           float64  `yaml:"fp_rate"`
	ExtraFiles       []string `yaml:"extra_files"`
	MatchRegistrable *bool    `yaml:"match_registrable"` // default true
}

// KeywordsConfig holds keyword table settings.
type KeywordsConfig struct {
	ExtraFiles []string `yaml:"extra_files"`
}

// FetchConfig holds outbound fetch settings.
type FetchConfig struct {
	MaxBytes   int64   `yaml:"max_bytes"`
	TimeoutSec int     `yaml:"timeout_sec"`
	UserAgent  string  `yaml:"user_agent"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
}

// ClassifiersConfig holds classifier adapter settings.
type ClassifiersConfig struct {
	Text   TextClassifierConfig   `yaml:"text"`
	Vision VisionClassifierConfig `yaml:"vision"`
}

// QuotaConfig holds classifier call budget settings.
type QuotaConfig struct {
	DailyLimit   int64  `yaml:"daily_limit"`   // 0 = unlimited
	MonthlyLimit int64  `yaml:"monthly_limit"` // 0 = unlimited
	Action       string `yaml:"action"`        // "reject" | "warn" (default)
}

// TextClassifierConfig holds text classifier settings.
type TextClassifierConfig struct {
	Provider      string      `yaml:"provider"` // openai, none
	APIKey        string      `yaml:"api_key"`
	BaseURL       string      `yaml:"base_url"`
	Model         string      `yaml:"model"`
	TimeoutSec    int         `yaml:"timeout_sec"`
	MaxInputRunes int         `yaml:"max_input_runes"`
	Quota         QuotaConfig `yaml:"quota"`
}

// VisionClassifierConfig holds vision classifier settings. An empty URL disables it.
type VisionClassifierConfig struct {
	URL        string      `yaml:"url"`
	TimeoutSec int         `yaml:"timeout_sec"`
	Quota      QuotaConfig `yaml:"quota"`
}

// MetricsConfig holds in-process latency window settings.
type MetricsConfig struct {
	WindowSize int `yaml:"window_size"`
}

// Text classifier providers.
const (
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// DefaultUserAgent identifies the scanner to content origins.
const DefaultUserAgent = "AntiLust-Guardian/1.0 (Security Scanner; +https://antilust.com)"

// Load reads configuration from a YAML file by environment name (local, docker, prod).
// A .env file in the working directory, when present, is loaded first.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references in data, decodes it, applies defaults and validates.
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = 10 << 20
	}

	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = 5000
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 3600
	}
	if c.Cache.CacheBlocked == nil {
		c.Cache.CacheBlocked = boolPtr(true)
	}
	if c.Cache.CacheFailures == nil {
		c.Cache.CacheFailures = boolPtr(true)
	}

	if c.SharedCache.TTLSec <= 0 {
		c.SharedCache.TTLSec = 3600
	}
	if c.SharedCache.KeyPrefix == "" {
		c.SharedCache.KeyPrefix = "guardscan:"
	}
	if c.SharedCache.ReadinessTimeout <= 0 {
		c.SharedCache.ReadinessTimeout = 10
	}

	if c.Blocklist.ExpectedItems == 0 {
		c.Blocklist.ExpectedItems = 1_000_000
	}
	if c.Blocklist.FPRate == 0 {
		c.Blocklist.FPRate = 0.001
	}
	if c.Blocklist.MatchRegistrable == nil {
		c.Blocklist.MatchRegistrable = boolPtr(true)
	}

	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 << 20
	}
	if c.Fetch.TimeoutSec <= 0 {
		c.Fetch.TimeoutSec = 10
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = DefaultUserAgent
	}
	if c.Fetch.RatePerSec <= 0 {
		c.Fetch.RatePerSec = 50
	}
	if c.Fetch.Burst <= 0 {
		c.Fetch.Burst = 100
	}

	if c.Classifiers.Text.Provider == "" {
		c.Classifiers.Text.Provider = ProviderNone
	}
	if c.Classifiers.Text.Model == "" {
		c.Classifiers.Text.Model = "omni-moderation-latest"
	}
	if c.Classifiers.Text.TimeoutSec <= 0 {
		c.Classifiers.Text.TimeoutSec = 10
	}
	if c.Classifiers.Text.MaxInputRunes <= 0 {
		c.Classifiers.Text.MaxInputRunes = 20000
	}
	if c.Classifiers.Vision.TimeoutSec <= 0 {
		c.Classifiers.Vision.TimeoutSec = 10
	}

	if c.Metrics.WindowSize <= 0 {
		c.Metrics.WindowSize = 1000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Blocklist.FPRate <= 0 || c.Blocklist.FPRate >= 1 {
		return fmt.Errorf("blocklist.fp_rate must be in (0,1), got %v", c.Blocklist.FPRate)
	}
	if c.SharedCache.Enabled && len(c.SharedCache.Addrs) == 0 {
		return fmt.Errorf("shared_cache.addrs is required when shared_cache is enabled")
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"console\", got %q", c.Logging.Format)
	}

	switch c.Classifiers.Text.Provider {
	case ProviderNone:
	case ProviderOpenAI:
		if c.Classifiers.Text.APIKey == "" {
			return fmt.Errorf("classifiers.text.api_key is required for provider %q", ProviderOpenAI)
		}
	default:
		return fmt.Errorf("classifiers.text.provider must be %q or %q, got %q",
			ProviderOpenAI, ProviderNone, c.Classifiers.Text.Provider)
	}

	quotas := map[string]QuotaConfig{
		"text":   c.Classifiers.Text.Quota,
		"vision": c.Classifiers.Vision.Quota,
	}
	for name, q := range quotas {
		switch q.Action {
		case "", "warn", "reject":
			// ok
		default:
			return fmt.Errorf(
				"classifiers.%s.quota.action must be \"warn\" or \"reject\", got %q",
				name, q.Action,
			)
		}
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

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
