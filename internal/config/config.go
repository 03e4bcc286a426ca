// Package config handles configuration loading for moexidx.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"     yaml:"store"`
	MOEX      MOEXConfig      `mapstructure:"moex"      yaml:"moex"`
	Cache     CacheConfig     `mapstructure:"cache"     yaml:"cache"`
	Valuation ValuationConfig `mapstructure:"valuation" yaml:"valuation"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// StoreConfig selects the durable store.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"    yaml:"dsn"`
}

// MOEXConfig holds the exchange endpoints and client limits.
type MOEXConfig struct {
	ISSURL           string `mapstructure:"iss_url"            yaml:"iss_url"`
	PassportURL      string `mapstructure:"passport_url"       yaml:"passport_url"`
	SiteURL          string `mapstructure:"site_url"           yaml:"site_url"`
	FreeFloatURL     string `mapstructure:"free_float_url"     yaml:"free_float_url"`
	DividendYieldURL string `mapstructure:"dividend_yield_url" yaml:"dividend_yield_url"`
	Board            string `mapstructure:"board"              yaml:"board"`           // share board, e.g. "TQBR"
	Benchmark        string `mapstructure:"benchmark"          yaml:"benchmark"`       // e.g. "IMOEX"
	BenchmarkBoard   string `mapstructure:"benchmark_board"    yaml:"benchmark_board"` // e.g. "SNDX"
	Username         string `mapstructure:"username"           yaml:"username"`
	Password         string `mapstructure:"password"           yaml:"password"`
	RateLimit        int    `mapstructure:"rate_limit"         yaml:"rate_limit"` // requests per second
	TimeoutSec       int    `mapstructure:"timeout_sec"        yaml:"timeout_sec"`
	QuoteTTLSec      int    `mapstructure:"quote_ttl_sec"      yaml:"quote_ttl_sec"`
}

// CacheConfig holds time-series cache settings.
type CacheConfig struct {
	Epoch             string `mapstructure:"epoch"              yaml:"epoch"`     // earliest day ever fetched
	GapModel          string `mapstructure:"gap_model"          yaml:"gap_model"` // "boundary" or "intervals"
	ConcurrentFetches int    `mapstructure:"concurrent_fetches" yaml:"concurrent_fetches"`
}

// ValuationConfig holds index valuation settings.
type ValuationConfig struct {
	FillMissing        string `mapstructure:"fill_missing"         yaml:"fill_missing"` // "zero" or "forward"
	LatestLookbackDays int    `mapstructure:"latest_lookback_days" yaml:"latest_lookback_days"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.moexidx/config.yaml (home directory)
//  3. /etc/moexidx/config.yaml (system)
//
// Environment variables override config file values.
// Format: MOEXIDX_<SECTION>_<KEY>, e.g., MOEXIDX_STORE_DSN
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".moexidx"))
	v.AddConfigPath("/etc/moexidx")

	v.SetEnvPrefix("MOEXIDX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, cfg.Validate()
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("MOEXIDX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, cfg.Validate()
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver: unsupported driver %q", c.Store.Driver)
	}
	switch c.Cache.GapModel {
	case "boundary", "intervals":
	default:
		return fmt.Errorf("cache.gap_model: must be boundary or intervals, got %q", c.Cache.GapModel)
	}
	switch c.Valuation.FillMissing {
	case "zero", "forward":
	default:
		return fmt.Errorf("valuation.fill_missing: must be zero or forward, got %q", c.Valuation.FillMissing)
	}
	if c.Cache.ConcurrentFetches < 1 {
		return fmt.Errorf("cache.concurrent_fetches: must be positive, got %d", c.Cache.ConcurrentFetches)
	}
	return nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Store defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "moexidx.db")

	// MOEX defaults
	v.SetDefault("moex.iss_url", "https://iss.moex.com/iss")
	v.SetDefault("moex.passport_url", "https://passport.moex.com/authenticate")
	v.SetDefault("moex.site_url", "https://www.moex.com")
	v.SetDefault("moex.free_float_url", "https://web.moex.com/moex-web-icdb-api/api/v1/export/site-free-floats/xlsx")
	v.SetDefault("moex.dividend_yield_url", "https://web.moex.com/moex-web-icdb-api/api/v1/export/site-dividend-yields/xlsx")
	v.SetDefault("moex.board", "TQBR")
	v.SetDefault("moex.benchmark", "IMOEX")
	v.SetDefault("moex.benchmark_board", "SNDX")
	v.SetDefault("moex.rate_limit", 10)
	v.SetDefault("moex.timeout_sec", 30)
	v.SetDefault("moex.quote_ttl_sec", 60)

	// Cache defaults
	v.SetDefault("cache.epoch", "2000-01-01")
	v.SetDefault("cache.gap_model", "boundary")
	v.SetDefault("cache.concurrent_fetches", 8)

	// Valuation defaults
	v.SetDefault("valuation.fill_missing", "zero")
	v.SetDefault("valuation.latest_lookback_days", 14)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if dsn := os.Getenv("MOEXIDX_STORE_DSN"); dsn != "" {
		cfg.Store.DSN = dsn
	}
	if user := os.Getenv("MOEXIDX_MOEX_USERNAME"); user != "" {
		cfg.MOEX.Username = user
	}
	if pass := os.Getenv("MOEXIDX_MOEX_PASSWORD"); pass != "" {
		cfg.MOEX.Password = pass
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
