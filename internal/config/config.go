// Package config loads carbitrage settings from defaults, an optional YAML
// file, a .env file and CARBITRAGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"carbitrage/internal/browser"
	"carbitrage/internal/fetcher"
	"carbitrage/internal/orchestrator"
)

const envPrefix = "CARBITRAGE"

type Config struct {
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ScraperConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	APIKey         string        `mapstructure:"api_key"`
	MaxRetries     int           `mapstructure:"max_retries"`
	FastMaxRetries int           `mapstructure:"fast_max_retries"`
	RetryDelaysMS  []int         `mapstructure:"retry_delays_ms"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PageDelayMinMS int           `mapstructure:"page_delay_min_ms"`
	PageDelayMaxMS int           `mapstructure:"page_delay_max_ms"`
}

type BrowserConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Headless bool   `mapstructure:"headless"`
	ProxyURL string `mapstructure:"proxy_url"`
	Bin      string `mapstructure:"bin"`
}

type CacheConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scraper.endpoint", "")
	v.SetDefault("scraper.api_key", "")
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.fast_max_retries", 2)
	v.SetDefault("scraper.retry_delays_ms", []int{500, 1000, 2000})
	v.SetDefault("scraper.request_timeout", "60s")
	v.SetDefault("scraper.page_delay_min_ms", 300)
	v.SetDefault("scraper.page_delay_max_ms", 900)

	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.proxy_url", "")
	v.SetDefault("browser.bin", "")

	v.SetDefault("cache.address", "")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "30m")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads configuration. path is an explicit YAML file; when empty,
// config.yaml is looked up in . and ./configs and may be absent.
func Load(path string) (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading base config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// AutomaticEnv does not split lists; accept "500,1000,2000".
	if raw := os.Getenv(envPrefix + "_SCRAPER_RETRY_DELAYS_MS"); raw != "" {
		delays, err := parseIntList(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s_SCRAPER_RETRY_DELAYS_MS: %w", envPrefix, err)
		}
		cfg.Scraper.RetryDelaysMS = delays
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func parseIntList(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%d", &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	s := c.Scraper
	if s.MaxRetries < 1 || s.MaxRetries > 3 {
		return fmt.Errorf("scraper.max_retries must be between 1 and 3, got %d", s.MaxRetries)
	}
	if s.FastMaxRetries < 1 {
		return fmt.Errorf("scraper.fast_max_retries must be at least 1, got %d", s.FastMaxRetries)
	}
	if len(s.RetryDelaysMS) == 0 {
		return errors.New("scraper.retry_delays_ms must not be empty")
	}
	for i := 1; i < len(s.RetryDelaysMS); i++ {
		if s.RetryDelaysMS[i] <= s.RetryDelaysMS[i-1] {
			return fmt.Errorf("scraper.retry_delays_ms must be strictly increasing: %v", s.RetryDelaysMS)
		}
	}
	if s.PageDelayMinMS < 0 || s.PageDelayMinMS > s.PageDelayMaxMS {
		return fmt.Errorf("scraper.page_delay_min_ms (%d) must be between 0 and page_delay_max_ms (%d)", s.PageDelayMinMS, s.PageDelayMaxMS)
	}
	if s.RequestTimeout <= 0 {
		return errors.New("scraper.request_timeout must be positive")
	}
	if s.Endpoint == "" && !c.Browser.Enabled {
		return errors.New("scraper.endpoint is required unless browser.enabled is set")
	}
	if c.Cache.Address != "" && c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive when a cache address is set")
	}
	return nil
}

// ScraperConfig projects the settings onto the orchestrator.
func (c *Config) ScraperConfig() orchestrator.Config {
	s := c.Scraper
	delays := make([]time.Duration, len(s.RetryDelaysMS))
	for i, ms := range s.RetryDelaysMS {
		delays[i] = time.Duration(ms) * time.Millisecond
	}
	return orchestrator.Config{
		Endpoint:       s.Endpoint,
		APIKey:         s.APIKey,
		MaxRetries:     s.MaxRetries,
		FastMaxRetries: s.FastMaxRetries,
		RetryDelays:    delays,
		RequestTimeout: s.RequestTimeout,
		PageDelayMin:   time.Duration(s.PageDelayMinMS) * time.Millisecond,
		PageDelayMax:   time.Duration(s.PageDelayMaxMS) * time.Millisecond,
	}
}

// BrowserConfig returns the rod launcher settings.
func (c *Config) BrowserConfig() browser.Config {
	return browser.Config{Headless: c.Browser.Headless, ProxyURL: c.Browser.ProxyURL, Bin: c.Browser.Bin}
}

// RedisConfig returns the HTML cache address.
func (c *Config) RedisConfig() fetcher.RedisConfig {
	return fetcher.RedisConfig{Address: c.Cache.Address, Password: c.Cache.Password, DB: c.Cache.DB}
}
