// Package config defines rankgrid's configuration and how it is loaded.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/rankgrid/internal/engine/geo"
	"github.com/rendis/rankgrid/internal/logging"
	"github.com/rendis/rankgrid/internal/model"
)

// Config contains process configuration. Keys are flat so they map one to
// one onto RANKGRID_* environment variables.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// DBPath is the sqlite scan history.
	DBPath string `koanf:"db_path"`

	// Scanner pacing.
	ScanDelayMS   int `koanf:"scan_delay_ms"`
	CellTimeoutMS int `koanf:"cell_timeout_ms"`

	DefaultGridSize    int     `koanf:"default_grid_size"`
	DefaultRadiusMiles float64 `koanf:"default_radius_miles"`

	// Maps oracle.
	OracleLang            string `koanf:"oracle_lang"`
	OracleZoom            int    `koanf:"oracle_zoom"`
	OracleTimeoutMS       int    `koanf:"oracle_timeout_ms"`
	OracleMaxRetries      int    `koanf:"oracle_max_retries"`
	OracleCompetitorLimit int    `koanf:"oracle_competitor_limit"`
	OracleProxyURL        string `koanf:"oracle_proxy_url"`

	GeocoderURL string `koanf:"geocoder_url"`

	// RedisAddr enables the oracle response cache when set.
	RedisAddr       string `koanf:"redis_addr"`
	CacheTTLMinutes int    `koanf:"cache_ttl_minutes"`

	HTTPAddr               string `koanf:"http_addr"`
	HTTPRateLimitPerMinute int    `koanf:"http_rate_limit_per_minute"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "console",
		DBPath:                 DefaultDBPath(),
		ScanDelayMS:            500,
		CellTimeoutMS:          60_000,
		DefaultGridSize:        model.DefaultGridSize,
		DefaultRadiusMiles:     model.DefaultRadiusMiles,
		OracleLang:             "en",
		OracleZoom:             15,
		OracleTimeoutMS:        15_000,
		OracleMaxRetries:       3,
		OracleCompetitorLimit:  3,
		GeocoderURL:            geo.DefaultNominatimURL,
		CacheTTLMinutes:        60,
		HTTPAddr:               ":8090",
		HTTPRateLimitPerMinute: 30,
	}
}

// DefaultDBPath places the history database in the user config directory,
// falling back to the working directory.
func DefaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "rankgrid.db"
	}
	return filepath.Join(dir, "rankgrid", "rankgrid.db")
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("log_format must be json or console, got %q", c.LogFormat))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path must not be empty"))
	}
	if c.ScanDelayMS < 0 {
		errs = append(errs, fmt.Errorf("scan_delay_ms must be >= 0, got %d", c.ScanDelayMS))
	}
	if c.CellTimeoutMS <= 0 {
		errs = append(errs, fmt.Errorf("cell_timeout_ms must be > 0, got %d", c.CellTimeoutMS))
	}
	if c.DefaultGridSize < model.MinGridSize || c.DefaultGridSize > model.MaxGridSize {
		errs = append(errs, fmt.Errorf("default_grid_size must be within [%d, %d], got %d",
			model.MinGridSize, model.MaxGridSize, c.DefaultGridSize))
	}
	if c.DefaultRadiusMiles <= 0 {
		errs = append(errs, fmt.Errorf("default_radius_miles must be > 0, got %g", c.DefaultRadiusMiles))
	}
	if c.OracleZoom < 1 || c.OracleZoom > 21 {
		errs = append(errs, fmt.Errorf("oracle_zoom must be within [1, 21], got %d", c.OracleZoom))
	}
	if c.OracleTimeoutMS <= 0 {
		errs = append(errs, fmt.Errorf("oracle_timeout_ms must be > 0, got %d", c.OracleTimeoutMS))
	}
	if c.OracleMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("oracle_max_retries must be >= 0, got %d", c.OracleMaxRetries))
	}
	if c.OracleCompetitorLimit < 0 {
		errs = append(errs, fmt.Errorf("oracle_competitor_limit must be >= 0, got %d", c.OracleCompetitorLimit))
	}
	if c.CacheTTLMinutes <= 0 {
		errs = append(errs, fmt.Errorf("cache_ttl_minutes must be > 0, got %d", c.CacheTTLMinutes))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr must not be empty"))
	}
	if c.HTTPRateLimitPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("http_rate_limit_per_minute must be > 0, got %d", c.HTTPRateLimitPerMinute))
	}
	return errors.Join(errs...)
}

func (c *Config) ScanDelay() time.Duration     { return time.Duration(c.ScanDelayMS) * time.Millisecond }
func (c *Config) CellTimeout() time.Duration   { return time.Duration(c.CellTimeoutMS) * time.Millisecond }
func (c *Config) OracleTimeout() time.Duration { return time.Duration(c.OracleTimeoutMS) * time.Millisecond }
func (c *Config) CacheTTL() time.Duration      { return time.Duration(c.CacheTTLMinutes) * time.Minute }

// LogConfig maps the logging keys onto logging.LogConfig.
func (c *Config) LogConfig(outputPaths ...string) logging.LogConfig {
	return logging.LogConfig{Level: c.LogLevel, Format: c.LogFormat, OutputPaths: outputPaths}
}
