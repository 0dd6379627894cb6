// Package api provides the HTTP prediction server for LeafNet.
package api

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/tphakala/leafnet-go/internal/conf"
	"github.com/tphakala/leafnet-go/internal/errors"
)

// Default constants for the HTTP server.
const (
	DefaultPort            = 5000
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = "10M"
	DefaultMetricsPath     = "/metrics"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host string // empty binds all interfaces
	Port int

	AllowedOrigins []string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration // per-request inference deadline, 0 disables

	BodyLimit string

	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	CacheEnabled bool
	CacheTTL     time.Duration

	MetricsEnabled bool
	MetricsPath    string

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            DefaultPort,
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
		MetricsPath:     DefaultMetricsPath,
	}
}

// ConfigFromSettings creates a Config from the application settings,
// keeping defaults for unset values.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	s := settings.Server

	cfg.Host = s.Host
	if s.Port != 0 {
		cfg.Port = s.Port
	}
	if len(s.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = s.AllowedOrigins
	}
	if s.ReadTimeout > 0 {
		cfg.ReadTimeout = s.ReadTimeout
	}
	if s.WriteTimeout > 0 {
		cfg.WriteTimeout = s.WriteTimeout
	}
	if s.IdleTimeout > 0 {
		cfg.IdleTimeout = s.IdleTimeout
	}
	if s.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = s.ShutdownTimeout
	}
	cfg.RequestTimeout = s.RequestTimeout
	if s.BodyLimit != "" {
		cfg.BodyLimit = s.BodyLimit
	}

	cfg.RateLimitEnabled = s.RateLimit.Enabled
	cfg.RateLimitRPS = s.RateLimit.RPS
	cfg.RateLimitBurst = s.RateLimit.Burst

	cfg.CacheEnabled = s.Cache.Enabled
	cfg.CacheTTL = s.Cache.TTL

	cfg.MetricsEnabled = settings.Metrics.Enabled
	if settings.Metrics.Path != "" {
		cfg.MetricsPath = settings.Metrics.Path
	}

	cfg.Debug = settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var problems []string
	if c.Port < 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.ReadTimeout <= 0 {
		problems = append(problems, "read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		problems = append(problems, "write timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, "shutdown timeout must be positive")
	}
	if c.RequestTimeout < 0 {
		problems = append(problems, "request timeout must not be negative")
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst < 1) {
		problems = append(problems, "rate limit needs a positive rps and a burst of at least 1")
	}
	if c.CacheEnabled && c.CacheTTL <= 0 {
		problems = append(problems, "cache ttl must be positive when the cache is enabled")
	}
	if c.MetricsEnabled && (c.MetricsPath == "" || c.MetricsPath[0] != '/') {
		problems = append(problems, fmt.Sprintf("metrics path %q must start with /", c.MetricsPath))
	}

	if len(problems) > 0 {
		return errors.Newf("invalid server configuration: %v", problems).
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// Address returns the host:port string for the server to listen on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Server Config: address=%s, cache=%v, ratelimit=%v, metrics=%v, debug=%v",
		c.Address(), c.CacheEnabled, c.RateLimitEnabled, c.MetricsEnabled, c.Debug)
}
