package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ResistanceIsUseless/BlockHawk/internal/checker"
	"github.com/ResistanceIsUseless/BlockHawk/internal/pool"
)

// Config represents the main application configuration
type Config struct {
	Concurrency        int               `yaml:"concurrency"`
	Timeout            int               `yaml:"timeout"`
	InsecureSkipVerify bool              `yaml:"insecure_skip_verify"`
	FollowRedirects    bool              `yaml:"follow_redirects"`
	MaxRedirects       int               `yaml:"max_redirects"`
	MaxBodyBytes       int64             `yaml:"max_body_bytes"`
	UserAgent          string            `yaml:"user_agent"`
	DefaultHeaders     map[string]string `yaml:"default_headers"`
	DefaultURL         string            `yaml:"default_url"`

	Ping           PingConfig           `yaml:"ping"`
	IPCheck        IPCheckConfig        `yaml:"ip_check"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	GeoIP          GeoIPConfig          `yaml:"geoip"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// PingConfig controls the ICMP round-trip probe. Timeout is in seconds.
type PingConfig struct {
	Enabled bool `yaml:"enabled"`
	Count   int  `yaml:"count"`
	Timeout int  `yaml:"timeout"`
}

// IPCheckConfig controls exit-IP discovery. Timeout is in seconds and
// applies per endpoint.
type IPCheckConfig struct {
	Enabled bool     `yaml:"enabled"`
	Timeout int      `yaml:"timeout"`
	URLs    []string `yaml:"urls"`
}

// ConnectionPoolConfig tunes the shared HTTP transports.
type ConnectionPoolConfig struct {
	MaxIdleConns          int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost       int           `yaml:"max_conns_per_host"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout"`
	KeepAliveTimeout      time.Duration `yaml:"keep_alive_timeout"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout"`
	DisableKeepAlives     bool          `yaml:"disable_keep_alives"`
}

// MetricsConfig controls the Prometheus endpoint and textfile export.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`
	Textfile   string `yaml:"textfile"`
}

// GeoIPConfig points at a MaxMind country or city database.
type GeoIPConfig struct {
	Database string `yaml:"database"`
}

// LoggingConfig selects the log level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a YAML file. A missing file yields the
// defaults; keys absent from the file keep their default values.
func LoadConfig(filename string) (*Config, error) {
	config := GetDefaultConfig()

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Set default concurrency if not specified
	if config.Concurrency <= 0 {
		config.Concurrency = 10
	}

	return config, nil
}

// GetDefaultConfig returns a configuration with default values
func GetDefaultConfig() *Config {
	return &Config{
		Concurrency:        10,
		Timeout:            15,
		InsecureSkipVerify: true,
		FollowRedirects:    true,
		MaxRedirects:       10,
		MaxBodyBytes:       10 << 20,
		DefaultHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Accept-Encoding": "gzip, deflate",
			"Connection":      "keep-alive",
			"Cache-Control":   "no-cache",
			"Pragma":          "no-cache",
		},
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		DefaultURL: "https://www.google.com",
		Ping: PingConfig{
			Count:   3,
			Timeout: 10,
		},
		IPCheck: IPCheckConfig{
			Timeout: 10,
			URLs:    append([]string(nil), checker.DefaultIPCheckURLs...),
		},
		ConnectionPool: ConnectionPoolConfig{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       50,
			IdleConnTimeout:       90 * time.Second,
			KeepAliveTimeout:      30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
			Path:       "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ProbeTimeout is the per-URL HTTP timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// PoolConfig combines the transport tuning with the TLS and redirect policy.
func (c *Config) PoolConfig() pool.Config {
	cp := c.ConnectionPool
	return pool.Config{
		MaxIdleConns:          cp.MaxIdleConns,
		MaxIdleConnsPerHost:   cp.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cp.MaxConnsPerHost,
		IdleConnTimeout:       cp.IdleConnTimeout,
		KeepAliveTimeout:      cp.KeepAliveTimeout,
		TLSHandshakeTimeout:   cp.TLSHandshakeTimeout,
		ExpectContinueTimeout: cp.ExpectContinueTimeout,
		DisableKeepAlives:     cp.DisableKeepAlives,
		InsecureSkipVerify:    c.InsecureSkipVerify,
		FollowRedirects:       c.FollowRedirects,
		MaxRedirects:          c.MaxRedirects,
	}
}

// CheckerConfig returns the explicit settings handed to the prober.
func (c *Config) CheckerConfig() checker.Config {
	return checker.Config{
		Timeout:        c.ProbeTimeout(),
		UserAgent:      c.UserAgent,
		DefaultHeaders: c.DefaultHeaders,
		MaxBodyBytes:   c.MaxBodyBytes,
		IPCheckURLs:    c.IPCheck.URLs,
		IPCheckTimeout: time.Duration(c.IPCheck.Timeout) * time.Second,
	}
}
