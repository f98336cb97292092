package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidationResult represents the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ConfigValidationError
	Warnings []string
}

// ConfigValidationError represents a configuration validation error
type ConfigValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("config validation error in %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

func (r *ValidationResult) fail(field string, value interface{}, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, ConfigValidationError{Field: field, Value: value, Message: message})
}

func (r *ValidationResult) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ValidateConfig performs comprehensive validation on a configuration
func ValidateConfig(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ConfigValidationError{},
		Warnings: []string{},
	}

	if config.Timeout <= 0 {
		result.fail("timeout", config.Timeout, "timeout must be positive")
	} else if config.Timeout > 300 {
		result.warn("timeout of %d seconds is very high, may cause long delays", config.Timeout)
	}

	if config.Concurrency <= 0 {
		result.fail("concurrency", config.Concurrency, "concurrency must be positive")
	} else if config.Concurrency > 100 {
		result.warn("concurrency of %d is very high, may overwhelm target servers", config.Concurrency)
	}

	if config.MaxBodyBytes <= 0 {
		result.fail("max_body_bytes", config.MaxBodyBytes, "max body bytes must be positive")
	} else if config.MaxBodyBytes < 1024 {
		result.warn("max body bytes of %d truncates most pages, block detection will be unreliable", config.MaxBodyBytes)
	}

	if config.FollowRedirects && config.MaxRedirects < 0 {
		result.fail("max_redirects", config.MaxRedirects, "max redirects cannot be negative")
	}

	if !config.InsecureSkipVerify {
		result.warn("certificate verification is enabled, intercepting proxies will report SSL errors")
	}

	validateURLs(config, result)
	validateHeaders(config, result)
	validatePingSettings(config, result)
	validateIPCheckSettings(config, result)
	validateMetricsSettings(config, result)
	validateConnectionPoolSettings(config, result)
	validateLoggingSettings(config, result)

	return result
}

// validateURLs validates the default target URL
func validateURLs(config *Config, result *ValidationResult) {
	if config.DefaultURL == "" {
		return
	}
	if err := checkHTTPURL(config.DefaultURL); err != nil {
		result.fail("default_url", config.DefaultURL, err.Error())
	}
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

// validateHeaders validates HTTP headers
func validateHeaders(config *Config, result *ValidationResult) {
	for name, value := range config.DefaultHeaders {
		if strings.TrimSpace(name) == "" {
			result.fail("default_headers", fmt.Sprintf("%s: %s", name, value), "header name cannot be empty")
			continue
		}

		lowerName := strings.ToLower(name)
		switch lowerName {
		case "host", "content-length", "transfer-encoding":
			result.warn("header '%s' may interfere with proxy functionality", name)
		case "user-agent":
			result.warn("header 'User-Agent' in default_headers is overridden by user_agent")
		case "accept-encoding":
			if strings.Contains(strings.ToLower(value), "br") {
				result.warn("brotli encoding is not decoded, block detection will see compressed bodies")
			}
		}
	}

	if strings.TrimSpace(config.UserAgent) == "" {
		result.warn("empty User-Agent may cause requests to be blocked")
	}
}

func validatePingSettings(config *Config, result *ValidationResult) {
	p := config.Ping
	if p.Count <= 0 {
		result.fail("ping.count", p.Count, "ping count must be positive")
	} else if p.Count > 10 {
		result.warn("ping count of %d slows every proxy test", p.Count)
	}
	if p.Timeout <= 0 {
		result.fail("ping.timeout", p.Timeout, "ping timeout must be positive")
	}
}

func validateIPCheckSettings(config *Config, result *ValidationResult) {
	ic := config.IPCheck
	if ic.Timeout <= 0 {
		result.fail("ip_check.timeout", ic.Timeout, "IP check timeout must be positive")
	}

	if len(ic.URLs) == 0 {
		result.warn("no IP check URLs configured, built-in endpoints will be used")
	}

	seen := make(map[string]bool)
	for i, u := range ic.URLs {
		if err := checkHTTPURL(u); err != nil {
			result.fail(fmt.Sprintf("ip_check.urls[%d]", i), u, err.Error())
			continue
		}
		if seen[u] {
			result.warn("duplicate IP check URL: %s", u)
		}
		seen[u] = true
	}
}

// validateMetricsSettings validates metrics configuration
func validateMetricsSettings(config *Config, result *ValidationResult) {
	if !config.Metrics.Enabled {
		return
	}

	addr := config.Metrics.ListenAddr
	if strings.TrimSpace(addr) == "" {
		result.fail("metrics.listen_addr", addr, "metrics listen address cannot be empty when metrics are enabled")
	} else if !strings.Contains(addr, ":") {
		result.warn("metrics listen address '%s' should include port (e.g., ':9090' or 'localhost:9090')", addr)
	}

	path := config.Metrics.Path
	if strings.TrimSpace(path) == "" {
		result.fail("metrics.path", path, "metrics path cannot be empty when metrics are enabled")
	} else if !strings.HasPrefix(path, "/") {
		result.warn("metrics path '%s' should start with '/' for proper HTTP routing", path)
	}

	if tf := config.Metrics.Textfile; tf != "" && !strings.HasSuffix(tf, ".prom") {
		result.warn("metrics textfile '%s' should end in .prom to be picked up by the node exporter", tf)
	}
}

// validateConnectionPoolSettings validates connection pool configuration
func validateConnectionPoolSettings(config *Config, result *ValidationResult) {
	cp := &config.ConnectionPool

	if cp.MaxIdleConns < 0 {
		result.fail("connection_pool.max_idle_conns", cp.MaxIdleConns, "max idle connections cannot be negative")
	} else if cp.MaxIdleConns > 1000 {
		result.warn("max idle connections of %d is very high, may consume excessive memory", cp.MaxIdleConns)
	}

	if cp.MaxIdleConnsPerHost < 0 {
		result.fail("connection_pool.max_idle_conns_per_host", cp.MaxIdleConnsPerHost, "max idle connections per host cannot be negative")
	} else if cp.MaxIdleConnsPerHost > cp.MaxIdleConns {
		result.warn("max idle connections per host should not exceed max idle connections")
	}

	if cp.MaxConnsPerHost < 0 {
		result.fail("connection_pool.max_conns_per_host", cp.MaxConnsPerHost, "max connections per host cannot be negative")
	} else if cp.MaxConnsPerHost > 500 {
		result.warn("max connections per host of %d is very high, may overwhelm target servers", cp.MaxConnsPerHost)
	}

	if cp.IdleConnTimeout < 0 {
		result.fail("connection_pool.idle_conn_timeout", cp.IdleConnTimeout, "idle connection timeout cannot be negative")
	} else if cp.IdleConnTimeout > 300*time.Second {
		result.warn("idle connection timeout of %v is very high", cp.IdleConnTimeout)
	}

	if cp.KeepAliveTimeout < 0 {
		result.fail("connection_pool.keep_alive_timeout", cp.KeepAliveTimeout, "keep alive timeout cannot be negative")
	}

	if cp.TLSHandshakeTimeout < 0 {
		result.fail("connection_pool.tls_handshake_timeout", cp.TLSHandshakeTimeout, "TLS handshake timeout cannot be negative")
	} else if cp.TLSHandshakeTimeout < 1*time.Second {
		result.warn("TLS handshake timeout less than 1 second may cause connection failures")
	}

	if cp.ExpectContinueTimeout < 0 {
		result.fail("connection_pool.expect_continue_timeout", cp.ExpectContinueTimeout, "expect continue timeout cannot be negative")
	}

	if cp.DisableKeepAlives && cp.KeepAliveTimeout > 0 {
		result.warn("keep alive timeout is set but keep alives are disabled")
	}
}

func validateLoggingSettings(config *Config, result *ValidationResult) {
	switch strings.ToLower(config.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		result.warn("unknown log level '%s', using info", config.Logging.Level)
	}

	switch config.Logging.Format {
	case "", "text", "json":
	default:
		result.fail("logging.format", config.Logging.Format, "log format must be text or json")
	}
}

// ValidateAndLoad loads and validates a configuration file
func ValidateAndLoad(filename string) (*Config, *ValidationResult, error) {
	config, err := LoadConfig(filename)
	if err != nil {
		return nil, nil, err
	}

	return config, ValidateConfig(config), nil
}
