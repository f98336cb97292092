package validation

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/ResistanceIsUseless/BlockHawk/internal/proxy"
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Code    ValidationErrorCode
}

// ValidationErrorCode represents different types of validation errors
type ValidationErrorCode int

const (
	ErrorInvalidURL ValidationErrorCode = iota
	ErrorInvalidHost
	ErrorInvalidPort
	ErrorInvalidScheme
	ErrorPrivateIP
)

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s (value: %s)", e.Field, e.Message, e.Value)
}

var hostnamePattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?$`)

// ProxyValidator checks proxy descriptors and target URLs before a run
type ProxyValidator struct {
	allowPrivateIPs   bool
	maxHostnameLength int
}

// NewProxyValidator creates a validator that accepts private and loopback
// proxy addresses, since local proxies are a common test target.
func NewProxyValidator() *ProxyValidator {
	return &ProxyValidator{
		allowPrivateIPs:   true,
		maxHostnameLength: 253,
	}
}

// WithAllowPrivateIPs configures whether private IPs are allowed
func (v *ProxyValidator) WithAllowPrivateIPs(allow bool) *ProxyValidator {
	v.allowPrivateIPs = allow
	return v
}

// ValidateProxy checks the host and port of a parsed proxy.
func (v *ProxyValidator) ValidateProxy(p proxy.Proxy) error {
	if p.Port < 1 || p.Port > 65535 {
		return ValidationError{
			Field:   "port",
			Value:   fmt.Sprint(p.Port),
			Message: "port must be between 1 and 65535",
			Code:    ErrorInvalidPort,
		}
	}
	if _, ok := proxy.ParseType(string(p.Type)); !ok {
		return ValidationError{
			Field:   "type",
			Value:   string(p.Type),
			Message: "proxy type must be http, https or socks5",
			Code:    ErrorInvalidScheme,
		}
	}
	return v.validateHostname(p.Host)
}

// NormalizeTargetURL trims raw, defaults the scheme to https:// and checks
// that the result is an absolute http(s) URL with a valid host.
func (v *ProxyValidator) NormalizeTargetURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ValidationError{Field: "url", Value: raw, Message: "URL cannot be empty", Code: ErrorInvalidURL}
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", ValidationError{
			Field:   "url",
			Value:   raw,
			Message: fmt.Sprintf("failed to parse URL: %v", err),
			Code:    ErrorInvalidURL,
		}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ValidationError{
			Field:   "scheme",
			Value:   parsed.Scheme,
			Message: "target URLs must use http or https",
			Code:    ErrorInvalidScheme,
		}
	}
	parsed.Scheme = scheme

	host := parsed.Hostname()
	if host == "" {
		return "", ValidationError{Field: "host", Value: raw, Message: "host is required", Code: ErrorInvalidHost}
	}
	if ip := net.ParseIP(host); ip == nil {
		if err := v.validateHostnameFormat(host); err != nil {
			return "", err
		}
	}

	return parsed.String(), nil
}

// validateHostname validates a hostname or IP address
func (v *ProxyValidator) validateHostname(hostname string) error {
	if hostname == "" {
		return ValidationError{Field: "hostname", Value: hostname, Message: "hostname cannot be empty", Code: ErrorInvalidHost}
	}
	if len(hostname) > v.maxHostnameLength {
		return ValidationError{
			Field:   "hostname",
			Value:   hostname,
			Message: fmt.Sprintf("hostname too long (max: %d characters)", v.maxHostnameLength),
			Code:    ErrorInvalidHost,
		}
	}

	if ip := net.ParseIP(hostname); ip != nil {
		return v.validateIPAddress(ip)
	}
	return v.validateHostnameFormat(hostname)
}

func (v *ProxyValidator) validateIPAddress(ip net.IP) error {
	if ip.IsUnspecified() || ip.IsMulticast() {
		return ValidationError{
			Field:   "ip_address",
			Value:   ip.String(),
			Message: "address cannot be used as a proxy",
			Code:    ErrorInvalidHost,
		}
	}
	if !v.allowPrivateIPs && (ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()) {
		return ValidationError{
			Field:   "ip_address",
			Value:   ip.String(),
			Message: "private IP addresses are not allowed",
			Code:    ErrorPrivateIP,
		}
	}
	return nil
}

// validateHostnameFormat checks RFC 1123 hostname syntax
func (v *ProxyValidator) validateHostnameFormat(hostname string) error {
	if !hostnamePattern.MatchString(hostname) {
		return ValidationError{
			Field:   "hostname",
			Value:   hostname,
			Message: "invalid hostname format",
			Code:    ErrorInvalidHost,
		}
	}
	return nil
}
