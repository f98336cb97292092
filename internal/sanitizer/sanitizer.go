package sanitizer

import (
	"html"
	"net"
	"regexp"
	"strings"
)

// Sanitizer cleans text that came from remote servers before it is written
// to reports. Error strings, block reasons and exit IPs are all derived from
// responses the proxy controls.
type Sanitizer struct {
	allowHTML bool
	maxLength int
}

// Config represents sanitizer configuration
type Config struct {
	AllowHTML bool // Keep markup but strip script-like patterns (default: escape everything)
	MaxLength int  // Maximum length for string fields (default: 1000)
}

// NewSanitizer creates a new sanitizer with the given configuration
func NewSanitizer(config Config) *Sanitizer {
	if config.MaxLength == 0 {
		config.MaxLength = 1000
	}
	return &Sanitizer{
		allowHTML: config.AllowHTML,
		maxLength: config.MaxLength,
	}
}

// DefaultSanitizer returns a sanitizer with secure defaults
func DefaultSanitizer() *Sanitizer {
	return NewSanitizer(Config{MaxLength: 1000})
}

var (
	// XSS patterns - common script injection attempts
	xssPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe>`),
		regexp.MustCompile(`(?i)<embed[^>]*>`),
		regexp.MustCompile(`(?is)<object[^>]*>.*?</object>`),
		regexp.MustCompile(`(?i)<meta[^>]*>`),
		regexp.MustCompile(`(?i)<link[^>]*>`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)vbscript:`),
		regexp.MustCompile(`(?i)on(?:load|error|click|mouseover)\s*=`),
		regexp.MustCompile(`(?i)eval\s*\(`),
	}

	controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0B-\x0C\x0E-\x1F\x7F]`)
	whitespacePattern  = regexp.MustCompile(`\s+`)

	windowsPathPattern = regexp.MustCompile(`[A-Za-z]:\\[\w\\.-]+`)
	unixPathPattern    = regexp.MustCompile(`(?:^|\s)/[\w.-]+(?:/[\w.-]+)+`)
	credentialPattern  = regexp.MustCompile(`://[^:/@\s]+:[^@\s]+@`)
	authHeaderPattern  = regexp.MustCompile(`(?i)(proxy-)?authorization:\s*[^\n\r]*`)
)

// SanitizeString strips control characters, caps the length, neutralizes
// markup and collapses whitespace.
func (s *Sanitizer) SanitizeString(input string) string {
	if input == "" {
		return input
	}

	if len(input) > s.maxLength {
		input = input[:s.maxLength] + "..."
	}

	input = controlCharPattern.ReplaceAllString(input, "")

	if !s.allowHTML {
		input = html.EscapeString(input)
	} else {
		for _, pattern := range xssPatterns {
			input = pattern.ReplaceAllString(input, "[FILTERED]")
		}
	}

	input = strings.TrimSpace(input)
	return whitespacePattern.ReplaceAllString(input, " ")
}

// SanitizeIP returns the canonical form of an IP address, or "" when the
// input is not one.
func (s *Sanitizer) SanitizeIP(input string) string {
	input = strings.TrimSpace(input)
	if ip := net.ParseIP(input); ip != nil {
		return ip.String()
	}
	return ""
}

// SanitizeError sanitizes error messages while preserving useful information.
// Local file paths and URL credentials are masked.
func (s *Sanitizer) SanitizeError(input string) string {
	if input == "" {
		return input
	}

	sanitized := credentialPattern.ReplaceAllString(input, "://[USER]:[PASS]@")
	sanitized = s.SanitizeString(sanitized)
	sanitized = windowsPathPattern.ReplaceAllString(sanitized, "[PATH]")
	sanitized = unixPathPattern.ReplaceAllStringFunc(sanitized, func(m string) string {
		if strings.HasPrefix(m, " ") || strings.HasPrefix(m, "\t") {
			return m[:1] + "[PATH]"
		}
		return "[PATH]"
	})
	return sanitized
}

// SanitizeDebugInfo cleans a response excerpt for debug logs. Line structure
// is kept; authorization headers and URL credentials are redacted.
func (s *Sanitizer) SanitizeDebugInfo(input string) string {
	if input == "" {
		return input
	}

	sanitized := input
	if len(sanitized) > 5000 {
		sanitized = sanitized[:5000] + "..."
	}

	sanitized = controlCharPattern.ReplaceAllString(sanitized, "")
	sanitized = authHeaderPattern.ReplaceAllStringFunc(sanitized, func(m string) string {
		if strings.HasPrefix(strings.ToLower(m), "proxy-") {
			return "proxy-authorization: [REDACTED]"
		}
		return "authorization: [REDACTED]"
	})
	sanitized = credentialPattern.ReplaceAllString(sanitized, "://[USER]:[PASS]@")

	if !s.allowHTML {
		sanitized = html.EscapeString(sanitized)
	} else {
		for _, pattern := range xssPatterns {
			sanitized = pattern.ReplaceAllString(sanitized, "[FILTERED]")
		}
	}

	return strings.TrimSpace(sanitized)
}
