package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents the kinds of failure BlockHawk distinguishes
type ErrorCode int

const (
	// Configuration errors
	ErrorConfigNotFound ErrorCode = iota + 1000
	ErrorConfigInvalid
	ErrorConfigParsingFailed

	// File I/O errors
	ErrorFileNotFound
	ErrorFileReadFailed
	ErrorFileWriteFailed
	ErrorFileEmpty
	ErrorFileInvalidFormat

	// Network/Connection errors
	ErrorConnectionFailed
	ErrorConnectionTimeout
	ErrorReadTimeout
	ErrorTLSHandshakeFailed
	ErrorProxyConnectionFailed

	// HTTP errors
	ErrorHTTPRequestFailed
	ErrorHTTPInvalidResponse

	// Proxy input errors
	ErrorProxyInvalidFormat
	ErrorProxyUnsupportedType
	ErrorProxySelectionEmpty

	// Validation errors
	ErrorValidationFailed
	ErrorInvalidTargetURL

	// Auxiliary probe errors
	ErrorPingFailed
	ErrorIPCheckFailed

	// System errors
	ErrorSystemTimeout
	ErrorSystemShutdown
	ErrorUnexpectedPanic
)

var codeNames = map[ErrorCode]string{
	ErrorConfigNotFound:        "config_not_found",
	ErrorConfigInvalid:         "config_invalid",
	ErrorConfigParsingFailed:   "config_parsing_failed",
	ErrorFileNotFound:          "file_not_found",
	ErrorFileReadFailed:        "file_read_failed",
	ErrorFileWriteFailed:       "file_write_failed",
	ErrorFileEmpty:             "file_empty",
	ErrorFileInvalidFormat:     "file_invalid_format",
	ErrorConnectionFailed:      "connection_failed",
	ErrorConnectionTimeout:     "connect_timeout",
	ErrorReadTimeout:           "read_timeout",
	ErrorTLSHandshakeFailed:    "ssl_error",
	ErrorProxyConnectionFailed: "proxy_connection_failed",
	ErrorHTTPRequestFailed:     "request_failed",
	ErrorHTTPInvalidResponse:   "invalid_response",
	ErrorProxyInvalidFormat:    "proxy_invalid_format",
	ErrorProxyUnsupportedType:  "proxy_unsupported_type",
	ErrorProxySelectionEmpty:   "proxy_selection_empty",
	ErrorValidationFailed:      "validation_failed",
	ErrorInvalidTargetURL:      "invalid_target_url",
	ErrorPingFailed:            "ping_failed",
	ErrorIPCheckFailed:         "ip_check_failed",
	ErrorSystemTimeout:         "system_timeout",
	ErrorSystemShutdown:        "system_shutdown",
	ErrorUnexpectedPanic:       "test_failed",
}

// String returns a snake_case label, suitable for metric labels and JSON.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", int(c))
}

// ProxyError represents a structured error with context and error codes
type ProxyError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Operation string                 `json:"operation,omitempty"`
	Proxy     string                 `json:"proxy,omitempty"`
	URL       string                 `json:"url,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
}

func (e *ProxyError) Error() string {
	var parts []string

	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("operation=%s", e.Operation))
	}
	if e.Proxy != "" {
		parts = append(parts, fmt.Sprintf("proxy=%s", e.Proxy))
	}
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("url=%s", e.URL))
	}

	context := ""
	if len(parts) > 0 {
		context = fmt.Sprintf(" [%s]", strings.Join(parts, ", "))
	}

	result := fmt.Sprintf("[%d] %s%s", e.Code, e.Message, context)
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying error for error unwrapping
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a ProxyError with the same code
func (e *ProxyError) Is(target error) bool {
	if pe, ok := target.(*ProxyError); ok {
		return e.Code == pe.Code
	}
	return false
}

// WithDetail adds a detail to the error
func (e *ProxyError) WithDetail(key string, value interface{}) *ProxyError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithProxy adds proxy context to the error
func (e *ProxyError) WithProxy(proxy string) *ProxyError {
	e.Proxy = proxy
	return e
}

// WithURL adds URL context to the error
func (e *ProxyError) WithURL(url string) *ProxyError {
	e.URL = url
	return e
}

// NewConfigError creates a configuration-related error
func NewConfigError(code ErrorCode, message string, cause error) *ProxyError {
	return &ProxyError{Code: code, Message: message, Operation: "config", Cause: cause}
}

// NewFileError creates a file I/O related error
func NewFileError(code ErrorCode, message string, filename string, cause error) *ProxyError {
	return &ProxyError{
		Code:      code,
		Message:   message,
		Operation: "file",
		Cause:     cause,
		Details:   map[string]interface{}{"filename": filename},
	}
}

// NewNetworkError creates a network-related error. Message is the short
// operator-facing description recorded on a failed probe.
func NewNetworkError(code ErrorCode, message string, proxy string, cause error) *ProxyError {
	return &ProxyError{Code: code, Message: message, Operation: "network", Proxy: proxy, Cause: cause}
}

// NewHTTPError creates an HTTP-related error
func NewHTTPError(code ErrorCode, message string, url string, cause error) *ProxyError {
	return &ProxyError{Code: code, Message: message, Operation: "http", URL: url, Cause: cause}
}

// NewProxyError creates an error about proxy input
func NewProxyError(code ErrorCode, message string, proxy string, cause error) *ProxyError {
	return &ProxyError{Code: code, Message: message, Operation: "proxy", Proxy: proxy, Cause: cause}
}

// NewValidationError creates a validation error
func NewValidationError(code ErrorCode, message string, value string, cause error) *ProxyError {
	return &ProxyError{
		Code:      code,
		Message:   message,
		Operation: "validation",
		Cause:     cause,
		Details:   map[string]interface{}{"value": value},
	}
}

// NewSystemError creates a system-level error
func NewSystemError(code ErrorCode, message string, cause error) *ProxyError {
	return &ProxyError{Code: code, Message: message, Operation: "system", Cause: cause}
}

func codeOf(err error) (ErrorCode, bool) {
	var pe *ProxyError
	if stderrors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}

func inRange(err error, lo, hi ErrorCode) bool {
	code, ok := codeOf(err)
	return ok && code >= lo && code <= hi
}

// IsConfigError checks if the error is configuration-related
func IsConfigError(err error) bool {
	return inRange(err, ErrorConfigNotFound, ErrorConfigParsingFailed)
}

// IsFileError checks if the error is file I/O related
func IsFileError(err error) bool {
	return inRange(err, ErrorFileNotFound, ErrorFileInvalidFormat)
}

// IsNetworkError checks if the error is network-related
func IsNetworkError(err error) bool {
	return inRange(err, ErrorConnectionFailed, ErrorProxyConnectionFailed)
}

// IsHTTPError checks if the error is HTTP-related
func IsHTTPError(err error) bool {
	return inRange(err, ErrorHTTPRequestFailed, ErrorHTTPInvalidResponse)
}

// IsProxyError checks if the error concerns proxy input
func IsProxyError(err error) bool {
	return inRange(err, ErrorProxyInvalidFormat, ErrorProxySelectionEmpty)
}

// IsValidationError checks if the error is validation-related
func IsValidationError(err error) bool {
	return inRange(err, ErrorValidationFailed, ErrorInvalidTargetURL)
}

// IsProbeError checks if the error came from the ping or IP-check probes
func IsProbeError(err error) bool {
	return inRange(err, ErrorPingFailed, ErrorIPCheckFailed)
}

// IsSystemError checks if the error is system-related
func IsSystemError(err error) bool {
	return inRange(err, ErrorSystemTimeout, ErrorUnexpectedPanic)
}

// IsTimeout reports whether the error is any kind of timeout
func IsTimeout(err error) bool {
	code, ok := codeOf(err)
	if !ok {
		return false
	}
	switch code {
	case ErrorConnectionTimeout, ErrorReadTimeout, ErrorSystemTimeout:
		return true
	}
	return false
}

// IsInputError reports whether the error should reject the whole run before
// any testing begins.
func IsInputError(err error) bool {
	return IsFileError(err) || IsProxyError(err) || IsConfigError(err) ||
		IsValidationError(err)
}

// GetErrorCategory returns a human-readable category for the error
func GetErrorCategory(err error) string {
	code, ok := codeOf(err)
	if !ok {
		return "Generic"
	}
	switch {
	case IsConfigError(err):
		return "Configuration"
	case IsFileError(err):
		return "File I/O"
	case IsNetworkError(err):
		return "Network"
	case IsHTTPError(err):
		return "HTTP"
	case IsProxyError(err):
		return "Proxy"
	case IsValidationError(err):
		return "Validation"
	case IsProbeError(err):
		return "Probe"
	case IsSystemError(err):
		return "System"
	default:
		return fmt.Sprintf("Unknown (%d)", code)
	}
}
