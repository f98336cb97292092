package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
const (
	ColorPrimary   = "87"  // Cyan
	ColorSecondary = "39"  // Blue
	ColorSuccess   = "42"  // Green
	ColorError     = "196" // Red
	ColorWarning   = "214" // Orange
	ColorInfo      = "244" // Gray
	ColorMuted     = "252" // Light Gray
	ColorAccent    = "99"  // Purple
	ColorMetric    = "207" // Pink
	ColorSpinner   = "86"  // Bright Green
	ColorBorderDim = "238"
)

// Layout constants
const (
	DefaultWidth  = 60
	BorderPadding = 1
)

// Base styles
var (
	baseBlockStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, BorderPadding)

	baseTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, BorderPadding).
			Align(lipgloss.Center)
)

// Component styles
var (
	HeaderStyle = baseTitleStyle.
			Foreground(lipgloss.Color(ColorPrimary)).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorPrimary)).
			Width(DefaultWidth)

	ProgressStyle = baseBlockStyle.
			BorderForeground(lipgloss.Color(ColorSecondary)).
			Width(DefaultWidth)

	StatusBlockStyle = baseBlockStyle.
				BorderForeground(lipgloss.Color(ColorAccent))

	StatsBarStyle = lipgloss.NewStyle().
			Padding(0, BorderPadding)

	FooterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorInfo)).
			Italic(true)

	tableBorderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(ColorBorderDim))

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(ColorPrimary)).
				Bold(true).
				Padding(0, 1)

	tableCellStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

// Text styles
var (
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorSuccess)).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorError)).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorWarning)).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorInfo)).
			Italic(true)

	MetricLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(ColorInfo)).
				Bold(true)

	MetricValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(ColorSpinner)).
				Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorSpinner))

	ProxyURLStyle = lipgloss.NewStyle().
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorInfo))
)

// Spinner animation frames
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Status icons
const (
	IconSuccess = "✓"
	IconBlocked = "⊘"
	IconError   = "✗"
	IconWarning = "⚠"
)

// LatencyStyle colors a latency: under 500ms green, under 1500ms yellow,
// otherwise red.
func LatencyStyle(ms float64) lipgloss.Style {
	switch {
	case ms < 500:
		return SuccessStyle
	case ms < 1500:
		return WarningStyle
	default:
		return ErrorStyle
	}
}

// PingStyle colors a ping RTT: under 50ms green, under 150ms yellow,
// otherwise red.
func PingStyle(ms float64) lipgloss.Style {
	switch {
	case ms < 50:
		return SuccessStyle
	case ms < 150:
		return WarningStyle
	default:
		return ErrorStyle
	}
}

// RateStyle colors a success rate: 80% and up green, 50% and up yellow,
// otherwise red.
func RateStyle(percent float64) lipgloss.Style {
	switch {
	case percent >= 80:
		return SuccessStyle
	case percent >= 50:
		return WarningStyle
	default:
		return ErrorStyle
	}
}

// GetHTTPStatusStyle colors an HTTP status code by class.
func GetHTTPStatusStyle(code int) lipgloss.Style {
	switch {
	case code >= 200 && code < 300:
		return SuccessStyle
	case code >= 300 && code < 500:
		return WarningStyle
	case code >= 500:
		return ErrorStyle
	default:
		return InfoStyle
	}
}

// FormatSpeed renders a throughput in KB/s, switching to MB/s from 1024 KB/s.
func FormatSpeed(kbps float64) string {
	if kbps >= 1024 {
		return fmt.Sprintf("%.1f MB/s", kbps/1024)
	}
	return fmt.Sprintf("%.1f KB/s", kbps)
}

// FormatLatency renders milliseconds without decimals.
func FormatLatency(ms float64) string {
	return fmt.Sprintf("%.0fms", ms)
}

// FormatCount renders "current/total".
func FormatCount(current, total int) string {
	return fmt.Sprintf("%d/%d", current, total)
}

// FormatPercentage renders current as a percentage of total.
func FormatPercentage(current, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(current)/float64(total)*100)
}
