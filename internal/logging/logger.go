package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger provides structured logging capabilities
type Logger struct {
	*slog.Logger
}

// LogLevel represents log level constants
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config represents logger configuration
type Config struct {
	Level  LogLevel
	Format string // "json" or "text"
	Output io.Writer
}

// NewLogger creates a new structured logger
func NewLogger(config Config) *Logger {
	var level slog.Level
	switch config.Level {
	case LevelDebug:
		level = slog.LevelDebug
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a logger that drops everything, for tests and quiet runs.
func Discard() *Logger {
	return NewLogger(Config{Level: LevelError, Output: io.Discard})
}

// WithContext adds contextual fields to the logger
func (l *Logger) WithContext(args ...any) *Logger {
	return &Logger{Logger: l.With(args...)}
}

// WithWorker adds worker ID context
func (l *Logger) WithWorker(workerID int) *Logger {
	return l.WithContext("worker", workerID)
}

// WithProxy adds proxy context
func (l *Logger) WithProxy(proxy string) *Logger {
	return l.WithContext("proxy", proxy)
}

// WithURL adds target URL context
func (l *Logger) WithURL(url string) *Logger {
	return l.WithContext("url", url)
}

// ConfigLoaded logs successful configuration loading
func (l *Logger) ConfigLoaded(file string) {
	l.Info("Configuration loaded", "file", file)
}

// ConfigNotFound logs when config file is not found
func (l *Logger) ConfigNotFound(file string) {
	l.Warn("Config file not found, using defaults", "file", file)
}

// ProxiesLoaded logs successful proxy loading
func (l *Logger) ProxiesLoaded(count int, file string) {
	l.Info("Proxies loaded", "count", count, "file", file)
}

// ReferenceFetched logs the outcome of a direct baseline fetch
func (l *Logger) ReferenceFetched(url string, length int, ok bool) {
	if !ok {
		l.WithURL(url).Warn("Reference fetch failed, continuing without baseline")
		return
	}
	l.WithURL(url).Debug("Reference fetched", "bytes", length)
}

// RunStart logs the start of a test run
func (l *Logger) RunStart(proxies, urls, concurrency int) {
	l.Info("Starting proxy tests", "proxies", proxies, "urls", urls, "concurrency", concurrency)
}

// ProbeResult logs one finished probe at debug level
func (l *Logger) ProbeResult(proxy, url string, working bool, latencyMs *float64, errText string) {
	logger := l.WithProxy(proxy).WithURL(url)
	if errText != "" {
		logger.Debug("Probe failed", "error", errText)
		return
	}
	args := []any{"working", working}
	if latencyMs != nil {
		args = append(args, "latency_ms", *latencyMs)
	}
	logger.Debug("Probe finished", args...)
}

// WorkerPanic logs a task that crashed and was converted into a failure
func (l *Logger) WorkerPanic(proxy string, recovered any) {
	l.WithProxy(proxy).Error("Test task panicked", "panic", recovered)
}

// ShutdownReceived logs shutdown signal
func (l *Logger) ShutdownReceived() {
	l.Info("Shutdown signal received, finishing in-flight probes...")
}

// ResultsSaved logs when results are saved to file
func (l *Logger) ResultsSaved(file string, format string) {
	l.Info("Results saved", "file", file, "format", format)
}

// SummaryStats logs summary statistics
func (l *Logger) SummaryStats(total, working, blocked int, successRate float64) {
	l.Info("Summary statistics",
		"total_proxies", total,
		"working_proxies", working,
		"blocked_proxies", blocked,
		"success_rate_percent", successRate,
	)
}
