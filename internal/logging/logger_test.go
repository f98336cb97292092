package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONFormatCarriesContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: LevelDebug, Format: "json", Output: &buf})

	latency := 123.5
	logger.ProbeResult("http://1.2.3.4:8080", "https://example.com", true, &latency, "")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["proxy"] != "http://1.2.3.4:8080" || entry["url"] != "https://example.com" {
		t.Errorf("missing context fields: %v", entry)
	}
	if entry["latency_ms"] != 123.5 {
		t.Errorf("latency_ms = %v", entry["latency_ms"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: LevelInfo, Format: "text", Output: &buf})

	logger.ReferenceFetched("https://example.com", 100, true)
	if buf.Len() != 0 {
		t.Errorf("debug entry leaked at info level: %s", buf.String())
	}

	logger.ReferenceFetched("https://example.com", 0, false)
	if !strings.Contains(buf.String(), "Reference fetch failed") {
		t.Errorf("expected warning, got %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.SummaryStats(10, 5, 1, 50)
	logger.WorkerPanic("p", "boom")
}
