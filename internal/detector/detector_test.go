package detector

import (
	"math"
	"strings"
	"testing"
)

const epsilon = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		status     int
		length     int // -1 means len(body)
		confidence float64
		blocked    bool
		reason     string
	}{
		{
			name:       "title access denied with 403",
			body:       "<html><head><title>Access Denied</title></head><body>" + strings.Repeat("x", 600) + "</body></html>",
			status:     403,
			length:     -1,
			confidence: 0.8,
			blocked:    true,
			reason:     "HTTP 403: Forbidden; Block indicator in title: access denied",
		},
		{
			name:       "body phrase on small page",
			body:       "<p>Your IP has been blocked by the firewall.</p>" + strings.Repeat(" ", 600),
			status:     200,
			length:     -1,
			confidence: 0.3,
			blocked:    false,
			reason:     "Block indicator: your ip has been blocked",
		},
		{
			name:       "body phrase ignored on larger page",
			body:       "request blocked",
			status:     200,
			length:     6000,
			confidence: 0,
			blocked:    false,
		},
		{
			name:       "medium challenge language",
			body:       "Checking your browser before accessing. Too many requests.",
			status:     503,
			length:     5000,
			confidence: 0.2,
			blocked:    false,
			reason:     "Possible block: checking your browser",
		},
		{
			name:       "429 with rate limit text",
			body:       "Rate limit exceeded",
			status:     429,
			length:     -1,
			confidence: 1.0,
			blocked:    true,
			reason:     "HTTP 429: Too Many Requests; Possible block: rate limit exceeded; Short error response; Nearly empty response",
		},
		{
			name:       "multiple low indicators",
			body:       "Cloudflare security check",
			status:     200,
			length:     2000,
			confidence: 0.15,
			blocked:    false,
			reason:     "Multiple security indicators",
		},
		{
			name:       "single low indicator",
			body:       "please solve the captcha",
			status:     200,
			length:     2000,
			confidence: 0,
		},
		{
			name:       "nearly empty 200",
			body:       "ok",
			status:     200,
			length:     -1,
			confidence: 0.3,
			reason:     "Nearly empty response",
		},
		{
			name:       "204 is not nearly empty",
			body:       "",
			status:     204,
			length:     0,
			confidence: 0,
		},
		{
			name:       "large page dampened",
			body:       "<title>Access Denied</title>",
			status:     403,
			length:     60000,
			confidence: 0.8 * 0.3,
			blocked:    false,
			reason:     "HTTP 403: Forbidden; Block indicator in title: access denied",
		},
		{
			name:       "medium page dampened by half",
			body:       "<title>Access Denied</title>",
			status:     403,
			length:     30000,
			confidence: 0.4,
			blocked:    false,
			reason:     "HTTP 403: Forbidden; Block indicator in title: access denied",
		},
		{
			name:       "clamped to one",
			body:       "<title>IP Banned</title> verify you are human captcha cloudflare",
			status:     403,
			length:     50,
			confidence: 1.0,
			blocked:    true,
		},
		{
			name:       "title spans newlines",
			body:       "<TITLE lang=\"en\">\n  Request Blocked\n</TITLE>" + strings.Repeat("a", 10000),
			status:     200,
			length:     -1,
			confidence: 0.5,
			blocked:    true,
			reason:     "Block indicator in title: request blocked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			length := tt.length
			if length < 0 {
				length = len(tt.body)
			}
			got := Detect(tt.body, tt.status, length, nil)

			if !approx(got.Confidence, tt.confidence) {
				t.Errorf("Confidence = %v, want %v (reason %q)", got.Confidence, tt.confidence, got.Reason)
			}
			if got.IsBlocked != tt.blocked {
				t.Errorf("IsBlocked = %v, want %v", got.IsBlocked, tt.blocked)
			}
			if tt.reason != "" && got.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.reason)
			}
		})
	}
}

func TestDetectNoSignalHasNoReason(t *testing.T) {
	body := "<html><body>" + strings.Repeat("hello world ", 200) + "</body></html>"
	got := Detect(body, 200, len(body), &Reference{Hash: "abc", Length: len(body)})
	if got.Reason != "" || got.Confidence != 0 || got.IsBlocked {
		t.Errorf("Detect() = %+v, want zero result", got)
	}
}

func TestLargeLegitimatePageWithOneCaptcha(t *testing.T) {
	body := "<html><body>" + strings.Repeat("lorem ipsum ", 5000) + "captcha</body></html>"
	got := Detect(body, 200, len(body), nil)
	if got.IsBlocked {
		t.Errorf("large legitimate page flagged: %+v", got)
	}
}

func TestHighTierContributesOnce(t *testing.T) {
	body := "access denied. ip blocked. request blocked."
	got := Detect(body, 200, 1000, nil)
	if !approx(got.Confidence, 0.3) {
		t.Errorf("Confidence = %v, want 0.3", got.Confidence)
	}
	if got.Reason != "Block indicator: access denied" {
		t.Errorf("Reason = %q", got.Reason)
	}
}

func TestTitleBeatsBodyForSamePhrase(t *testing.T) {
	body := "<title>You have been blocked</title>"
	got := Detect(body, 200, 1000, nil)
	if got.Reason != "Block indicator in title: you have been blocked" {
		t.Errorf("Reason = %q", got.Reason)
	}
}

func TestContentHashAndReference(t *testing.T) {
	if got := ContentHash([]byte("hello")); got != "5d41402abc4b2a76b9719d911017c592" {
		t.Errorf("ContentHash = %s", got)
	}
	ref := NewReference([]byte("hello"))
	if ref.Length != 5 || ref.Hash != ContentHash([]byte("hello")) {
		t.Errorf("NewReference = %+v", ref)
	}
}

func TestCheckIPMatch(t *testing.T) {
	if !CheckIPMatch(`{"origin": "203.0.113.7"}`, "203.0.113.7") {
		t.Error("expected match")
	}
	if CheckIPMatch(`{"origin": "198.51.100.1"}`, "203.0.113.7") {
		t.Error("unexpected match")
	}
	if CheckIPMatch("anything", "") {
		t.Error("empty ip must not match")
	}
}

func TestLooksLegitimate(t *testing.T) {
	filler := strings.Repeat("<p>content</p>", 100)

	tests := []struct {
		name string
		body string
		want bool
	}{
		{"full page", "<!DOCTYPE html><html><head></head><body>" + filler + "</body></html>", true},
		{"uppercase tags", "<HTML><BODY>" + filler + "</BODY></HTML>", true},
		{"too short", "<html><body>hi</body></html>", false},
		{"no body", "<html><head>" + filler + "</head></html>", false},
		{"plain text", strings.Repeat("not html ", 200), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooksLegitimate(tt.body); got != tt.want {
				t.Errorf("LooksLegitimate() = %v, want %v", got, tt.want)
			}
		})
	}
}
