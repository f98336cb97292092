// Package detector scores HTTP responses for signs of block and challenge
// pages served by anti-automation layers.
package detector

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// BlockThreshold is the confidence at which a response counts as blocked.
const BlockThreshold = 0.5

// Result is the outcome of scoring one response.
type Result struct {
	IsBlocked  bool    `json:"is_blocked"`
	Reason     string  `json:"reason,omitempty"` // empty when no signal fired
	Confidence float64 `json:"confidence"`
}

// Reference is a baseline fetch of a target made without any proxy.
type Reference struct {
	Hash   string `json:"hash"`
	Length int    `json:"length"`
}

var statusLabels = map[int]string{
	401: "Unauthorized",
	403: "Forbidden",
	407: "Proxy Authentication Required",
	429: "Too Many Requests",
	503: "Service Unavailable (possibly blocked)",
}

var highConfidencePhrases = []string{
	"access denied",
	"403 forbidden",
	"401 unauthorized",
	"your ip has been blocked",
	"ip blocked",
	"ip banned",
	"you have been blocked",
	"sorry, you have been blocked",
	"request blocked",
	"access denied - akamai",
}

var mediumConfidencePhrases = []string{
	"verify you are human",
	"human verification",
	"checking your browser",
	"please wait while we verify",
	"enable javascript and cookies",
	"too many requests",
	"rate limit exceeded",
}

var lowConfidencePhrases = []string{
	"captcha",
	"recaptcha",
	"hcaptcha",
	"cloudflare",
	"security check",
}

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// Detect scores a response body. contentLength is the byte length of the
// received body and gates which tiers apply; large pages are dampened since
// an incidental keyword on a content-rich page is rarely a block.
//
// ref carries the direct fetch of the same URL. It is accepted so callers
// can thread it through, but scoring does not consult it yet.
func Detect(body string, statusCode, contentLength int, ref *Reference) Result {
	lower := strings.ToLower(body)
	title := extractTitle(lower)

	var confidence float64
	var reasons []string

	if statusCode == 403 || statusCode == 429 {
		confidence += 0.3
		reasons = append(reasons, fmt.Sprintf("HTTP %d: %s", statusCode, statusLabels[statusCode]))
	}

	for _, phrase := range highConfidencePhrases {
		if strings.Contains(title, phrase) {
			confidence += 0.5
			reasons = append(reasons, "Block indicator in title: "+phrase)
			break
		}
		if strings.Contains(lower, phrase) && contentLength < 5000 {
			confidence += 0.3
			reasons = append(reasons, "Block indicator: "+phrase)
			break
		}
	}

	if contentLength < 10000 {
		for _, phrase := range mediumConfidencePhrases {
			if strings.Contains(lower, phrase) {
				confidence += 0.2
				reasons = append(reasons, "Possible block: "+phrase)
				break
			}
		}
	}

	if contentLength < 3000 {
		matches := 0
		for _, phrase := range lowConfidencePhrases {
			if strings.Contains(lower, phrase) {
				matches++
			}
		}
		if matches >= 2 {
			confidence += 0.15
			reasons = append(reasons, "Multiple security indicators")
		}
	}

	if contentLength < 500 && statusCode >= 400 {
		confidence += 0.2
		reasons = append(reasons, "Short error response")
	}

	if contentLength < 100 && statusCode != 204 {
		confidence += 0.3
		reasons = append(reasons, "Nearly empty response")
	}

	switch {
	case contentLength > 50000:
		confidence *= 0.3
	case contentLength > 20000:
		confidence *= 0.5
	}

	confidence = math.Max(0, math.Min(1, confidence))

	return Result{
		IsBlocked:  confidence >= BlockThreshold,
		Reason:     strings.Join(reasons, "; "),
		Confidence: confidence,
	}
}

func extractTitle(lowerBody string) string {
	m := titlePattern.FindStringSubmatch(lowerBody)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ContentHash returns the hex md5 of a body, used to fingerprint references.
func ContentHash(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

// NewReference fingerprints a direct response body.
func NewReference(body []byte) *Reference {
	return &Reference{Hash: ContentHash(body), Length: len(body)}
}

// CheckIPMatch reports whether body echoes ip, which happens when a target
// reflects the caller's address.
func CheckIPMatch(body, ip string) bool {
	return ip != "" && strings.Contains(body, ip)
}
