package checker

import (
	"github.com/ResistanceIsUseless/BlockHawk/internal/detector"
	"github.com/ResistanceIsUseless/BlockHawk/internal/errors"
	"github.com/ResistanceIsUseless/BlockHawk/internal/proxy"
)

// blockedWorkingLimit is the block confidence above which a blocked
// response no longer counts as a working proxy.
const blockedWorkingLimit = 0.6

// URLTestResult is the outcome of probing one URL through one proxy.
// Pointer fields are nil when the value was not measured.
type URLTestResult struct {
	URL            string           `json:"url"`
	Success        bool             `json:"success"`
	HTTPStatus     *int             `json:"http_status,omitempty"`
	Error          string           `json:"error,omitempty"`
	ErrorCode      errors.ErrorCode `json:"-"`
	LatencyMs      *float64         `json:"latency_ms,omitempty"`
	ThroughputKBps *float64         `json:"throughput_kbps,omitempty"`
	ContentLength  int              `json:"content_length"`
	Block          *detector.Result `json:"block,omitempty"`
}

// IsWorking reports whether the probe got a usable answer: a response below
// 500 that is not a confident block page.
func (r URLTestResult) IsWorking() bool {
	if !r.Success || r.HTTPStatus == nil || *r.HTTPStatus >= 500 {
		return false
	}
	return !r.IsBlocked()
}

// IsBlocked reports whether the response was a confident block page.
func (r URLTestResult) IsBlocked() bool {
	return r.Block != nil && r.Block.IsBlocked && r.Block.Confidence > blockedWorkingLimit
}

// Outcome labels a URL result for reporting.
type Outcome string

const (
	OutcomeWorking Outcome = "working"
	OutcomeBlocked Outcome = "blocked"
	OutcomeFailed  Outcome = "failed"
)

// Outcome reports working, blocked, or failed. Server errors count as failed.
func (r URLTestResult) Outcome() Outcome {
	switch {
	case r.IsWorking():
		return OutcomeWorking
	case r.IsBlocked():
		return OutcomeBlocked
	default:
		return OutcomeFailed
	}
}

// Aux holds the per-proxy probes that run after the HTTP probe.
type Aux struct {
	PingMs      *float64 `json:"ping_ms,omitempty"`
	PingError   string   `json:"ping_error,omitempty"`
	DetectedIP  string   `json:"detected_ip,omitempty"`
	Country     string   `json:"country,omitempty"`
	Transparent bool     `json:"transparent,omitempty"`
}

// TestResult is the single-URL outcome for one proxy.
type TestResult struct {
	Proxy proxy.Proxy `json:"proxy"`
	URLTestResult
	Aux
}

// MultiURLTestResult aggregates one proxy's results over several URLs.
type MultiURLTestResult struct {
	Proxy      proxy.Proxy              `json:"proxy"`
	URLs       []string                 `json:"urls"`
	URLResults map[string]URLTestResult `json:"url_results"`
	Aux
}

// Results returns the per-URL results in target order.
func (m MultiURLTestResult) Results() []URLTestResult {
	out := make([]URLTestResult, 0, len(m.URLResults))
	for _, u := range m.URLs {
		if r, ok := m.URLResults[u]; ok {
			out = append(out, r)
		}
	}
	return out
}

// WorkingCount is the number of URLs that worked.
func (m MultiURLTestResult) WorkingCount() int {
	n := 0
	for _, r := range m.URLResults {
		if r.IsWorking() {
			n++
		}
	}
	return n
}

// TotalCount is the number of URLs tested.
func (m MultiURLTestResult) TotalCount() int {
	return len(m.URLResults)
}

// IsFullyWorking reports whether at least one URL was tested and all worked.
func (m MultiURLTestResult) IsFullyWorking() bool {
	return len(m.URLResults) > 0 && m.WorkingCount() == len(m.URLResults)
}

// AnyWorking reports whether at least one URL worked.
func (m MultiURLTestResult) AnyWorking() bool {
	return m.WorkingCount() > 0
}

// AvgLatency is the mean latency over working URLs that recorded one, or
// nil when there are none.
func (m MultiURLTestResult) AvgLatency() *float64 {
	var sum float64
	n := 0
	for _, r := range m.URLResults {
		if r.IsWorking() && r.LatencyMs != nil {
			sum += *r.LatencyMs
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

// failed builds a failed result carrying only the URL and error text.
func failed(url string, err *errors.ProxyError) URLTestResult {
	return URLTestResult{URL: url, Error: err.Message, ErrorCode: err.Code}
}

func ptr[T any](v T) *T {
	return &v
}
