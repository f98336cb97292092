package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ResistanceIsUseless/BlockHawk/internal/checker"
	"github.com/ResistanceIsUseless/BlockHawk/internal/errors"
	"github.com/ResistanceIsUseless/BlockHawk/internal/sanitizer"
)

// Proxy outcomes in reports. Multi-URL runs add partial for proxies that
// worked for some targets only.
const (
	StatusWorking = "working"
	StatusBlocked = "blocked"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// URLResultOutput is one target's result inside a multi-URL report row.
type URLResultOutput struct {
	URL             string   `json:"url"`
	Outcome         string   `json:"outcome"`
	HTTPStatus      *int     `json:"http_status,omitempty"`
	LatencyMs       *float64 `json:"latency_ms,omitempty"`
	BlockConfidence float64  `json:"block_confidence"`
	BlockReason     string   `json:"block_reason,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// ProxyResultOutput represents a proxy result for output formatting
type ProxyResultOutput struct {
	Proxy           string            `json:"proxy"`
	Type            string            `json:"type"`
	Status          string            `json:"status"`
	Working         bool              `json:"working"`
	HTTPStatus      *int              `json:"http_status,omitempty"`
	LatencyMs       *float64          `json:"latency_ms,omitempty"`
	ThroughputKBps  *float64          `json:"throughput_kbps,omitempty"`
	BlockConfidence float64           `json:"block_confidence"`
	BlockReason     string            `json:"block_reason,omitempty"`
	PingMs          *float64          `json:"ping_ms,omitempty"`
	PingError       string            `json:"ping_error,omitempty"`
	DetectedIP      string            `json:"detected_ip,omitempty"`
	Country         string            `json:"country,omitempty"`
	Transparent     bool              `json:"transparent"`
	WorkingURLs     int               `json:"working_urls,omitempty"`
	TotalURLs       int               `json:"total_urls,omitempty"`
	URLs            []URLResultOutput `json:"urls,omitempty"`
	Error           string            `json:"error,omitempty"`

	// line is the unmasked proxy line, written only to the working list.
	line string
}

// SummaryOutput represents summary statistics for output
type SummaryOutput struct {
	RunID              string              `json:"run_id"`
	GeneratedAt        time.Time           `json:"generated_at"`
	Targets            []string            `json:"targets"`
	TotalProxies       int                 `json:"total_proxies"`
	WorkingProxies     int                 `json:"working_proxies"`
	PartialProxies     int                 `json:"partial_proxies"`
	BlockedProxies     int                 `json:"blocked_proxies"`
	FailedProxies      int                 `json:"failed_proxies"`
	TransparentProxies int                 `json:"transparent_proxies"`
	SuccessRate        float64             `json:"success_rate"`
	AverageLatencyMs   *float64            `json:"average_latency_ms,omitempty"`
	Results            []ProxyResultOutput `json:"results"`
}

// ConvertToOutputFormat converts single-URL results using the default sanitizer.
func ConvertToOutputFormat(results []checker.TestResult) []ProxyResultOutput {
	return ConvertToOutputFormatWithSanitizer(results, sanitizer.DefaultSanitizer())
}

// ConvertToOutputFormatWithSanitizer converts single-URL results, cleaning
// every field that came from a remote server.
func ConvertToOutputFormatWithSanitizer(results []checker.TestResult, s *sanitizer.Sanitizer) []ProxyResultOutput {
	out := make([]ProxyResultOutput, len(results))
	for i, r := range results {
		row := ProxyResultOutput{
			Proxy:          r.Proxy.String(),
			Type:           string(r.Proxy.Type),
			Status:         string(r.Outcome()),
			Working:        r.IsWorking(),
			HTTPStatus:     r.HTTPStatus,
			LatencyMs:      r.LatencyMs,
			ThroughputKBps: r.ThroughputKBps,
			Error:          s.SanitizeError(r.Error),
			line:           r.Proxy.Line(),
		}
		if r.Block != nil {
			row.BlockConfidence = r.Block.Confidence
			row.BlockReason = s.SanitizeString(r.Block.Reason)
		}
		applyAux(&row, r.Aux, s)
		out[i] = row
	}
	return out
}

// ConvertMultiToOutputFormat converts multi-URL results using the default sanitizer.
func ConvertMultiToOutputFormat(results []checker.MultiURLTestResult) []ProxyResultOutput {
	return ConvertMultiToOutputFormatWithSanitizer(results, sanitizer.DefaultSanitizer())
}

// ConvertMultiToOutputFormatWithSanitizer converts multi-URL results. The row
// latency is the average over working URLs.
func ConvertMultiToOutputFormatWithSanitizer(results []checker.MultiURLTestResult, s *sanitizer.Sanitizer) []ProxyResultOutput {
	out := make([]ProxyResultOutput, len(results))
	for i, m := range results {
		row := ProxyResultOutput{
			Proxy:       m.Proxy.String(),
			Type:        string(m.Proxy.Type),
			Status:      multiStatus(m),
			Working:     m.IsFullyWorking(),
			LatencyMs:   m.AvgLatency(),
			WorkingURLs: m.WorkingCount(),
			TotalURLs:   m.TotalCount(),
			line:        m.Proxy.Line(),
		}
		for _, r := range m.Results() {
			u := URLResultOutput{
				URL:        r.URL,
				Outcome:    string(r.Outcome()),
				HTTPStatus: r.HTTPStatus,
				LatencyMs:  r.LatencyMs,
				Error:      s.SanitizeError(r.Error),
			}
			if r.Block != nil {
				u.BlockConfidence = r.Block.Confidence
				u.BlockReason = s.SanitizeString(r.Block.Reason)
				row.BlockConfidence = max(row.BlockConfidence, r.Block.Confidence)
			}
			row.URLs = append(row.URLs, u)
		}
		applyAux(&row, m.Aux, s)
		out[i] = row
	}
	return out
}

func applyAux(row *ProxyResultOutput, aux checker.Aux, s *sanitizer.Sanitizer) {
	row.PingMs = aux.PingMs
	row.PingError = s.SanitizeString(aux.PingError)
	row.DetectedIP = s.SanitizeIP(aux.DetectedIP)
	row.Country = s.SanitizeString(aux.Country)
	row.Transparent = aux.Transparent
}

func multiStatus(m checker.MultiURLTestResult) string {
	switch {
	case m.IsFullyWorking():
		return StatusWorking
	case m.AnyWorking():
		return StatusPartial
	}
	for _, r := range m.URLResults {
		if r.IsBlocked() {
			return StatusBlocked
		}
	}
	return StatusFailed
}

// GenerateSummary creates a summary from converted results and stamps it
// with a fresh run ID.
func GenerateSummary(targets []string, results []ProxyResultOutput) SummaryOutput {
	summary := SummaryOutput{
		RunID:        uuid.NewString(),
		GeneratedAt:  time.Now().UTC(),
		Targets:      targets,
		TotalProxies: len(results),
		Results:      results,
	}

	var totalLatency float64
	var latencyCount int

	for _, result := range results {
		switch result.Status {
		case StatusWorking:
			summary.WorkingProxies++
		case StatusPartial:
			summary.PartialProxies++
		case StatusBlocked:
			summary.BlockedProxies++
		default:
			summary.FailedProxies++
		}
		if result.Transparent {
			summary.TransparentProxies++
		}
		if result.Working && result.LatencyMs != nil {
			totalLatency += *result.LatencyMs
			latencyCount++
		}
	}

	if summary.TotalProxies > 0 {
		summary.SuccessRate = float64(summary.WorkingProxies) / float64(summary.TotalProxies) * 100
	}
	if latencyCount > 0 {
		avg := totalLatency / float64(latencyCount)
		summary.AverageLatencyMs = &avg
	}

	return summary
}

func create(filename string) (*os.File, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, errors.NewFileError(errors.ErrorFileWriteFailed, "cannot create output file", filename, err)
	}
	return file, nil
}

func closeFile(file *os.File, err error) error {
	if cerr := file.Close(); err == nil && cerr != nil {
		return errors.NewFileError(errors.ErrorFileWriteFailed, "cannot write output file", file.Name(), cerr)
	}
	return err
}

// WriteTextOutput writes a human-readable report to filename.
func WriteTextOutput(filename string, summary SummaryOutput) (err error) {
	file, err := create(filename)
	if err != nil {
		return err
	}
	defer func() { err = closeFile(file, err) }()

	return writeText(file, summary)
}

func writeText(w io.Writer, summary SummaryOutput) error {
	fmt.Fprintf(w, "BlockHawk Results - %s\n", summary.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Run ID: %s\n", summary.RunID)
	for _, t := range summary.Targets {
		fmt.Fprintf(w, "Target: %s\n", t)
	}
	fmt.Fprintf(w, "=====================================\n\n")

	for _, result := range summary.Results {
		mark := "❌"
		switch result.Status {
		case StatusWorking:
			mark = "✅"
		case StatusPartial:
			mark = "⚠️"
		case StatusBlocked:
			mark = "🚫"
		}

		fmt.Fprintf(w, "%s %s (%s)", mark, result.Proxy, result.Type)
		if result.TotalURLs > 0 {
			fmt.Fprintf(w, " %d/%d URLs", result.WorkingURLs, result.TotalURLs)
		} else if result.HTTPStatus != nil {
			fmt.Fprintf(w, " HTTP %d", *result.HTTPStatus)
		}
		if result.LatencyMs != nil {
			fmt.Fprintf(w, " - %.0fms", *result.LatencyMs)
		}
		if result.BlockReason != "" {
			label := "signals"
			if result.Status == StatusBlocked {
				label = "blocked"
			}
			fmt.Fprintf(w, " [%s %.0f%%: %s]", label, result.BlockConfidence*100, result.BlockReason)
		}
		if result.PingMs != nil {
			fmt.Fprintf(w, " ping %.1fms", *result.PingMs)
		}
		if result.DetectedIP != "" {
			fmt.Fprintf(w, " ip %s", result.DetectedIP)
			if result.Country != "" {
				fmt.Fprintf(w, " (%s)", result.Country)
			}
		}
		if result.Transparent {
			fmt.Fprint(w, " TRANSPARENT")
		}
		if result.Error != "" {
			fmt.Fprintf(w, " - %s", result.Error)
		}
		fmt.Fprintln(w)

		for _, u := range result.URLs {
			fmt.Fprintf(w, "    %-7s %s", u.Outcome, u.URL)
			if u.Error != "" {
				fmt.Fprintf(w, " - %s", u.Error)
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintf(w, "\n=====================================\n")
	fmt.Fprintf(w, "SUMMARY\n")
	fmt.Fprintf(w, "=====================================\n")
	fmt.Fprintf(w, "Total proxies tested: %d\n", summary.TotalProxies)
	fmt.Fprintf(w, "Working proxies: %d\n", summary.WorkingProxies)
	if summary.PartialProxies > 0 {
		fmt.Fprintf(w, "Partially working proxies: %d\n", summary.PartialProxies)
	}
	fmt.Fprintf(w, "Blocked proxies: %d\n", summary.BlockedProxies)
	fmt.Fprintf(w, "Failed proxies: %d\n", summary.FailedProxies)
	if summary.TransparentProxies > 0 {
		fmt.Fprintf(w, "Transparent proxies: %d\n", summary.TransparentProxies)
	}
	fmt.Fprintf(w, "Success rate: %.2f%%\n", summary.SuccessRate)
	if summary.AverageLatencyMs != nil {
		fmt.Fprintf(w, "Average latency: %.0fms\n", *summary.AverageLatencyMs)
	}

	return nil
}

// WriteJSONOutput writes the full summary as indented JSON.
func WriteJSONOutput(filename string, summary SummaryOutput) (err error) {
	file, err := create(filename)
	if err != nil {
		return err
	}
	defer func() { err = closeFile(file, err) }()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}

var csvHeader = []string{
	"proxy", "type", "status", "http_status", "latency_ms", "throughput_kbps",
	"block_confidence", "block_reason", "ping_ms", "detected_ip", "country",
	"transparent", "working_urls", "total_urls", "error",
}

// WriteCSVOutput writes one row per proxy.
func WriteCSVOutput(filename string, results []ProxyResultOutput) (err error) {
	file, err := create(filename)
	if err != nil {
		return err
	}
	defer func() { err = closeFile(file, err) }()

	return writeCSV(file, results)
}

func writeCSV(w io.Writer, results []ProxyResultOutput) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, r := range results {
		record := []string{
			r.Proxy,
			r.Type,
			r.Status,
			optInt(r.HTTPStatus),
			optFloat(r.LatencyMs),
			optFloat(r.ThroughputKBps),
			strconv.FormatFloat(r.BlockConfidence, 'f', 2, 64),
			r.BlockReason,
			optFloat(r.PingMs),
			r.DetectedIP,
			r.Country,
			strconv.FormatBool(r.Transparent),
			strconv.Itoa(r.WorkingURLs),
			strconv.Itoa(r.TotalURLs),
			r.Error,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// WriteWorkingProxiesOutput writes the working proxies as loadable proxy
// lines, credentials included, so the file can be fed to another run.
func WriteWorkingProxiesOutput(filename string, results []ProxyResultOutput) (err error) {
	file, err := create(filename)
	if err != nil {
		return err
	}
	defer func() { err = closeFile(file, err) }()

	fmt.Fprintf(file, "# Working proxies - generated %s\n", time.Now().Format(time.RFC3339))
	for _, result := range results {
		if result.Working && result.line != "" {
			fmt.Fprintln(file, result.line)
		}
	}

	return nil
}
