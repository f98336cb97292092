package ui

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ResistanceIsUseless/BlockHawk/internal/checker"
	"github.com/ResistanceIsUseless/BlockHawk/internal/proxy"
)

const (
	missing      = "-"
	fastestShown = 5
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers(headers...)
}

// ProxyListTable lists loaded proxies with their 1-based selection index.
func ProxyListTable(proxies []proxy.Proxy) string {
	t := newTable("#", "Type", "Address", "Auth")
	for i, p := range proxies {
		auth := missing
		if p.HasAuth() {
			auth = p.Username
		}
		t.Row(strconv.Itoa(i+1), string(p.Type), p.Address(), auth)
	}
	return t.String()
}

// URLList numbers the target URLs. Multi-URL tables refer to them by number.
func URLList(urls []string) string {
	var b strings.Builder
	b.WriteString(MetricLabelStyle.Render("Target URLs:"))
	for i, u := range urls {
		fmt.Fprintf(&b, "\n  %s %s", dimStyle.Render(fmt.Sprintf("[%d]", i+1)), u)
	}
	return b.String()
}

// ResultsTable renders single-URL results in input order.
func ResultsTable(results []checker.TestResult) string {
	t := newTable("#", "Proxy", "Status", "Code", "Latency", "Speed", "Blocked", "Ping", "IP")
	for i, r := range results {
		t.Row(
			strconv.Itoa(i+1),
			ProxyURLStyle.Render(r.Proxy.String()),
			statusCell(r.URLTestResult),
			codeCell(r.HTTPStatus),
			latencyCell(r.LatencyMs),
			speedCell(r.ThroughputKBps),
			blockedCell(r.URLTestResult),
			pingCell(r.Aux),
			ipCell(r.Aux),
		)
	}
	return t.String()
}

// MultiURLTable renders one OK/BLK/FAIL cell per target URL for every proxy,
// followed by the working count and average latency.
func MultiURLTable(results []checker.MultiURLTestResult, urls []string) string {
	headers := []string{"#", "Proxy"}
	for i := range urls {
		headers = append(headers, fmt.Sprintf("[%d]", i+1))
	}
	headers = append(headers, "Working", "Avg Latency", "Ping", "IP")

	t := newTable(headers...)
	for i, m := range results {
		row := []string{strconv.Itoa(i + 1), ProxyURLStyle.Render(m.Proxy.String())}
		for _, u := range urls {
			row = append(row, matrixCell(m.URLResults[u]))
		}

		working := FormatCount(m.WorkingCount(), m.TotalCount())
		rate := 0.0
		if m.TotalCount() > 0 {
			rate = float64(m.WorkingCount()) / float64(m.TotalCount()) * 100
		}
		row = append(row,
			RateStyle(rate).Render(working),
			latencyCell(m.AvgLatency()),
			pingCell(m.Aux),
			ipCell(m.Aux),
		)
		t.Row(row...)
	}
	return t.String()
}

func matrixCell(r checker.URLTestResult) string {
	switch r.Outcome() {
	case checker.OutcomeWorking:
		return SuccessStyle.Render("OK")
	case checker.OutcomeBlocked:
		return WarningStyle.Render("BLK")
	default:
		return ErrorStyle.Render("FAIL")
	}
}

func statusCell(r checker.URLTestResult) string {
	switch r.Outcome() {
	case checker.OutcomeWorking:
		return SuccessStyle.Render(IconSuccess + " Working")
	case checker.OutcomeBlocked:
		return WarningStyle.Render(IconBlocked + " Blocked")
	}
	if r.Error != "" {
		return ErrorStyle.Render(IconError + " " + truncate(r.Error, 30))
	}
	return ErrorStyle.Render(IconError + " Failed")
}

func codeCell(status *int) string {
	if status == nil {
		return missing
	}
	return GetHTTPStatusStyle(*status).Render(strconv.Itoa(*status))
}

func latencyCell(ms *float64) string {
	if ms == nil {
		return missing
	}
	return LatencyStyle(*ms).Render(FormatLatency(*ms))
}

func speedCell(kbps *float64) string {
	if kbps == nil {
		return missing
	}
	return FormatSpeed(*kbps)
}

func blockedCell(r checker.URLTestResult) string {
	if r.Block == nil {
		return missing
	}
	confidence := fmt.Sprintf("%.0f%%", r.Block.Confidence*100)
	if r.Block.IsBlocked {
		return ErrorStyle.Render("Yes " + confidence)
	}
	if r.Block.Confidence > 0 {
		return dimStyle.Render("No " + confidence)
	}
	return SuccessStyle.Render("No")
}

func pingCell(aux checker.Aux) string {
	if aux.PingMs != nil {
		return PingStyle(*aux.PingMs).Render(fmt.Sprintf("%.1fms", *aux.PingMs))
	}
	if aux.PingError != "" {
		return ErrorStyle.Render(truncate(aux.PingError, 20))
	}
	return missing
}

func ipCell(aux checker.Aux) string {
	if aux.DetectedIP == "" {
		return missing
	}
	cell := aux.DetectedIP
	if aux.Country != "" {
		cell += " (" + aux.Country + ")"
	}
	if aux.Transparent {
		return ErrorStyle.Render(cell + " " + IconWarning + " transparent")
	}
	return cell
}

type ranked struct {
	label   string
	latency float64
}

func fastest(items []ranked) []ranked {
	sort.SliceStable(items, func(i, j int) bool { return items[i].latency < items[j].latency })
	if len(items) > fastestShown {
		items = items[:fastestShown]
	}
	return items
}

func writeFastest(b *strings.Builder, items []ranked) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n\n" + MetricLabelStyle.Render("Fastest proxies:"))
	for i, item := range fastest(items) {
		fmt.Fprintf(b, "\n  %d. %s %s", i+1, item.label, LatencyStyle(item.latency).Render(FormatLatency(item.latency)))
	}
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Summary counts single-URL outcomes and lists the fastest working proxies.
func Summary(results []checker.TestResult) string {
	var working, blocked, failed, transparent int
	var speed []ranked

	for _, r := range results {
		switch r.Outcome() {
		case checker.OutcomeWorking:
			working++
			if r.LatencyMs != nil {
				speed = append(speed, ranked{r.Proxy.String(), *r.LatencyMs})
			}
		case checker.OutcomeBlocked:
			blocked++
		default:
			failed++
		}
		if r.Transparent {
			transparent++
		}
	}

	rate := percent(working, len(results))

	var b strings.Builder
	b.WriteString(MetricLabelStyle.Render("Summary: ") + fmt.Sprintf("%d proxies tested", len(results)))
	fmt.Fprintf(&b, "\n  %s %s", SuccessStyle.Render(IconSuccess+" Working:"), RateStyle(rate).Render(fmt.Sprintf("%d (%.1f%%)", working, rate)))
	fmt.Fprintf(&b, "\n  %s %d", WarningStyle.Render(IconBlocked+" Blocked:"), blocked)
	fmt.Fprintf(&b, "\n  %s %d", ErrorStyle.Render(IconError+" Failed:"), failed)
	if transparent > 0 {
		fmt.Fprintf(&b, "\n  %s %d", ErrorStyle.Render(IconWarning+" Transparent:"), transparent)
	}
	writeFastest(&b, speed)

	return StatusBlockStyle.Render(b.String())
}

// MultiSummary counts fully working, partial and failed proxies, and shows
// the success rate of each target URL.
func MultiSummary(results []checker.MultiURLTestResult, urls []string) string {
	var full, partial, failed int
	var speed []ranked
	perURL := make(map[string]int, len(urls))

	for _, m := range results {
		switch {
		case m.IsFullyWorking():
			full++
			if avg := m.AvgLatency(); avg != nil {
				speed = append(speed, ranked{m.Proxy.String(), *avg})
			}
		case m.AnyWorking():
			partial++
		default:
			failed++
		}
		for u, r := range m.URLResults {
			if r.IsWorking() {
				perURL[u]++
			}
		}
	}

	var b strings.Builder
	b.WriteString(MetricLabelStyle.Render("Summary: ") + fmt.Sprintf("%d proxies x %d URLs", len(results), len(urls)))
	fmt.Fprintf(&b, "\n  %s %d", SuccessStyle.Render(IconSuccess+" Fully working:"), full)
	fmt.Fprintf(&b, "\n  %s %d", WarningStyle.Render(IconWarning+" Partial:"), partial)
	fmt.Fprintf(&b, "\n  %s %d", ErrorStyle.Render(IconError+" Failed:"), failed)

	t := newTable("#", "URL", "Working", "Rate")
	for i, u := range urls {
		rate := percent(perURL[u], len(results))
		t.Row(
			strconv.Itoa(i+1),
			hostLabel(u),
			FormatCount(perURL[u], len(results)),
			RateStyle(rate).Render(fmt.Sprintf("%.1f%%", rate)),
		)
	}
	b.WriteString("\n\n" + MetricLabelStyle.Render("Per-URL success:") + "\n" + t.String())
	writeFastest(&b, speed)

	return StatusBlockStyle.Render(b.String())
}

func hostLabel(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return truncate(raw, 40)
	}
	return truncate(u.Host+u.EscapedPath(), 40)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
