package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/ResistanceIsUseless/BlockHawk/internal/checker"
)

// Component interface for all renderable UI elements
type Component interface {
	Render() string
}

// HeaderComponent displays the application header
type HeaderComponent struct {
	Title string
	Mode  ViewMode
}

func (h *HeaderComponent) Render() string {
	title := h.Title
	if title == "" {
		title = "BlockHawk"
	}
	if h.Mode == ModeVerbose {
		title += " • Verbose"
	}
	return HeaderStyle.Render(title)
}

// StatsBarComponent shows outcome counts in a horizontal bar
type StatsBarComponent struct {
	Completed int
	Working   int
	Blocked   int
	Failed    int
	Elapsed   time.Duration
}

func (s *StatsBarComponent) Render() string {
	if s.Completed == 0 {
		return StatsBarStyle.Render(dimStyle.Render("Waiting for first result..."))
	}

	rate := percent(s.Working, s.Completed)
	items := []string{
		fmt.Sprintf("%s %s", MetricLabelStyle.Render("Working:"), RateStyle(rate).Render(fmt.Sprintf("%d (%.0f%%)", s.Working, rate))),
		fmt.Sprintf("%s %s", MetricLabelStyle.Render("Blocked:"), WarningStyle.Render(fmt.Sprint(s.Blocked))),
		fmt.Sprintf("%s %s", MetricLabelStyle.Render("Failed:"), ErrorStyle.Render(fmt.Sprint(s.Failed))),
	}
	if s.Elapsed > 0 {
		perSec := float64(s.Completed) / s.Elapsed.Seconds()
		items = append(items, fmt.Sprintf("%s %s", MetricLabelStyle.Render("Rate:"), MetricValueStyle.Render(fmt.Sprintf("%.1f/s", perSec))))
	}

	return StatsBarStyle.Render(strings.Join(items, "  •  "))
}

// ProgressComponent displays a progress bar
type ProgressComponent struct {
	Progress progress.Model
	Current  int
	Total    int
}

func (p *ProgressComponent) Render() string {
	if p.Total == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(p.Progress.View())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(FormatCount(p.Current, p.Total)))
	b.WriteString(" ")
	b.WriteString(MetricValueStyle.Render(FormatPercentage(p.Current, p.Total)))

	return ProgressStyle.Render(b.String())
}

// RecentResult is one finished proxy as shown in the live view.
type RecentResult struct {
	Label   string
	Outcome checker.Outcome
	Detail  string
}

// RecentResultsComponent lists the latest finished proxies, newest first.
type RecentResultsComponent struct {
	Results    []RecentResult
	SpinnerIdx int
	Running    bool
	Mode       ViewMode
}

func (r *RecentResultsComponent) Render() string {
	var b strings.Builder

	if r.Running {
		frame := SpinnerFrames[r.SpinnerIdx%len(SpinnerFrames)]
		b.WriteString(SpinnerStyle.Render(frame) + " " + dimStyle.Render("Testing proxies..."))
	} else {
		b.WriteString(SuccessStyle.Render("All checks completed!"))
	}

	for i := len(r.Results) - 1; i >= 0; i-- {
		res := r.Results[i]
		b.WriteString("\n")

		switch res.Outcome {
		case checker.OutcomeWorking:
			b.WriteString(SuccessStyle.Render(IconSuccess))
		case checker.OutcomeBlocked:
			b.WriteString(WarningStyle.Render(IconBlocked))
		default:
			b.WriteString(ErrorStyle.Render(IconError))
		}
		b.WriteString(" " + ProxyURLStyle.Render(truncate(res.Label, 45)))
		if r.Mode == ModeVerbose && res.Detail != "" {
			b.WriteString(" " + dimStyle.Render(truncate(res.Detail, 40)))
		}
	}

	return b.String()
}

// FooterComponent displays help text and controls
type FooterComponent struct {
	Hints []string
}

func (f *FooterComponent) Render() string {
	hints := f.Hints
	if len(hints) == 0 {
		hints = []string{"press q to stop"}
	}
	return FooterStyle.Render(strings.Join(hints, "  •  "))
}
