package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ResistanceIsUseless/BlockHawk/internal/checker"
)

// Indicator reports run progress on a plain terminal stream. It is the
// non-TUI counterpart of the bubbletea progress view.
type Indicator interface {
	Start(total int)
	Update(current int, outcome checker.Outcome, label string)
	Finish(message string)
	SetOutput(writer io.Writer)
}

// ProgressType represents different types of progress indicators
type ProgressType string

const (
	ProgressTypeNone    ProgressType = "none"    // No progress indication
	ProgressTypeBasic   ProgressType = "basic"   // Simple text progress
	ProgressTypeBar     ProgressType = "bar"     // Progress bar
	ProgressTypeSpinner ProgressType = "spinner" // Spinner with status
	ProgressTypePercent ProgressType = "percent" // Percentage only
)

// Config holds configuration for progress indicators
type Config struct {
	Type       ProgressType
	Width      int           // Width of progress bar
	UpdateRate time.Duration // How often to redraw the spinner
	ShowETA    bool          // Show estimated time of arrival
	ShowStats  bool          // Show working/blocked/failed counts
	NoColor    bool          // Disable colored output
	Output     io.Writer     // Output destination (default: os.Stderr)
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Type:       ProgressTypeBar,
		Width:      40,
		UpdateRate: 250 * time.Millisecond,
		ShowETA:    true,
		ShowStats:  true,
		Output:     os.Stderr,
	}
}

// NewIndicator creates a progress indicator based on the configuration
func NewIndicator(config Config) Indicator {
	if config.Output == nil {
		config.Output = os.Stderr
	}
	if config.Width <= 0 {
		config.Width = 40
	}
	if config.UpdateRate <= 0 {
		config.UpdateRate = 250 * time.Millisecond
	}

	switch config.Type {
	case ProgressTypeNone:
		return &NoneIndicator{}
	case ProgressTypeBar:
		return &BarIndicator{base: base{config: config}}
	case ProgressTypeSpinner:
		return &SpinnerIndicator{base: base{config: config}}
	case ProgressTypePercent:
		return &PercentIndicator{base: base{config: config}}
	default:
		return &BasicIndicator{base: base{config: config}}
	}
}

// Stats holds progress statistics
type Stats struct {
	Total     int
	Current   int
	Working   int
	Blocked   int
	Failed    int
	StartTime time.Time
	ETA       time.Duration
	Rate      float64 // proxies per second
}

func (s *Stats) record(current int, outcome checker.Outcome) {
	s.Current = current
	switch outcome {
	case checker.OutcomeWorking:
		s.Working++
	case checker.OutcomeBlocked:
		s.Blocked++
	case checker.OutcomeFailed:
		s.Failed++
	}

	elapsed := time.Since(s.StartTime).Seconds()
	if current > 0 && elapsed > 0 {
		s.Rate = float64(current) / elapsed
		s.ETA = time.Duration(float64(s.Total-current)/s.Rate) * time.Second
	}
}

func (s *Stats) fraction() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Current) / float64(s.Total)
}

// base carries the state shared by every text indicator.
type base struct {
	config Config
	stats  Stats
	mutex  sync.Mutex
}

func (b *base) start(total int) {
	b.stats = Stats{Total: total, StartTime: time.Now()}
}

func (b *base) SetOutput(writer io.Writer) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.config.Output = writer
}

func (b *base) color(code, s string) string {
	if b.config.NoColor {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func (b *base) counts() string {
	s := b.stats
	return fmt.Sprintf("%s %s %s",
		b.color("32", fmt.Sprintf("✓%d", s.Working)),
		b.color("33", fmt.Sprintf("⊘%d", s.Blocked)),
		b.color("31", fmt.Sprintf("✗%d", s.Failed)))
}

func (b *base) suffix() string {
	var sb strings.Builder
	if b.config.ShowStats && b.stats.Current > 0 {
		sb.WriteString(" | " + b.counts())
	}
	if b.config.ShowETA && b.stats.ETA > 0 {
		sb.WriteString(fmt.Sprintf(" | ETA: %v", b.stats.ETA.Round(time.Second)))
	}
	return sb.String()
}

func (b *base) summary(message string) {
	s := b.stats
	elapsed := time.Since(s.StartTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(s.Current) / elapsed.Seconds()
	}

	fmt.Fprintf(b.config.Output, "\nCompleted: %d proxies tested in %v (%.2f proxies/sec)\n",
		s.Current, elapsed.Round(time.Second), rate)

	if b.config.ShowStats && s.Current > 0 {
		successRate := float64(s.Working) / float64(s.Current) * 100
		fmt.Fprintf(b.config.Output, "Results: %d working (%.1f%%), %d blocked, %d failed\n",
			s.Working, successRate, s.Blocked, s.Failed)
	}

	if message != "" {
		fmt.Fprintf(b.config.Output, "%s\n", message)
	}
}

// NoneIndicator provides no progress indication
type NoneIndicator struct{}

func (n *NoneIndicator) Start(int) {}

func (n *NoneIndicator) Update(int, checker.Outcome, string) {}

func (n *NoneIndicator) Finish(string) {}

func (n *NoneIndicator) SetOutput(io.Writer) {}

// BasicIndicator prints one status line per tenth of the run.
type BasicIndicator struct {
	base
}

func (b *BasicIndicator) Start(total int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.start(total)
	fmt.Fprintf(b.config.Output, "Starting proxy tests: %d proxies to check\n", total)
}

func (b *BasicIndicator) Update(current int, outcome checker.Outcome, label string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.stats.record(current, outcome)

	step := max(b.stats.Total/10, 1)
	if current%step != 0 && current != b.stats.Total {
		return
	}

	line := fmt.Sprintf("Progress: %d/%d (%.1f%%)", current, b.stats.Total, b.stats.fraction()*100)
	line += b.suffix()
	if label != "" && len(label) < 50 {
		line += " | " + label
	}
	fmt.Fprintln(b.config.Output, line)
}

func (b *BasicIndicator) Finish(message string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.summary(message)
}

// BarIndicator redraws a single progress bar line.
type BarIndicator struct {
	base
}

func (b *BarIndicator) Start(total int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.start(total)
	fmt.Fprintf(b.config.Output, "BlockHawk: testing %d proxies\n", total)
}

func (b *BarIndicator) Update(current int, outcome checker.Outcome, _ string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.stats.record(current, outcome)

	filled := int(b.stats.fraction() * float64(b.config.Width))
	filled = min(max(filled, 0), b.config.Width)
	bar := b.color("32", strings.Repeat("█", filled)) + strings.Repeat("░", b.config.Width-filled)

	line := fmt.Sprintf("\r[%s] %d/%d (%.1f%%)", bar, current, b.stats.Total, b.stats.fraction()*100)
	line += b.suffix()
	if b.stats.Rate > 0 {
		line += fmt.Sprintf(" | %.1f/s", b.stats.Rate)
	}
	fmt.Fprint(b.config.Output, line)
}

func (b *BarIndicator) Finish(message string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.summary(message)
}

var spinnerChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// SpinnerIndicator animates a spinner next to the latest result.
type SpinnerIndicator struct {
	base
	done       chan struct{}
	wg         sync.WaitGroup
	spinnerIdx int
	lastLabel  string
}

func (s *SpinnerIndicator) Start(total int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.start(total)
	fmt.Fprintf(s.config.Output, "BlockHawk: starting tests for %d proxies\n", total)

	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.spin(s.done)
}

func (s *SpinnerIndicator) spin(done <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.UpdateRate)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mutex.Lock()
			s.spinnerIdx = (s.spinnerIdx + 1) % len(spinnerChars)
			s.draw()
			s.mutex.Unlock()
		}
	}
}

func (s *SpinnerIndicator) draw() {
	if s.stats.Current == 0 {
		return
	}

	spinner := spinnerChars[s.spinnerIdx]
	if s.config.NoColor {
		spinner = string("|/-\\"[s.spinnerIdx%4])
	}

	line := fmt.Sprintf("\r%s Testing proxies... %d/%d (%.1f%%)",
		spinner, s.stats.Current, s.stats.Total, s.stats.fraction()*100)
	line += s.suffix()
	if s.lastLabel != "" {
		line += " | " + truncate(s.lastLabel, 30)
	}
	fmt.Fprint(s.config.Output, line)
}

func (s *SpinnerIndicator) Update(current int, outcome checker.Outcome, label string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stats.record(current, outcome)
	s.lastLabel = label
}

func (s *SpinnerIndicator) Finish(message string) {
	s.mutex.Lock()
	done := s.done
	s.done = nil
	s.mutex.Unlock()

	if done != nil {
		close(done)
		s.wg.Wait()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.summary(message)
}

// PercentIndicator rewrites the line only when the whole percentage changes.
type PercentIndicator struct {
	base
	lastPercent int
}

func (p *PercentIndicator) Start(total int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.start(total)
	p.lastPercent = 0
	fmt.Fprintf(p.config.Output, "Testing %d proxies: 0%%", total)
}

func (p *PercentIndicator) Update(current int, outcome checker.Outcome, _ string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.stats.record(current, outcome)
	percent := int(p.stats.fraction() * 100)
	if percent == p.lastPercent {
		return
	}
	p.lastPercent = percent
	fmt.Fprintf(p.config.Output, "\rTesting %d proxies: %d%%", p.stats.Total, percent)
}

func (p *PercentIndicator) Finish(message string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.summary(message)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
