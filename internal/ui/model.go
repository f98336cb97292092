package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ResistanceIsUseless/BlockHawk/internal/checker"
)

// ViewMode represents the display mode
type ViewMode int

const (
	ModeDefault ViewMode = iota
	ModeVerbose
)

const tickInterval = 100 * time.Millisecond

// ResultMsg reports one finished proxy to the live view.
type ResultMsg struct {
	Completed int
	Total     int
	Outcome   checker.Outcome
	Label     string
	Detail    string
}

// DoneMsg tells the live view that the run has finished.
type DoneMsg struct{}

type tickMsg time.Time

// Model is the bubbletea model shown while a run is in progress.
type Model struct {
	Title string
	Mode  ViewMode

	progress  progress.Model
	total     int
	completed int
	working   int
	blocked   int
	failed    int
	recent    []RecentResult
	maxRecent int

	spinnerIdx int
	start      time.Time
	done       bool
	aborted    bool
	stop       func()
}

// NewModel creates the live view for a run over total proxies. stop is
// called when the operator quits before the run has finished.
func NewModel(total int, stop func()) *Model {
	return &Model{
		Title: "BlockHawk",
		progress: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(DefaultWidth-4),
			progress.WithoutPercentage(),
		),
		total:     total,
		maxRecent: 5,
		start:     time.Now(),
		stop:      stop,
	}
}

// SetMode selects the verbose view, which keeps more results on screen
// along with their error or block detail.
func (m *Model) SetMode(verbose bool) {
	if verbose {
		m.Mode = ModeVerbose
		m.maxRecent = 10
		return
	}
	m.Mode = ModeDefault
	m.maxRecent = 5
}

// Aborted reports whether the operator quit before the run finished.
func (m *Model) Aborted() bool {
	return m.aborted
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Init() tea.Cmd {
	return tick()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c", "esc":
			if !m.done {
				m.aborted = true
				if m.stop != nil {
					m.stop()
				}
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.progress.Width = max(min(msg.Width-8, DefaultWidth-4), 10)

	case ResultMsg:
		m.completed = msg.Completed
		if msg.Total > 0 {
			m.total = msg.Total
		}
		switch msg.Outcome {
		case checker.OutcomeWorking:
			m.working++
		case checker.OutcomeBlocked:
			m.blocked++
		default:
			m.failed++
		}
		m.recent = append(m.recent, RecentResult{Label: msg.Label, Outcome: msg.Outcome, Detail: msg.Detail})
		if len(m.recent) > m.maxRecent {
			m.recent = m.recent[len(m.recent)-m.maxRecent:]
		}
		if m.total == 0 {
			return m, nil
		}
		return m, m.progress.SetPercent(float64(m.completed) / float64(m.total))

	case DoneMsg:
		m.done = true
		return m, tea.Sequence(m.progress.SetPercent(1), tea.Quit)

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.spinnerIdx++
		return m, tick()
	}

	return m, nil
}

func (m *Model) View() string {
	sections := []string{
		(&HeaderComponent{Title: m.Title, Mode: m.Mode}).Render(),
		(&ProgressComponent{Progress: m.progress, Current: m.completed, Total: m.total}).Render(),
		(&StatsBarComponent{
			Completed: m.completed,
			Working:   m.working,
			Blocked:   m.blocked,
			Failed:    m.failed,
			Elapsed:   time.Since(m.start),
		}).Render(),
		(&RecentResultsComponent{
			Results:    m.recent,
			SpinnerIdx: m.spinnerIdx,
			Running:    !m.done,
			Mode:       m.Mode,
		}).Render(),
		(&FooterComponent{}).Render(),
	}
	return strings.Join(sections, "\n\n") + "\n"
}
