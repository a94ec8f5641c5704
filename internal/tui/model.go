package tui

import (
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-hls-analyzer/internal/availability"
	"github.com/randomizedcoder/go-hls-analyzer/internal/probe"
	"github.com/randomizedcoder/go-hls-analyzer/internal/stats"
)

// maxRecentFailures bounds the recent-failures list.
const maxRecentFailures = 5

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// PlanMsg announces how much work the run will do.
type PlanMsg struct {
	Segments int
	Probes   int
}

// OutcomeMsg carries one segment check outcome.
type OutcomeMsg struct {
	Outcome availability.Outcome
}

// ProbeMsg carries one probe result.
type ProbeMsg struct {
	Result probe.Result
}

// DoneMsg signals the run finished. Err is a systemic failure, if any.
type DoneMsg struct {
	Stats stats.AggregateStats
	Err   error
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	manifest    string
	metricsAddr string
	onQuit      func()

	// Progress
	planned     int
	checked     int
	available   int
	unreachable int
	categories  map[availability.Category]int
	recent      []availability.Outcome
	latency     *tdigest.TDigest

	probesPlanned int
	probed        int
	probeFailed   int

	// Completion
	done    bool
	final   stats.AggregateStats
	doneErr error

	startTime  time.Time
	finishTime time.Time

	// Display options
	width  int
	height int

	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	Manifest    string
	MetricsAddr string

	// OnQuit is called when the user quits before the run finishes.
	OnQuit func()
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		manifest:    cfg.Manifest,
		metricsAddr: cfg.MetricsAddr,
		onQuit:      cfg.OnQuit,
		categories:  make(map[availability.Category]int),
		latency:     tdigest.NewWithCompression(100),
		startTime:   time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			if !m.done && m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case PlanMsg:
		m.planned = msg.Segments
		m.probesPlanned = msg.Probes
		return m, nil

	case OutcomeMsg:
		m = m.recordOutcome(msg.Outcome)
		return m, nil

	case ProbeMsg:
		m.probed++
		if msg.Result.Failure != nil {
			m.probeFailed++
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.final = msg.Stats
		m.doneErr = msg.Err
		m.finishTime = time.Now()
		return m, tea.Quit

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) recordOutcome(o availability.Outcome) Model {
	m.checked++
	if o.Status == availability.Available {
		m.available++
		m.latency.Add(float64(o.Latency), 1)
		return m
	}

	m.unreachable++
	m.categories[o.Category]++
	m.recent = append(m.recent, o)
	if len(m.recent) > maxRecentFailures {
		m.recent = m.recent[len(m.recent)-maxRecentFailures:]
	}
	return m
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting && !m.done {
		return ""
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 250ms.
func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the run time so far, frozen once the run is done.
func (m Model) Elapsed() time.Duration {
	if m.done {
		return m.finishTime.Sub(m.startTime)
	}
	return time.Since(m.startTime)
}

// Progress returns the fraction of planned segments checked (0.0 to 1.0).
func (m Model) Progress() float64 {
	if m.planned == 0 {
		return 0
	}
	p := float64(m.checked) / float64(m.planned)
	if p > 1 {
		p = 1
	}
	return p
}

// FailureRate returns the unreachable fraction of checked segments.
func (m Model) FailureRate() float64 {
	if m.checked == 0 {
		return 0
	}
	return float64(m.unreachable) / float64(m.checked)
}

// LatencyPercentile returns the q-th check latency over available segments.
func (m Model) LatencyPercentile(q float64) time.Duration {
	if m.available == 0 {
		return 0
	}
	return time.Duration(m.latency.Quantile(q))
}

// Done reports whether the run has finished.
func (m Model) Done() bool {
	return m.done
}

type categoryCount struct {
	category availability.Category
	count    int
}

// sortedCategories returns failure categories by descending count.
func (m Model) sortedCategories() []categoryCount {
	out := make([]categoryCount, 0, len(m.categories))
	for c, n := range m.categories {
		out = append(out, categoryCount{c, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].category < out[j].category
	})
	return out
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendOutcome sends a segment outcome to the TUI.
func SendOutcome(p *tea.Program, o availability.Outcome) {
	if p != nil {
		p.Send(OutcomeMsg{Outcome: o})
	}
}

// SendProbe sends a probe result to the TUI.
func SendProbe(p *tea.Program, r probe.Result) {
	if p != nil {
		p.Send(ProbeMsg{Result: r})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
