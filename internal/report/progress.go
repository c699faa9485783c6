package report

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mohaanymo/streamprobe/internal/engine"
	"github.com/mohaanymo/streamprobe/internal/models"
)

// Messages
type (
	progressMsg engine.ProgressUpdate
	tickMsg     time.Time
	DoneMsg     struct{}
	ErrorMsg    struct{ Err error }
)

type progressState int

const (
	stateStarting progressState = iota
	stateRunning
	stateDone
	stateError
)

// recentRows is how many finished jobs the progress view lists.
const recentRows = 8

// BatchProgress is the live view of a batch run. It reads the engine's
// progress channel until it closes.
type BatchProgress struct {
	state      progressState
	width      int
	height     int
	frame      int
	progressCh <-chan engine.ProgressUpdate

	total     int
	done      int
	valid     int
	failed    int
	resumed   int
	recent    []engine.ProgressUpdate
	startTime time.Time
	err       error
	canceled  bool
}

// NewBatchProgress creates a progress view fed by ch. total is the
// expected job count until the engine reports its own.
func NewBatchProgress(ch <-chan engine.ProgressUpdate, total int) *BatchProgress {
	return &BatchProgress{
		state:      stateStarting,
		progressCh: ch,
		total:      total,
		startTime:  time.Now(),
		width:      80,
		height:     24,
	}
}

func (m *BatchProgress) Init() tea.Cmd {
	return tea.Batch(m.listenProgress(), tick())
}

func (m *BatchProgress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.canceled = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case progressMsg:
		m.handleProgress(engine.ProgressUpdate(msg))
		m.state = stateRunning
		return m, m.listenProgress()

	case tickMsg:
		if m.state == stateDone || m.state == stateError {
			return m, nil
		}
		m.frame++
		return m, tick()

	case DoneMsg:
		m.state = stateDone
		return m, tea.Quit

	case ErrorMsg:
		m.state = stateError
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// Canceled reports whether the user quit before the run finished.
func (m *BatchProgress) Canceled() bool {
	return m.canceled
}

// Err returns the error delivered with ErrorMsg, if any.
func (m *BatchProgress) Err() error {
	return m.err
}

func (m *BatchProgress) View() string {
	w := clamp(m.width-4, 60, 100)

	var b strings.Builder
	b.WriteString(m.viewHeader(w))
	b.WriteString("\n\n")
	b.WriteString(m.viewContent(w))
	return b.String()
}

func (m *BatchProgress) viewHeader(w int) string {
	title := titleStyle.Render("streamprobe")
	subtitle := dimStyle.Render(" - Batch Probe")

	line2 := labelStyle.Render("jobs:") + " " + valueStyle.Render(fmt.Sprintf("%d", m.total))
	return headerStyle.Width(w).Render(title + subtitle + "\n" + line2)
}

func (m *BatchProgress) viewContent(w int) string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render("Recent"))
	b.WriteString("\n\n")
	if len(m.recent) == 0 {
		b.WriteString(dimStyle.Render("waiting for results"))
		b.WriteString("\n")
	}
	for _, u := range m.recent {
		b.WriteString(renderJobRow(u, w-6))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Progress"))
	b.WriteString("\n\n")
	b.WriteString(m.renderOverallProgress(w - 6))
	b.WriteString("\n\n")
	b.WriteString(m.renderStats())
	b.WriteString("\n\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(
		keyHelpStyle.Render("q") + " quit  " +
			keyHelpStyle.Render("ctrl+c") + " cancel",
	))

	return contentStyle.Width(w).Render(b.String())
}

func renderJobRow(u engine.ProgressUpdate, w int) string {
	var b strings.Builder

	if u.Status == models.StatusSuccess {
		b.WriteString(successStyle.Render("✓ "))
	} else {
		b.WriteString(errorStyle.Render("✗ "))
	}

	status := string(u.Status)
	if status == "" {
		status = "error"
	}
	b.WriteString(valueStyle.Render(fmt.Sprintf("%-13s", status)))
	b.WriteString(" ")

	suffix := ""
	if u.Resumed {
		suffix = " (resumed)"
	}
	b.WriteString(dimStyle.Render(truncate(u.URL, w-16-len(suffix)) + suffix))
	return b.String()
}

func (m *BatchProgress) renderOverallProgress(w int) string {
	pct := 0.0
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}

	barWidth := clamp(w-20, 20, 80)
	filled := clamp(int(pct*float64(barWidth)), 0, barWidth)
	empty := barWidth - filled

	bar := progressActive.Render(strings.Repeat("█", filled)) +
		progressWait.Render(strings.Repeat("░", empty))
	return bar + " " + statValueStyle.Render(fmt.Sprintf("%d/%d", m.done, m.total))
}

func (m *BatchProgress) renderStats() string {
	stats := []struct {
		label string
		value string
	}{
		{"Valid", fmt.Sprintf("%d", m.valid)},
		{"Failed", fmt.Sprintf("%d", m.failed)},
		{"Resumed", fmt.Sprintf("%d", m.resumed)},
		{"Elapsed", formatElapsed(time.Since(m.startTime))},
	}

	var parts []string
	for _, s := range stats {
		parts = append(parts, statLabelStyle.Render(s.label+": ")+statValueStyle.Render(s.value))
	}
	return strings.Join(parts, "  ")
}

func (m *BatchProgress) renderStatus() string {
	switch m.state {
	case stateStarting:
		return spinnerStyle.Render(spinner[m.frame%len(spinner)]) + dimStyle.Render(" starting...")
	case stateRunning:
		return spinnerStyle.Render(spinner[m.frame%len(spinner)]) + dimStyle.Render(" probing manifests...")
	case stateDone:
		return successStyle.Render("✓ batch complete")
	case stateError:
		return errorStyle.Render(fmt.Sprintf("✗ error: %v", m.err))
	}
	return ""
}

func (m *BatchProgress) handleProgress(u engine.ProgressUpdate) {
	if u.Total > 0 {
		m.total = u.Total
	}
	m.done = u.Done
	if u.Status == models.StatusSuccess {
		m.valid++
	} else {
		m.failed++
	}
	if u.Resumed {
		m.resumed++
	}

	m.recent = append(m.recent, u)
	if len(m.recent) > recentRows {
		m.recent = m.recent[len(m.recent)-recentRows:]
	}
}

func (m *BatchProgress) listenProgress() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.progressCh
		if !ok {
			return DoneMsg{}
		}
		return progressMsg(u)
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
