// Package progress renders a live view of a running evaluation.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"

	progressbar "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/timvw/prompt-patrol/internal/model"
)

const (
	defaultWidth = 80
	barWidth     = 30
)

// messages
type updateMsg model.Update

type finishedMsg struct{ err error }

// Dashboard shows per-predicate pass counts while a run is in flight.
// Observe may be called concurrently once Start has returned.
type Dashboard struct {
	program *tea.Program
	done    chan struct{}

	once sync.Once
	err  error
}

// NewDashboard prepares a dashboard for the given predicate ids. It writes
// to out and never reads from the terminal.
func NewDashboard(ids []string, trials int, theme Theme, out io.Writer) *Dashboard {
	m := newDashboardModel(ids, trials, theme)
	return &Dashboard{
		program: tea.NewProgram(m,
			tea.WithOutput(out),
			tea.WithInput(nil),
			tea.WithoutSignalHandler(),
		),
		done: make(chan struct{}),
	}
}

// Start runs the render loop in the background.
func (d *Dashboard) Start() {
	go func() {
		defer close(d.done)
		_, d.err = d.program.Run()
	}()
}

// Observe forwards an update to the render loop.
func (d *Dashboard) Observe(u model.Update) {
	d.program.Send(updateMsg(u))
}

// Finish renders the final state, stops the render loop and waits for it.
// runErr, if set, is shown as the outcome of the run.
func (d *Dashboard) Finish(runErr error) error {
	d.once.Do(func() {
		d.program.Send(finishedMsg{err: runErr})
		<-d.done
	})
	return d.err
}

// dashboardModel implements tea.Model
type dashboardModel struct {
	ids    []string
	trials int
	styles styles
	bar    progressbar.Model

	passed   map[string]int
	scored   map[string]int
	pairs    int
	last     string
	finished bool
	err      error

	width int
}

func newDashboardModel(ids []string, trials int, theme Theme) *dashboardModel {
	return &dashboardModel{
		ids:    ids,
		trials: trials,
		styles: newStyles(theme),
		bar: progressbar.New(
			progressbar.WithSolidFill(string(theme.Secondary)),
			progressbar.WithWidth(barWidth),
			progressbar.WithoutPercentage(),
		),
		passed: make(map[string]int, len(ids)),
		scored: make(map[string]int, len(ids)),
		width:  defaultWidth,
	}
}

func (m *dashboardModel) Init() tea.Cmd {
	return nil
}

func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case updateMsg:
		m.pairs++
		m.scored[msg.PredicateID]++
		// Counts is a snapshot taken after this pair; never move backwards
		// when updates arrive out of order.
		for id, n := range msg.Counts {
			if n > m.passed[id] {
				m.passed[id] = n
			}
		}
		m.last = msg.Response
		return m, nil

	case finishedMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *dashboardModel) View() string {
	var b strings.Builder

	total := m.trials * len(m.ids)
	b.WriteString(m.styles.title.Render("prompt-patrol"))
	b.WriteString("  ")
	b.WriteString(m.styles.dim.Render(fmt.Sprintf("%d trials x %d predicates", m.trials, len(m.ids))))
	b.WriteString("\n")

	ratio := 1.0
	if !m.finished && total > 0 {
		ratio = float64(m.pairs) / float64(total)
	}
	b.WriteString(m.bar.ViewAs(ratio))
	b.WriteString(m.styles.dim.Render(fmt.Sprintf("  %d/%d scored", m.pairs, total)))
	b.WriteString("\n")
	b.WriteString(m.styles.divider.Render(strings.Repeat("─", min(m.width, defaultWidth))))
	b.WriteString("\n")

	idWidth := 0
	for _, id := range m.ids {
		idWidth = max(idWidth, len(id))
	}
	for _, id := range m.ids {
		b.WriteString("  ")
		b.WriteString(m.styles.id.Render(padRight(id, idWidth)))
		b.WriteString("  ")
		b.WriteString(m.styles.pass.Render(fmt.Sprintf("%d", m.passed[id])))
		b.WriteString(m.styles.dim.Render(fmt.Sprintf("/%d passed (%d scored)", m.trials, m.scored[id])))
		b.WriteString("\n")
	}

	if m.last != "" {
		b.WriteString(m.styles.dim.Render("  last: " + truncate(flatten(m.last), max(m.width-10, 20))))
		b.WriteString("\n")
	}
	if m.finished {
		if m.err != nil {
			b.WriteString(m.styles.err.Render(fmt.Sprintf("  run failed: %v", m.err)))
		} else {
			b.WriteString(m.styles.pass.Render("  done"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// flatten collapses whitespace runs, including newlines, to single spaces.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts a string to at most maxLen characters.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// padRight pads a string with spaces to reach the desired width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
