package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const barWidth = 40

// ProgressMsg reports finished batch runs.
type ProgressMsg struct {
	Done  int
	Total int
}

// DoneMsg ends the progress view.
type DoneMsg struct{ Err error }

// Progress renders a batch progress bar fed through a channel, so the batch
// worker pool can report from any goroutine.
type Progress struct {
	updates <-chan ProgressMsg

	done    int
	total   int
	started time.Time
	err     error
}

// NewProgress builds the progress view. The channel must be closed when the
// batch finishes.
func NewProgress(updates <-chan ProgressMsg) *Progress {
	return &Progress{updates: updates, started: time.Now()}
}

// Run blocks until the updates channel closes.
func (p *Progress) Run() error {
	final, err := tea.NewProgram(*p).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Progress); ok {
		return m.err
	}
	return nil
}

func (p Progress) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-p.updates
		if !ok {
			return DoneMsg{}
		}
		return msg
	}
}

func (p Progress) Init() tea.Cmd { return p.waitForUpdate() }

func (p Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return p, tea.Quit
		}
		return p, nil
	case ProgressMsg:
		p.done = msg.Done
		p.total = msg.Total
		return p, p.waitForUpdate()
	case DoneMsg:
		p.err = msg.Err
		return p, tea.Quit
	}
	return p, nil
}

func (p Progress) View() string {
	if p.total == 0 {
		return "  " + dim.Render("waiting for runs...") + "\n"
	}
	filled := p.done * barWidth / p.total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	elapsed := time.Since(p.started).Round(time.Second)
	return fmt.Sprintf("  %s %s %s\n",
		cyan.Render(bar),
		white.Render(fmt.Sprintf("%d/%d", p.done, p.total)),
		dim.Render(elapsed.String()))
}
