// Package tui renders live terminal views for running simulations.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/fmulab/internal/fmi2"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

const historyLen = 120

// Watch drives an initialized co-simulation instance step by step and renders
// its outputs live. The instance must be in step mode when the program starts.
type Watch struct {
	inst     *fmi2.Instance
	names    []string
	stepSize float64
	stopTime float64

	values  []float64
	history []float64
	paused  bool
	speed   float64
	done    bool
	err     error

	width  int
	height int
}

// NewWatch builds the live view over an instance. names selects the variables
// to display; the first one is plotted.
func NewWatch(inst *fmi2.Instance, names []string, stepSize, stopTime float64) *Watch {
	return &Watch{
		inst:     inst,
		names:    names,
		stepSize: stepSize,
		stopTime: stopTime,
		values:   make([]float64, len(names)),
		history:  make([]float64, 0, historyLen),
		speed:    1.0,
		width:    80,
		height:   24,
	}
}

// Run blocks until the view exits and returns the first simulation error.
func (w *Watch) Run() error {
	p := tea.NewProgram(*w, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Watch); ok && m.err != nil {
		return m.err
	}
	return nil
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (w Watch) Init() tea.Cmd { return tick() }

func (w Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "escape":
			return w, tea.Quit
		case " ", "p":
			w.paused = !w.paused
		case "+", "=":
			w.speed = math.Min(w.speed*2, 32)
		case "-", "_":
			w.speed = math.Max(w.speed/2, 0.25)
		case "0":
			w.speed = 1.0
		}
		return w, nil
	case tea.WindowSizeMsg:
		w.width = msg.Width
		w.height = msg.Height
		return w, nil
	case tickMsg:
		if w.done || w.err != nil {
			return w, tick()
		}
		if !w.paused {
			steps := int(w.speed)
			if steps < 1 {
				steps = 1
			}
			for s := 0; s < steps && !w.done; s++ {
				w.advance()
			}
		}
		return w, tick()
	}
	return w, nil
}

func (w *Watch) advance() {
	h := w.stepSize
	if remaining := w.stopTime - w.inst.Time(); remaining < h {
		h = remaining
	}
	if h <= 0 {
		w.done = true
		return
	}
	if err := w.inst.DoStep(h); err != nil {
		w.err = err
		return
	}
	values, err := w.inst.Get(w.names)
	if err != nil {
		w.err = err
		return
	}
	for i, v := range values {
		w.values[i] = asFloat(v)
	}
	w.history = append(w.history, w.values[0])
	if len(w.history) > historyLen {
		w.history = w.history[1:]
	}
	if w.inst.Time() >= w.stopTime {
		w.done = true
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int32:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	}
	return 0
}

func (w Watch) View() string {
	var b strings.Builder

	status := green.Render("running")
	switch {
	case w.err != nil:
		status = red.Render("error")
	case w.done:
		status = yellow.Render("done")
	case w.paused:
		status = yellow.Render("paused")
	}
	b.WriteString(fmt.Sprintf("  %s  %s  t=%s  speed=%sx\n\n",
		cyan.Render(w.inst.Name()),
		status,
		white.Render(fmt.Sprintf("%.3fs", w.inst.Time())),
		white.Render(fmt.Sprintf("%.2g", w.speed))))

	if len(w.history) > 1 {
		plotHeight := w.height - 10
		if plotHeight < 5 {
			plotHeight = 5
		}
		if plotHeight > 15 {
			plotHeight = 15
		}
		graph := asciigraph.Plot(w.history,
			asciigraph.Height(plotHeight),
			asciigraph.Width(w.width-12),
			asciigraph.Caption(w.names[0]))
		b.WriteString(graph + "\n\n")
	}

	for i, name := range w.names {
		b.WriteString(fmt.Sprintf("  %s %s\n", dim.Render(name+":"), white.Render(fmt.Sprintf("%10.4f", w.values[i]))))
	}
	if w.err != nil {
		b.WriteString("\n  " + red.Render(w.err.Error()) + "\n")
	}

	b.WriteString("\n  " + dim.Render("[space] pause  [+/-] speed  [q] quit") + "\n")
	return b.String()
}
