// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/curioloop/dqed/dqed"
)

const historyCapacity = 600

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("78")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

// Snap is one completed evaluation observed by the live view. The solver
// probes trial points as well as accepted ones, so residuals arrive
// non-monotone.
type Snap struct {
	Eval     int
	Residual float64
	X        []float64
}

// Done carries the finished fit into the view.
type Done struct {
	Result  *dqed.Result
	Err     error
	Elapsed time.Duration
}

type TickMsg time.Time

// Model is the live view of a running solve. It owns no solver state:
// evaluations stream in on the snap channel and the final result on the
// done channel, both fed by the goroutine running the fit.
type Model struct {
	name    string
	snaps   <-chan Snap
	done    <-chan Done
	history []float64
	latest  Snap
	fin     *Done
	start   time.Time
	paused  bool
}

func NewModel(name string, snaps <-chan Snap, done <-chan Done) Model {
	return Model{
		name:    name,
		snaps:   snaps,
		done:    done,
		history: make([]float64, 0, historyCapacity),
		start:   time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		}
	case TickMsg:
		if !m.paused {
			m.drain()
		}
		if m.fin != nil {
			return m, nil
		}
		return m, tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
	}
	return m, nil
}

// drain consumes everything buffered on the channels without blocking.
func (m *Model) drain() {
	for {
		select {
		case snap := <-m.snaps:
			m.latest = snap
			m.history = append(m.history, snap.Residual)
			if len(m.history) > historyCapacity {
				m.history = m.history[1:]
			}
		default:
			select {
			case fin := <-m.done:
				m.fin = &fin
			default:
			}
			return
		}
	}
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.name)) + "\n")

	status := "RUNNING"
	switch {
	case m.fin != nil && m.fin.Err != nil:
		status = failStyle.Render("FAILED: " + m.fin.Err.Error())
	case m.fin != nil:
		r := m.fin.Result
		if r.OK {
			status = okStyle.Render(fmt.Sprintf("FINISHED: %v", r.Status))
		} else {
			status = failStyle.Render(fmt.Sprintf("STOPPED: %v", r.Status))
		}
	case m.paused:
		status = "PAUSED"
	}
	s.WriteString(status + "\n")

	if len(m.history) > 1 {
		s.WriteString(graphStyle.Render(Convergence(m.history, 60, 10)) + "\n\n")
	}

	elapsed := time.Since(m.start)
	if m.fin != nil {
		elapsed = m.fin.Elapsed
	}
	s.WriteString(labelStyle.Render("Elapsed") + valueStyle.Render(elapsed.Round(time.Millisecond).String()) + "\n")

	if m.latest.Eval > 0 {
		s.WriteString(labelStyle.Render("Evals") + valueStyle.Render(fmt.Sprintf("%d", m.latest.Eval)) + "\n")
		s.WriteString(labelStyle.Render("Residual") + valueStyle.Render(fmt.Sprintf("%.6e", m.latest.Residual)) + "\n")
		for i, x := range m.latest.X {
			if i == 6 {
				s.WriteString(labelStyle.Render("") + valueStyle.Render(fmt.Sprintf("... %d more", len(m.latest.X)-i)) + "\n")
				break
			}
			s.WriteString(labelStyle.Render(fmt.Sprintf("x[%d]", i)) + valueStyle.Render(fmt.Sprintf("% .6e", x)) + "\n")
		}
	}

	if m.fin != nil && m.fin.Result != nil {
		r := m.fin.Result
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Iterations") + valueStyle.Render(fmt.Sprintf("%d", r.NumIter)) + "\n")
		s.WriteString(labelStyle.Render("Evaluations") + valueStyle.Render(fmt.Sprintf("%d", r.NumEval)) + "\n")
		s.WriteString(labelStyle.Render("Final f") + valueStyle.Render(fmt.Sprintf("%.6e", r.F)) + "\n")
	}

	s.WriteString(helpStyle.Render("SP:Freeze Q:Quit"))
	return s.String()
}
