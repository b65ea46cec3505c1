package main

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brensch/runger/executor/generation"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var totalTicks atomic.Int64
var totalGenerations atomic.Int64
var totalAgents atomic.Int64
var totalSurvivors atomic.Int64

// GenerationUpdate is sent to the dashboard when a worker finishes a generation.
type GenerationUpdate struct {
	WorkerID int
	Summary  generation.Summary
	Rows     int
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(18)
	valueStyle = lipgloss.NewStyle().Bold(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type model struct {
	generations int
	rows        int
	ticks       int64
	startTime   time.Time
	recent      []string
	updates     chan GenerationUpdate
	quit        func()
}

func initialModel(updates chan GenerationUpdate, quit func()) model {
	return model{
		startTime: time.Now(),
		updates:   updates,
		quit:      quit,
	}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(updates chan GenerationUpdate) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			if m.quit != nil {
				m.quit()
			}
			return m, tea.Quit
		}
	case TickMsg:
		m.ticks = totalTicks.Load()
		return m, tickCmd()
	case GenerationUpdate:
		m.generations++
		m.rows += msg.Rows
		line := fmt.Sprintf("worker %d: %s survived %d/%d (%.1f%%) in %d ticks",
			msg.WorkerID, msg.Summary.GenerationID, msg.Summary.Alive, msg.Summary.Total, msg.Summary.Fraction*100, msg.Summary.Turns)
		m.recent = append([]string{line}, m.recent...)
		if len(m.recent) > 10 {
			m.recent = m.recent[:10]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	gensPerSec := float64(m.generations) / duration.Seconds()
	ticksPerSec := float64(m.ticks) / duration.Seconds()
	if duration.Seconds() < 1 {
		gensPerSec = 0
		ticksPerSec = 0
	}
	survival := 0.0
	if agents := totalAgents.Load(); agents > 0 {
		survival = float64(totalSurvivors.Load()) / float64(agents) * 100
	}

	row := func(label, value string) string {
		return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
	}

	var b strings.Builder
	b.WriteString(row("Generations", fmt.Sprintf("%d", m.generations)))
	b.WriteString(row("Archived rows", fmt.Sprintf("%d", m.rows)))
	b.WriteString(row("Ticks", fmt.Sprintf("%d", m.ticks)))
	b.WriteString(row("Duration", duration.Round(time.Second).String()))
	b.WriteString(row("Generations/sec", fmt.Sprintf("%.2f", gensPerSec)))
	b.WriteString(row("Ticks/sec", fmt.Sprintf("%.2f", ticksPerSec)))
	b.WriteString(row("Mean survival", fmt.Sprintf("%.1f%%", survival)))

	s := titleStyle.Render("runger") + "\n" + boxStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n\n"
	s += "Recent generations:\n"
	for _, g := range m.recent {
		s += g + "\n"
	}
	s += "\n" + dimStyle.Render("Press q to quit.") + "\n"
	return s
}
