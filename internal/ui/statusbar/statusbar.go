// Package statusbar renders the tracker as a one-line terminal status bar.
package statusbar

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"worktally/internal/core/tracker"
	"worktally/resources"
)

// Source is the slice of the tracker the status bar drives.
type Source interface {
	Toggle()
	OnActivity(now time.Time)
	DisplayState() tracker.DisplayState
	Peek() tracker.DisplayState
}

var (
	barStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 2)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F7DC6F"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

type tickMsg time.Time

type eventMsg tracker.Event

// FreezeMsg delivers a freeze notice to a running program.
type FreezeMsg tracker.FreezeNotice

// Model is the bubbletea model of the status bar.
type Model struct {
	source   Source
	events   <-chan tracker.Event
	interval time.Duration
	now      func() time.Time

	width   int
	tickets []*tracker.RevertTicket
	notice  string
}

// New creates a status bar over source. events may be nil.
func New(source Source, events <-chan tracker.Event) Model {
	return Model{
		source:   source,
		events:   events,
		interval: time.Second,
		now:      time.Now,
	}
}

// Notifier forwards freeze notices into program.
func Notifier(program *tea.Program) tracker.Notifier {
	return tracker.NotifierFunc(func(notice tracker.FreezeNotice) {
		program.Send(FreezeMsg(notice))
	})
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	events := m.events
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tickCmd(), m.waitForEvent())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.source.OnActivity(m.now())
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.source.Toggle()
		case "r":
			m = m.revert()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		// Reconcile so a resume from sleep is noticed while the bar is idle.
		m.source.DisplayState()
		return m, m.tickCmd()
	case eventMsg:
		if msg.Type == tracker.EventSubjectChanged {
			m.tickets = nil
			m.notice = ""
		}
		return m, m.waitForEvent()
	case FreezeMsg:
		if msg.Ticket != nil {
			m.tickets = append(m.tickets, msg.Ticket)
		}
		m.notice = fmt.Sprintf("Hibernation or freeze detected: For %s. This time is not counted. Press r to count it anyway.",
			tracker.FormatDuration(int64(msg.Gap.Seconds())))
	}
	return m, nil
}

func (m Model) revert() Model {
	credited := int64(0)
	for _, ticket := range m.tickets {
		if ticket.Revert() {
			credited += ticket.ExcludedSeconds()
		}
	}
	m.tickets = nil
	if credited > 0 {
		m.notice = fmt.Sprintf("Counted %s of frozen time.", tracker.FormatDuration(credited))
	} else {
		m.notice = ""
	}
	return m
}

func (m Model) View() string {
	state := m.source.Peek()

	bar := barStyle.
		Background(lipgloss.Color(resources.StatusColor(state.Status))).
		Render(state.String())
	if m.width > 0 {
		bar = lipgloss.PlaceHorizontal(m.width, lipgloss.Left, bar)
	}

	lines := []string{bar}
	if m.notice != "" {
		lines = append(lines, noticeStyle.Render(m.notice))
	}
	lines = append(lines, helpStyle.Render("space: start/stop • r: count frozen time • q: quit"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
