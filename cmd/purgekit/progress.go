package main

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/purgekit/internal/task"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	pathStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	countStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED"))
)

// eventMsg carries one runner event into the bubbletea loop.
type eventMsg task.Event

// eventsClosedMsg is sent if the channel closes without a terminal event.
type eventsClosedMsg struct{}

func waitForEvent(events <-chan task.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// scanModel renders a spinner with running totals and prints each found
// path above it.
type scanModel struct {
	spinner    spinner.Model
	events     <-chan task.Event
	cancel     func()
	purge      bool
	found      int
	current    string
	cancelling bool
	done       *task.Event
}

func newScanModel(events <-chan task.Event, cancel func(), purge bool) scanModel {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = countStyle
	return scanModel{spinner: s, events: events, cancel: cancel, purge: purge}
}

func (m scanModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m scanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		ev := task.Event(msg)
		if ev.Kind == task.EventDone {
			m.done = &ev
			return m, tea.Quit
		}
		m.found = ev.Found
		m.current = ev.Path
		line := ev.Path
		if ev.Removed {
			line = "removed " + line
		}
		return m, tea.Batch(tea.Println(line), waitForEvent(m.events))
	case eventsClosedMsg:
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
			}
		}
	}
	return m, nil
}

func (m scanModel) View() string {
	if m.done != nil {
		return ""
	}
	title := "Scanning"
	if m.purge {
		title = "Purging"
	}
	if m.cancelling {
		title = "Cancelling"
	}
	return fmt.Sprintf("%s %s %s %s\n",
		m.spinner.View(),
		titleStyle.Render(title),
		countStyle.Render(fmt.Sprintf("%d found", m.found)),
		pathStyle.Render(m.current),
	)
}

// watchInteractive runs the progress view until the run ends and returns the
// terminal event. cancel is called when the user presses ctrl+c.
func watchInteractive(events <-chan task.Event, cancel func(), purge bool) (task.Event, error) {
	p := tea.NewProgram(newScanModel(events, cancel, purge))
	final, err := p.Run()
	if err != nil {
		return task.Event{}, fmt.Errorf("running progress view: %w", err)
	}
	m := final.(scanModel)
	if m.done == nil {
		return task.Event{}, nil
	}
	return *m.done, nil
}
