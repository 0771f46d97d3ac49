// Package tui renders a live progress view for an analysis run, consuming
// the broadcast stream and drawing one line per level slot.
package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/progress"
)

// Options configure the progress view.
type Options struct {
	// RunID is shown in the header.
	RunID string
	// Events is the run's broadcast subscription.
	Events <-chan any
	// OnCancel is invoked when the user requests cancellation. The view
	// stays up until the cancelled status arrives on the stream.
	OnCancel func()
}

// progressMsg carries one progress snapshot into the update loop.
type progressMsg progress.Message

// streamClosedMsg signals that the subscription channel was closed.
type streamClosedMsg struct{}

// Model is the bubbletea model for the progress view.
type Model struct {
	runID      string
	events     <-chan any
	onCancel   func()
	spinner    spinner.Model
	latest     progress.Message
	received   bool
	cancelling bool
	done       bool
}

// New creates a progress view model.
func New(opts Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return Model{
		runID:    opts.RunID,
		events:   opts.Events,
		onCancel: opts.OnCancel,
		spinner:  sp,
	}
}

// Run drives the view to completion on the current terminal.
func Run(opts Options) error {
	_, err := tea.NewProgram(New(opts)).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForProgress(m.events))
}

// waitForProgress blocks for the next snapshot on the subscription.
func waitForProgress(ch <-chan any) tea.Cmd {
	return func() tea.Msg {
		for raw := range ch {
			if msg, ok := raw.(progress.Message); ok {
				return progressMsg(msg)
			}
		}
		return streamClosedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.latest = progress.Message(msg)
		m.received = true
		if m.latest.Status.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, waitForProgress(m.events)

	case streamClosedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancelling {
				// Second press abandons the view without waiting.
				return m, tea.Quit
			}
			m.cancelling = true
			if m.onCancel != nil {
				m.onCancel()
			}
			return m, nil
		}
	}
	return m, nil
}
