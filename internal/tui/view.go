package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/progress"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/stream"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle    = lipgloss.NewStyle().Faint(true)
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	cancelledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	pendingStyle   = lipgloss.NewStyle().Faint(true)
	detailStyle    = lipgloss.NewStyle().Faint(true).PaddingLeft(4)
)

// slotNames maps the four level slots to their display names.
var slotNames = map[string]string{
	"1": "Level 1 · line-level",
	"2": "Level 2 · module design",
	"3": "Level 3 · system impact",
	"4": "Synthesis",
}

var slotOrder = []string{"1", "2", "3", "4"}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("pair-review") + " " + headerStyle.Render("run "+m.runID) + "\n\n")

	if !m.received {
		b.WriteString(m.spinner.View() + " waiting for analysis to start\n")
		return b.String()
	}

	for _, slot := range slotOrder {
		lvl, ok := m.latest.Levels[slot]
		if !ok {
			continue
		}
		b.WriteString(m.slotLine(slot, lvl) + "\n")
		for _, detail := range slotDetails(lvl) {
			b.WriteString(detailStyle.Render(detail) + "\n")
		}
	}

	b.WriteString("\n")
	switch {
	case m.cancelling && !m.latest.Status.Terminal():
		b.WriteString(cancelledStyle.Render("cancelling…") + "\n")
	case m.latest.Status.Terminal():
		b.WriteString(m.statusGlyph(m.latest.Status) + " " + string(m.latest.Status) + ": " + m.latest.Progress + "\n")
	default:
		b.WriteString(headerStyle.Render(m.latest.Progress+"  (q to cancel)") + "\n")
	}

	return b.String()
}

// slotLine renders the headline for one level slot.
func (m Model) slotLine(slot string, lvl *progress.LevelStatus) string {
	line := fmt.Sprintf("%s %-24s %s", m.statusGlyph(lvl.Status), slotNames[slot], lvl.Progress)
	if ev := lvl.StreamEvent; ev != nil {
		line += "  " + headerStyle.Render(renderEvent(ev))
	}
	return line
}

// slotDetails renders per-voice and per-step sub-lines for a slot.
func slotDetails(lvl *progress.LevelStatus) []string {
	var details []string

	if len(lvl.Voices) > 0 {
		ids := make([]string, 0, len(lvl.Voices))
		for id := range lvl.Voices {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			v := lvl.Voices[id]
			details = append(details, fmt.Sprintf("%s: %s %s", id, v.Status, v.Progress))
		}
	}

	if len(lvl.Steps) > 0 {
		names := make([]string, 0, len(lvl.Steps))
		for name := range lvl.Steps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s := lvl.Steps[name]
			details = append(details, fmt.Sprintf("%s: %s %s", name, s.Status, s.Progress))
		}
	}

	return details
}

// renderEvent condenses a stream event into one annotation.
func renderEvent(ev *stream.Event) string {
	switch ev.Kind {
	case stream.KindTextDelta, stream.KindTurnSummary:
		return "“" + ev.Text + "”"
	case stream.KindToolCallStart:
		if ev.ArgumentPreview != "" {
			return "⚙ " + ev.ToolName + ": " + ev.ArgumentPreview
		}
		return "⚙ " + ev.ToolName
	case stream.KindToolCallEnd:
		return "⚙ done"
	}
	return ""
}

// statusGlyph maps a status to its marker, using the spinner for running.
func (m Model) statusGlyph(s progress.Status) string {
	switch s {
	case progress.StatusCompleted:
		return completedStyle.Render("✓")
	case progress.StatusFailed:
		return failedStyle.Render("✗")
	case progress.StatusCancelled:
		return cancelledStyle.Render("⊘")
	case progress.StatusRunning:
		return m.spinner.View()
	}
	return pendingStyle.Render("○")
}
