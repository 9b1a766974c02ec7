package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	if m.showActivity {
		b.WriteString("\n")
		b.WriteString(m.renderActivity())
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// renderContent renders the room list for the current view, or the loading
// and empty states.
func (m Model) renderContent() string {
	styles := m.theme.Styles()
	snap := m.snapshot

	body := func(s string) string {
		return lipgloss.NewStyle().Padding(1, 2).Render(s)
	}

	if !snap.Loaded && len(snap.Rooms) == 0 {
		if snap.LastError != nil {
			return body(styles.DangerText.Render("Cannot load rooms: ") + styles.MutedText.Render(snap.LastError.Error()) +
				"\n" + styles.FaintText.Render("press r to retry"))
		}
		return body(styles.WarningText.Render("Loading rooms…"))
	}
	if len(snap.Rooms) == 0 {
		return body(styles.MutedText.Render("No rooms listed."))
	}

	operator := m.view == ViewOperator
	var rows []Row
	if operator {
		rows = OperatorRows(snap, m.cursor, m.pending)
	} else {
		rows = BrokerRows(snap)
	}

	width := max(m.width-2, 40)
	return lipgloss.NewStyle().Padding(0, 1).Render(
		renderSummary(snap, styles) + "\n\n" + renderRows(rows, styles, width, operator),
	)
}

// renderActivity renders the log tail pane.
func (m Model) renderActivity() string {
	styles := m.theme.Styles()
	title := styles.AccentText.Bold(true).Render("Activity")
	return title + "\n" + styles.SurfaceAlt.Width(m.width).Render(m.activity.View())
}

// renderFooter renders the last notice and the key hints.
func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	var lines []string
	if m.notice != "" {
		if m.noticeErr {
			lines = append(lines, styles.DangerText.Render(m.notice))
		} else {
			lines = append(lines, styles.MutedText.Render(m.notice))
		}
	}
	lines = append(lines, styles.Footer.Width(m.width).Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	return strings.Join(lines, "\n")
}
