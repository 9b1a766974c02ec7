package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/roomboard/internal/stream"
)

// renderHeader renders the status bar: view, live connection, room count and
// sync health.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	sep := "  "

	parts := []string{
		bg.Render("roomboard", styles.Logo),
		bg.Render(strings.ToUpper(m.view.String()), styles.AccentText.Bold(true)),
		m.renderStreamBadge(styles, bg),
	}

	snap := m.snapshot
	switch {
	case snap.IsOffline():
		parts = append(parts, bg.Render("OFFLINE "+classifyError(snap.LastError), styles.DangerText))
	case snap.LastError != nil:
		parts = append(parts, bg.Render("sync error, retrying", styles.WarningText))
	}

	if snap.Loaded {
		parts = append(parts,
			bg.Render("Rooms:", styles.MutedText)+bg.Spaces(1)+bg.Render(fmt.Sprintf("%d", len(snap.Rooms)), styles.Text),
			bg.Render(fmt.Sprintf("v%d", snap.Version), styles.FaintText),
		)
	}
	if !snap.LastUpdated.IsZero() && m.width >= 80 {
		parts = append(parts, bg.Render(snap.LastUpdated.Format(time.TimeOnly), styles.MutedText))
	}
	if m.apiBase != "" && m.width >= 110 {
		parts = append(parts, bg.Render(m.apiBase, styles.FaintText))
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Surface)).
		Foreground(lipgloss.Color(m.theme.Text)).
		Width(m.width).
		Render(bg.Join(parts, sep))
}

func (m Model) renderStreamBadge(styles Styles, bg BgStyle) string {
	switch m.streamState {
	case stream.StateOpen:
		return bg.Render("● LIVE", styles.SuccessText)
	case stream.StateConnecting:
		return bg.Render("● CONNECTING", styles.WarningText)
	default:
		return bg.Render("● DISCONNECTED", styles.DangerText)
	}
}

// classifyError shortens transport errors for the header.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "(server unreachable)"
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "Client.Timeout"):
		return "(timeout)"
	case strings.Contains(msg, "returned status"):
		return "(server error)"
	case strings.Contains(msg, "invalid snapshot"), strings.Contains(msg, "malformed"):
		return "(bad data)"
	default:
		return ""
	}
}
