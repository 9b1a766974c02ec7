package ui

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/five82/roomboard/internal/rooms"
	"github.com/five82/roomboard/internal/state"
)

// Row is one room as a view shows it.
type Row struct {
	ID       string
	Name     string
	Address  string
	Status   rooms.Status
	Label    string
	Pending  bool // a status command for this room has not finished
	Selected bool
}

// BrokerRows projects the snapshot into read-only rows, keeping registry
// order.
func BrokerRows(snap state.Snapshot) []Row {
	return lo.Map(snap.Rooms, func(r rooms.Room, _ int) Row {
		return Row{
			ID:      r.ID,
			Name:    r.Name,
			Address: r.Address,
			Status:  r.Status,
			Label:   r.Status.Label(),
		}
	})
}

// OperatorRows adds the cursor and pending markers to the broker rows.
// cursor is clamped to the row range.
func OperatorRows(snap state.Snapshot, cursor int, pending map[string]int) []Row {
	rows := BrokerRows(snap)
	cursor = clampCursor(cursor, len(rows))
	for i := range rows {
		rows[i].Selected = i == cursor
		rows[i].Pending = pending[rows[i].ID] > 0
	}
	return rows
}

func clampCursor(cursor, n int) int {
	if n == 0 {
		return 0
	}
	return min(max(cursor, 0), n-1)
}

// StatusCounts tallies rooms per status in display order.
func StatusCounts(snap state.Snapshot) map[rooms.Status]int {
	return lo.CountValuesBy(snap.Rooms, func(r rooms.Room) rooms.Status { return r.Status })
}

const (
	markerWidth = 2
	badgeWidth  = 12
	minName     = 12
)

// renderRows draws the room table for width columns.
func renderRows(rows []Row, styles Styles, width int, operator bool) string {
	nameWidth := max(minName, (width-markerWidth-badgeWidth-2)*3/5)
	addrWidth := max(0, width-markerWidth-badgeWidth-nameWidth-2)

	var b strings.Builder
	header := fit("", markerWidth) + fit("NAME", nameWidth) + " " + fit("ADDRESS", addrWidth) + " " + "STATUS"
	b.WriteString(styles.FaintText.Render(header))
	b.WriteString("\n")

	for i, row := range rows {
		marker := "  "
		if operator && row.Pending {
			marker = "… "
		}
		badge := styles.StatusStyle(row.Status).Render(fit(row.Label, badgeWidth-2))
		line := fit(marker, markerWidth) + fit(row.Name, nameWidth) + " " + fit(row.Address, addrWidth) + " "
		if operator && row.Selected {
			b.WriteString(styles.Selected.Render(line))
		} else {
			b.WriteString(styles.Text.Render(line))
		}
		b.WriteString(badge)
		if i < len(rows)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderSummary renders "Available 2  Guiding 1  Contracted 0".
func renderSummary(snap state.Snapshot, styles Styles) string {
	counts := StatusCounts(snap)
	parts := lo.Map(rooms.Statuses(), func(s rooms.Status, _ int) string {
		return styles.StatusStyle(s).Render(s.Label()) + " " + styles.Text.Render(fmt.Sprintf("%d", counts[s]))
	})
	return strings.Join(parts, "  ")
}
