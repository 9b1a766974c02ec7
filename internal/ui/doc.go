// Package ui is the roomboard terminal interface, built on Bubble Tea.
//
// Two projections read the same state.Registry:
//
//   - Broker view: read-only list of rooms in registry order with a
//     status badge per room.
//   - Operator view: the same list with a cursor. Keys 1, 2 and 3 issue
//     a status command for the selected room; rooms with a command in
//     flight are marked until it finishes. r forces a snapshot reload.
//
// The model never polls the registry. It subscribes once and turns each
// change signal into a changeMsg carrying a fresh snapshot, so both views
// re-derive after every mutation. A one-second tick refreshes the stream
// badge in the header and, when open, the activity pane (the tail of the
// JSON log via internal/logtail).
//
// # Files
//
//   - app.go: Model, Update/View, messages and commands
//   - projection.go: BrokerRows/OperatorRows and the room table
//   - header.go, view.go, help.go: rendering
//   - keys.go: bindings (bubbles/key) and footer help
//   - theme.go, style_helpers.go: lipgloss themes and helpers
package ui
