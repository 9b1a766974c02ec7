package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit         key.Binding
	Help         key.Binding
	CycleTheme   key.Binding
	ToggleView   key.Binding
	ToggleEvents key.Binding
	Reload       key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Operator actions
	SetAvailable  key.Binding
	SetGuiding    key.Binding
	SetContracted key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		ToggleView: key.NewBinding(
			key.WithKeys("tab", "v"),
			key.WithHelp("tab", "Broker/operator"),
		),
		ToggleEvents: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "Activity pane"),
		),
		Reload: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Reload"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),

		SetAvailable: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "Available"),
		),
		SetGuiding: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "Guiding"),
		),
		SetContracted: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "Contracted"),
		),
	}
}

// ShortHelp implements help.KeyMap for the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.SetAvailable, k.SetGuiding, k.SetContracted, k.Reload, k.ToggleView, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap for the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bottom},
		{k.SetAvailable, k.SetGuiding, k.SetContracted, k.Reload},
		{k.ToggleView, k.ToggleEvents, k.CycleTheme, k.Help, k.Quit},
	}
}

// withView enables the bindings that apply to view. Status keys only work
// in the operator view.
func (k keyMap) withView(view View) keyMap {
	operator := view == ViewOperator
	k.SetAvailable.SetEnabled(operator)
	k.SetGuiding.SetEnabled(operator)
	k.SetContracted.SetEnabled(operator)
	return k
}
