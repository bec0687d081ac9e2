package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings with built-in help text.
type KeyMap struct {
	// Table
	Add     key.Binding
	Select  key.Binding
	Delete  key.Binding
	Refresh key.Binding
	History key.Binding
	Help    key.Binding
	Quit    key.Binding

	// Add dialog
	Fetch     key.Binding
	Reset     key.Binding
	Submit    key.Binding
	NextField key.Binding
	PrevField key.Binding

	// Shared
	Confirm key.Binding
	Escape  key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Add: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add"),
		),
		Select: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "select"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete selected"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh all"),
		),
		History: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "history chart"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),

		Fetch: key.NewBinding(
			key.WithKeys("ctrl+f"),
			key.WithHelp("ctrl+f", "fetch value"),
		),
		Reset: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "reset"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "add row"),
		),
		NextField: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "prev field"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("y", "enter"),
			key.WithHelp("y", "confirm"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close"),
		),
	}
}

// ShortHelp implements help.KeyMap for the table view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Add, k.Select, k.Delete, k.Refresh, k.History, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Add, k.Select, k.Delete, k.Refresh, k.History},
		{k.Fetch, k.Reset, k.Submit, k.NextField, k.PrevField},
		{k.Confirm, k.Escape, k.Help, k.Quit},
	}
}

// dialogKeys is the help shown inside the add dialog.
type dialogKeys KeyMap

func (k dialogKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Fetch, k.Reset, k.Submit, k.NextField, k.Escape}
}

func (k dialogKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
