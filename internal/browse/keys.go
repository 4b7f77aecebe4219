package browse

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings for the issue browser.
type KeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Home   key.Binding
	End    key.Binding
	Select key.Binding // Confirm a picker choice.
	Cancel key.Binding // Close the picker or media viewer.

	// Mutations.
	Status    key.Binding // Open the status picker.
	Type      key.Binding // Open the type picker.
	Create    key.Binding // Open the new issue form.
	NextField key.Binding // Switch between summary and assignee.

	// Media viewer.
	Attachments      key.Binding // Open the viewer on the first attachment.
	NextAttachment   key.Binding
	DeleteAttachment key.Binding

	Filter  key.Binding // Fuzzy filter the list by summary.
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap is the built-in key binding set. Vim-style navigation
// (j/k) alongside arrow keys.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Home: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g", "top"),
	),
	End: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "bottom"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "apply"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "close"),
	),
	Status: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "status"),
	),
	Type: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "type"),
	),
	Create: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "new issue"),
	),
	NextField: key.NewBinding(
		key.WithKeys("tab", "shift+tab"),
		key.WithHelp("Tab", "next field"),
	),
	Attachments: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "attachments"),
	),
	NextAttachment: key.NewBinding(
		key.WithKeys("n", "tab"),
		key.WithHelp("n", "next file"),
	),
	DeleteAttachment: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "delete file"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reload"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Status, k.Type, k.Create, k.Attachments, k.Filter, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Home, k.End},
		{k.Status, k.Type, k.Select, k.Cancel},
		{k.Create, k.NextField},
		{k.Attachments, k.NextAttachment, k.DeleteAttachment},
		{k.Filter, k.Refresh, k.Help, k.Quit},
	}
}
