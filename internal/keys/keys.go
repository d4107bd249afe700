package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keybindings for the application.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding
	// NextPage and PrevPage move between server-side message pages.
	NextPage key.Binding
	PrevPage key.Binding

	// Selection
	Select key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding

	// Help toggle and command prompt
	Help    key.Binding
	Command key.Binding

	// Manual refresh
	Refresh key.Binding

	// Message actions
	ToggleSeen key.Binding
	Delete     key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		NextPage: key.NewBinding(
			key.WithKeys("n", "pgdown"),
			key.WithHelp("n", "older page"),
		),
		PrevPage: key.NewBinding(
			key.WithKeys("p", "pgup"),
			key.WithHelp("p", "newer page"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Command: key.NewBinding(
			key.WithKeys(":"),
			key.WithHelp(":", "command"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		ToggleSeen: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "mark seen/unseen"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
	}
}

// Section is a titled group of bindings on the help screen.
type Section struct {
	Title    string
	Bindings []key.Binding
}

// Sections groups the bindings by the view they act on.
func (k *KeyMap) Sections() []Section {
	return []Section{
		{Title: "Lists", Bindings: []key.Binding{k.Up, k.Down, k.Select, k.Back}},
		{Title: "Messages", Bindings: []key.Binding{k.NextPage, k.PrevPage, k.ToggleSeen, k.Delete}},
		{Title: "General", Bindings: []key.Binding{k.Refresh, k.Command, k.Help, k.Quit}},
	}
}
