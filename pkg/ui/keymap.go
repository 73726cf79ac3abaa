package ui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	UnfocusMessage key.Binding
	FocusMessage   key.Binding
	SubmitMessage  key.Binding
	AskSample      key.Binding
	ScrollUp       key.Binding
	ScrollDown     key.Binding

	Retry           key.Binding
	DismissError    key.Binding
	NewConversation key.Binding
	SaveToFile      key.Binding

	Help key.Binding
	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	UnfocusMessage: key.NewBinding(
		key.WithKeys("esc", "ctrl+g"),
		key.WithHelp("esc", "browse"),
	),
	FocusMessage: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "type"),
	),
	SubmitMessage: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "ask"),
	),
	AskSample: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
		key.WithHelp("1-9", "ask sample"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("shift+pgup"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("shift+pgdown"),
	),
	Retry: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("ctrl+r", "retry"),
	),
	DismissError: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "dismiss"),
	),
	NewConversation: key.NewBinding(
		key.WithKeys("ctrl+n"),
		key.WithHelp("ctrl+n", "new chat"),
	),
	SaveToFile: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "save"),
	),
	Help: key.NewBinding(
		key.WithKeys("f1"),
		key.WithHelp("f1", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.SubmitMessage, k.Retry, k.DismissError, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.SubmitMessage, k.AskSample, k.UnfocusMessage, k.FocusMessage},
		{k.Retry, k.DismissError, k.NewConversation, k.SaveToFile},
		{k.Help, k.Quit},
	}
}
