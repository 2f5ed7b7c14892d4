package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	track   key.Binding
	start   key.Binding
	clear   key.Binding
	refresh key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		track:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "track/untrack")),
		start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start scan")),
		clear:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "untrack all")),
		refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload courses")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.track, k.start, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.track},
		{k.start, k.clear, k.refresh},
		{k.quit},
	}
}
