package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap collects every binding the screens share.
type KeyMap struct {
	Tab          key.Binding
	ShiftTab     key.Binding
	Quit         key.Binding
	Refresh      key.Binding
	FilterTicker key.Binding
	FilterTrend  key.Binding
	ToggleView   key.Binding
}

func bind(help string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(keys[0], help))
}

// DefaultKeyMap is the one binding set; screens read it directly.
var DefaultKeyMap = KeyMap{
	Tab:          bind("next tab", "tab"),
	ShiftTab:     bind("prev tab", "shift+tab"),
	Quit:         bind("quit", "q", "ctrl+c"),
	FilterTicker: bind("cycle ticker", "s"),
	FilterTrend:  bind("cycle trend", "t"),
	Refresh:      bind("refresh", "R"),
	ToggleView:   bind("toggle view", "v"),
}
