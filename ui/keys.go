package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Speak     key.Binding
	Stop      key.Binding
	Replay    key.Binding
	Download  key.Binding
	Clear     key.Binding
	Grab      key.Binding
	NextVoice key.Binding
	PrevVoice key.Binding
	Language  key.Binding
	Faster    key.Binding
	Slower    key.Binding
	Mode      key.Binding
	Format    key.Binding
	Refresh   key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Speak:     key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "speak")),
		Stop:      key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "stop")),
		Replay:    key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "replay")),
		Download:  key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "save wav")),
		Clear:     key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear")),
		Grab:      key.NewBinding(key.WithKeys("ctrl+g"), key.WithHelp("ctrl+g", "use clipboard")),
		NextVoice: key.NewBinding(key.WithKeys("f2"), key.WithHelp("f2", "next voice")),
		PrevVoice: key.NewBinding(key.WithKeys("f12"), key.WithHelp("f12", "prev voice")),
		Language:  key.NewBinding(key.WithKeys("f3"), key.WithHelp("f3", "language")),
		Faster:    key.NewBinding(key.WithKeys("ctrl+up"), key.WithHelp("ctrl+↑", "faster")),
		Slower:    key.NewBinding(key.WithKeys("ctrl+down"), key.WithHelp("ctrl+↓", "slower")),
		Mode:      key.NewBinding(key.WithKeys("f4"), key.WithHelp("f4", "service/model")),
		Format:    key.NewBinding(key.WithKeys("f5"), key.WithHelp("f5", "native/openai")),
		Refresh:   key.NewBinding(key.WithKeys("f6"), key.WithHelp("f6", "test server")),
		Help:      key.NewBinding(key.WithKeys("f1"), key.WithHelp("f1", "help")),
		Quit:      key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Speak, k.Stop, k.Replay, k.Download, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Speak, k.Stop, k.Replay, k.Download},
		{k.Clear, k.Grab, k.Faster, k.Slower},
		{k.NextVoice, k.PrevVoice, k.Language},
		{k.Mode, k.Format, k.Refresh, k.Quit},
	}
}
