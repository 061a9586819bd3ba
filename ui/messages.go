package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/kokoro-tts/internal/artifact"
	"github.com/dgnsrekt/kokoro-tts/internal/service"
	"github.com/dgnsrekt/kokoro-tts/internal/settings"
	"github.com/dgnsrekt/kokoro-tts/internal/speech"
)

// Speaker is the part of speech.Controller the TUI drives.
type Speaker interface {
	Generate(ctx context.Context, req speech.Request) (*artifact.Artifact, error)
	Stop()
	Replay() error
	Clear()
	Download(dir string) (string, error)
}

// Discoverer lists the voices a server offers.
type Discoverer interface {
	Discover(ctx context.Context, t service.Target) service.Catalog
}

// SettingsStore persists a changed setting.
type SettingsStore interface {
	Set(key string, value any) error
}

// SettingsWatcher reports config file edits made outside the program.
type SettingsWatcher interface {
	Watch(fn func(settings.Settings))
}

type (
	statusMsg speech.Status

	generateDoneMsg struct {
		artifact *artifact.Artifact
		err      error
	}

	downloadDoneMsg struct {
		path string
		size int
		err  error
	}

	catalogMsg service.Catalog

	settingsMsg settings.Settings

	clipboardMsg struct {
		text string
		err  error
	}

	errMsg struct{ err error }
)

func (e errMsg) Error() string { return e.err.Error() }

// Notifier forwards controller statuses into the program. It never blocks;
// statuses are dropped while the buffer is full.
type Notifier struct {
	ch chan speech.Status
}

// NewNotifier returns a Notifier with room for n pending statuses.
func NewNotifier(n int) *Notifier {
	return &Notifier{ch: make(chan speech.Status, n)}
}

func (n *Notifier) Notify(s speech.Status) {
	select {
	case n.ch <- s:
	default:
		log.Debug("Dropped status", "message", s.Message)
	}
}

func waitForStatus(ch <-chan speech.Status) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return statusMsg(s)
	}
}

func generateCmd(s Speaker, req speech.Request) tea.Cmd {
	return func() tea.Msg {
		a, err := s.Generate(context.Background(), req)
		return generateDoneMsg{artifact: a, err: err}
	}
}

func downloadCmd(s Speaker, dir string, size int) tea.Cmd {
	return func() tea.Msg {
		path, err := s.Download(dir)
		return downloadDoneMsg{path: path, size: size, err: err}
	}
}

func replayCmd(s Speaker) tea.Cmd {
	return func() tea.Msg {
		if err := s.Replay(); err != nil {
			log.Debug("Replay failed", "err", err)
		}
		return nil
	}
}

func discoverCmd(d Discoverer, t service.Target) tea.Cmd {
	if d == nil {
		return nil
	}
	return func() tea.Msg {
		return catalogMsg(d.Discover(context.Background(), t))
	}
}
