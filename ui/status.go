package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/kokoro-tts/internal/speech"
)

// statusLine shows the latest controller status. Success messages hide
// themselves after a timeout, matching the popup.
type statusLine struct {
	status  speech.Status
	visible bool
	// seq invalidates pending hide timers when a newer status arrives
	seq int

	// percent of the model download, -1 when not downloading
	percent int
}

type statusTimeoutMsg struct{ seq int }

func newStatusLine() statusLine {
	return statusLine{percent: -1}
}

// set shows s and returns a command that hides it if it is a success.
func (l *statusLine) set(s speech.Status, timeout time.Duration) tea.Cmd {
	l.status = s
	l.visible = true
	l.seq++

	l.percent = -1
	var pct int
	if _, err := fmt.Sscanf(s.Message, "Downloading model: %d%%", &pct); err == nil {
		l.percent = pct
	}

	if s.Kind != speech.Success || timeout <= 0 {
		return nil
	}
	seq := l.seq
	return tea.Tick(timeout, func(time.Time) tea.Msg {
		return statusTimeoutMsg{seq: seq}
	})
}

func (l *statusLine) expire(seq int) {
	if seq == l.seq {
		l.visible = false
	}
}

func (l statusLine) loading() bool {
	return l.visible && l.status.Kind == speech.Loading
}

func (l statusLine) view(width int, spin string) string {
	if !l.visible || l.status.Message == "" {
		return ""
	}

	prefix := ""
	if l.status.Kind == speech.Loading {
		prefix = spin + " "
	}

	// padding on the styled badges takes two cells
	avail := width - runewidth.StringWidth(prefix) - 2
	if avail < 1 {
		avail = 1
	}
	msg := truncate.StringWithTail(l.status.Message, uint(avail), ellipsis) //nolint:gosec

	switch l.status.Kind {
	case speech.Success:
		return successStyle.Render(msg)
	case speech.Error:
		return errorStyle.Render(msg)
	default:
		return prefix + loadingStyle.Render(msg)
	}
}
