package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/kokoro-tts/internal/speech"
)

var (
	keyword   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render
	paragraph = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render

	statusStyles = map[speech.StatusKind]lipgloss.Style{
		speech.Loading: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8E8E8E", Dark: "#747373"}),
		speech.Success: lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
		speech.Error:   lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}),
	}
)

// statusPrinter shows controller statuses on stderr when it is a terminal.
// Download progress rewrites a single line.
type statusPrinter struct {
	w   io.Writer
	tty bool

	mu         sync.Mutex
	inProgress bool
}

func newStatusPrinter(w io.Writer, tty bool) *statusPrinter {
	return &statusPrinter{w: w, tty: tty}
}

func (p *statusPrinter) Notify(s speech.Status) {
	log.Debug("Status", "kind", s.Kind, "message", s.Message)
	if !p.tty {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	line := statusStyles[s.Kind].Render(s.Message)
	if strings.HasPrefix(s.Message, "Downloading model:") {
		fmt.Fprintf(p.w, "\r%s", line)
		p.inProgress = true
		return
	}
	if p.inProgress {
		fmt.Fprintln(p.w)
		p.inProgress = false
	}
	fmt.Fprintln(p.w, line)
}
