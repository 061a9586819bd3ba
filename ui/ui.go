// Package ui provides the interactive speech popup for the terminal.
package ui

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/dgnsrekt/kokoro-tts/internal/settings"
	"github.com/dgnsrekt/kokoro-tts/internal/speech"
	"github.com/dgnsrekt/kokoro-tts/internal/textsource"
	"github.com/dgnsrekt/kokoro-tts/internal/voices"
)

const (
	ellipsis   = "…"
	speedStep  = 0.1
	maxWidth   = 100
	textHeight = 8
)

// Deps are the services the TUI talks to.
type Deps struct {
	Speaker    Speaker
	Discoverer Discoverer
	Store      SettingsStore
	Watcher    SettingsWatcher
	Notifier   *Notifier
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, deps Deps) *tea.Program {
	log.Debug(
		"Starting kokoro-tts",
		"mode", cfg.Settings.Mode,
		"endpoint", cfg.Settings.APIEndpoint,
	)

	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	p := tea.NewProgram(newModel(cfg, deps), opts...)
	if deps.Watcher != nil {
		deps.Watcher.Watch(func(s settings.Settings) {
			p.Send(settingsMsg(s))
		})
	}
	return p
}

type model struct {
	cfg      Config
	deps     Deps
	settings settings.Settings
	keys     keyMap

	voices    []voices.Voice
	languages []voices.Language
	catalog   string
	connected bool

	text     textarea.Model
	spinner  spinner.Model
	progress progress.Model
	help     help.Model
	status   statusLine

	generating bool
	size       int
	saved      string

	width  int
	height int
}

func newModel(cfg Config, deps Deps) model {
	ta := textarea.New()
	ta.Placeholder = "Enter text to speak, or press ctrl+g to use the clipboard..."
	ta.CharLimit = textsource.MaxChars
	ta.ShowLineNumbers = false
	ta.SetHeight(textHeight)
	ta.SetValue(cfg.Text)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := model{
		cfg:       cfg,
		deps:      deps,
		settings:  cfg.Settings,
		keys:      newKeyMap(),
		voices:    voices.Builtin(),
		languages: voices.BuiltinLanguages(),
		catalog:   "builtin",
		text:      ta,
		spinner:   sp,
		progress:  progress.New(progress.WithDefaultGradient()),
		help:      help.New(),
		status:    newStatusLine(),
	}
	m.ensureVoiceListed()
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.spinner.Tick, m.waitForStatus()}
	if m.settings.ModeValue() == speech.Service {
		cmds = append(cmds, discoverCmd(m.deps.Discoverer, m.settings.Target()))
	}
	return tea.Batch(cmds...)
}

func (m model) waitForStatus() tea.Cmd {
	if m.deps.Notifier == nil {
		return nil
	}
	return waitForStatus(m.deps.Notifier.ch)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		w := min(msg.Width, maxWidth) - 2
		m.text.SetWidth(w)
		m.progress.Width = w
		m.help.Width = w

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case statusMsg:
		cmds = append(cmds, m.status.set(speech.Status(msg), m.cfg.StatusTimeout), m.waitForStatus())
		return m, tea.Batch(cmds...)

	case statusTimeoutMsg:
		m.status.expire(msg.seq)
		return m, nil

	case generateDoneMsg:
		m.generating = false
		if msg.err == nil && msg.artifact != nil {
			m.size = msg.artifact.Size()
			m.saved = ""
		}
		return m, nil

	case downloadDoneMsg:
		if msg.err == nil {
			m.saved = fmt.Sprintf("Saved %s (%s)", msg.path, humanize.Bytes(uint64(msg.size))) //nolint:gosec
		}
		return m, nil

	case catalogMsg:
		m.applyCatalog(msg)
		if msg.Connected {
			cmds = append(cmds, m.status.set(speech.Status{Message: "TTS server connected ✓", Kind: speech.Success}, m.cfg.StatusTimeout))
		} else {
			cmds = append(cmds, m.status.set(speech.Status{Message: "TTS server not running - Check endpoint and start server", Kind: speech.Error}, 0))
		}
		return m, tea.Batch(cmds...)

	case settingsMsg:
		return m, m.reload(settings.Settings(msg))

	case clipboardMsg:
		if msg.err != nil {
			cmds = append(cmds, m.status.set(speech.Status{Message: "No text selected", Kind: speech.Error}, 0))
		} else {
			m.text.SetValue(msg.text)
			cmds = append(cmds, m.status.set(speech.Status{Message: "Selected text captured!", Kind: speech.Success}, m.cfg.StatusTimeout))
		}
		return m, tea.Batch(cmds...)

	case errMsg:
		return m, m.status.set(speech.Status{Message: msg.Error(), Kind: speech.Error}, 0)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		if p, ok := pm.(progress.Model); ok {
			m.progress = p
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.text, cmd = m.text.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.deps.Speaker != nil {
			m.deps.Speaker.Stop()
		}
		return tea.Quit, true

	case key.Matches(msg, m.keys.Speak):
		return m.speak(), true

	case key.Matches(msg, m.keys.Stop):
		if m.deps.Speaker != nil {
			m.deps.Speaker.Stop()
		}
		m.generating = false
		return nil, true

	case key.Matches(msg, m.keys.Replay):
		if m.deps.Speaker == nil {
			return nil, true
		}
		return replayCmd(m.deps.Speaker), true

	case key.Matches(msg, m.keys.Download):
		if m.deps.Speaker == nil {
			return nil, true
		}
		return downloadCmd(m.deps.Speaker, m.settings.OutputDir, m.size), true

	case key.Matches(msg, m.keys.Clear):
		if m.deps.Speaker != nil {
			m.deps.Speaker.Clear()
		}
		m.text.Reset()
		m.size = 0
		m.saved = ""
		return nil, true

	case key.Matches(msg, m.keys.Grab):
		return grabClipboardCmd, true

	case key.Matches(msg, m.keys.NextVoice):
		return m.cycleVoice(1), true

	case key.Matches(msg, m.keys.PrevVoice):
		return m.cycleVoice(-1), true

	case key.Matches(msg, m.keys.Language):
		return m.cycleLanguage(), true

	case key.Matches(msg, m.keys.Faster):
		return m.changeSpeed(speedStep), true

	case key.Matches(msg, m.keys.Slower):
		return m.changeSpeed(-speedStep), true

	case key.Matches(msg, m.keys.Mode):
		return m.toggleMode(), true

	case key.Matches(msg, m.keys.Format):
		m.settings.UseOpenAIFormat = !m.settings.UseOpenAIFormat
		return m.persist(settings.KeyUseOpenAIFormat, m.settings.UseOpenAIFormat), true

	case key.Matches(msg, m.keys.Refresh):
		if m.settings.ModeValue() != speech.Service {
			return nil, true
		}
		return tea.Batch(
			m.status.set(speech.Status{Message: "Loading models...", Kind: speech.Loading}, 0),
			discoverCmd(m.deps.Discoverer, m.settings.Target()),
		), true

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil, true
	}
	return nil, false
}

func (m *model) speak() tea.Cmd {
	text, _ := textsource.Clean(m.text.Value())
	if text == "" {
		return m.status.set(speech.Status{Message: "Please enter some text", Kind: speech.Error}, 0)
	}
	if m.generating || m.deps.Speaker == nil {
		return nil
	}

	m.generating = true
	m.saved = ""
	return generateCmd(m.deps.Speaker, m.settings.Request(text))
}

func (m *model) persist(key string, value any) tea.Cmd {
	if m.deps.Store == nil {
		return nil
	}
	if err := m.deps.Store.Set(key, value); err != nil {
		log.Warn("Could not save setting", "key", key, "err", err)
		return m.status.set(speech.Status{Message: "Could not save settings: " + err.Error(), Kind: speech.Error}, 0)
	}
	return nil
}

func (m *model) currentVoice() int {
	v := m.settings.EffectiveVoice()
	for i, c := range m.voices {
		if c.ID == v {
			return i
		}
	}
	return -1
}

func (m *model) cycleVoice(step int) tea.Cmd {
	if len(m.voices) == 0 {
		return nil
	}
	i := (m.currentVoice() + step + len(m.voices)) % len(m.voices)
	m.settings.Voice = m.voices[i].ID
	return m.persist(settings.KeyVoice, m.settings.Voice)
}

func (m *model) cycleLanguage() tea.Cmd {
	if len(m.languages) == 0 {
		return nil
	}
	i := 0
	for j, l := range m.languages {
		if l.Code == m.settings.Language {
			i = (j + 1) % len(m.languages)
			break
		}
	}
	m.settings.Language = m.languages[i].Code
	return m.persist(settings.KeyLanguage, m.settings.Language)
}

func (m *model) changeSpeed(delta float64) tea.Cmd {
	s := m.settings.Speed + delta
	s = float64(int(s*100+0.5)) / 100
	if s < settings.MinSpeed || s > settings.MaxSpeed {
		return nil
	}
	m.settings.Speed = s
	return m.persist(settings.KeySpeed, s)
}

func (m *model) toggleMode() tea.Cmd {
	next := speech.Model
	if m.settings.ModeValue() == speech.Model {
		next = speech.Service
	}
	m.settings.Mode = next.String()

	cmds := []tea.Cmd{m.persist(settings.KeyMode, m.settings.Mode)}
	if next == speech.Service {
		cmds = append(cmds, discoverCmd(m.deps.Discoverer, m.settings.Target()))
	} else {
		m.voices = voices.Builtin()
		m.languages = voices.BuiltinLanguages()
		m.catalog = "builtin"
	}
	m.ensureVoiceListed()
	return tea.Batch(cmds...)
}

// reload adopts settings edited in the config file.
func (m *model) reload(s settings.Settings) tea.Cmd {
	old := m.settings
	if sameSpeech(old, s) {
		return nil
	}
	m.settings = s
	log.Debug("Settings reloaded", "mode", s.Mode, "voice", s.Voice, "endpoint", s.APIEndpoint)

	cmds := []tea.Cmd{m.status.set(speech.Status{Message: "Settings reloaded", Kind: speech.Success}, m.cfg.StatusTimeout)}
	switch {
	case s.ModeValue() == speech.Model:
		m.voices = voices.Builtin()
		m.languages = voices.BuiltinLanguages()
		m.catalog = "builtin"
		m.connected = false
	case old.ModeValue() != speech.Service || old.Target() != s.Target():
		cmds = append(cmds, discoverCmd(m.deps.Discoverer, s.Target()))
	}
	m.ensureVoiceListed()
	return tea.Batch(cmds...)
}

// sameSpeech reports whether a and b generate the same requests.
func sameSpeech(a, b settings.Settings) bool {
	return a.Voice == b.Voice &&
		a.Speed == b.Speed &&
		a.Language == b.Language &&
		a.Mode == b.Mode &&
		a.APIEndpoint == b.APIEndpoint &&
		a.APIKey == b.APIKey &&
		a.UseOpenAIFormat == b.UseOpenAIFormat &&
		a.OutputDir == b.OutputDir
}

func (m *model) applyCatalog(c catalogMsg) {
	if len(c.Voices) > 0 {
		m.voices = c.Voices
	}
	if len(c.Languages) > 0 {
		m.languages = c.Languages
	}
	m.catalog = c.Source
	m.connected = c.Connected
	m.ensureVoiceListed()
}

// ensureVoiceListed keeps a stored voice selectable even when the current
// catalog does not offer it.
func (m *model) ensureVoiceListed() {
	if m.currentVoice() >= 0 {
		return
	}
	id := m.settings.EffectiveVoice()
	m.voices = append([]voices.Voice{{ID: id, Name: voices.DisplayName(id)}}, m.voices...)
}

func grabClipboardCmd() tea.Msg {
	src, err := textsource.FromClipboard()
	if err != nil {
		return clipboardMsg{err: err}
	}
	if src.Truncated {
		log.Debug("Clipboard text truncated", "limit", textsource.MaxChars)
	}
	return clipboardMsg{text: src.Text}
}

func (m model) View() string {
	w := min(max(m.width, 40), maxWidth)

	var b strings.Builder

	b.WriteString(titleStyle("Kokoro TTS"))
	b.WriteString(" ")
	b.WriteString(headerNoteStyle(m.header()))
	b.WriteString("\n\n")

	b.WriteString(m.text.View())
	b.WriteString("\n")
	count := utf8.RuneCountInString(m.text.Value())
	b.WriteString(headerNoteStyle(fmt.Sprintf("%d/%d", count, textsource.MaxChars)))
	b.WriteString("\n\n")

	b.WriteString(m.settingsLine())
	b.WriteString("\n")

	if m.status.percent >= 0 {
		b.WriteString(m.progress.ViewAs(float64(m.status.percent) / 100))
		b.WriteString("\n")
	}

	if line := m.status.view(w, m.spinner.View()); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	} else if m.generating {
		b.WriteString(m.spinner.View() + " " + loadingStyle.Render("Generating speech..."))
		b.WriteString("\n")
	}

	if m.size > 0 {
		b.WriteString(labelStyle("Audio ready: " + humanize.Bytes(uint64(m.size)))) //nolint:gosec
		if m.saved != "" {
			b.WriteString(separator)
			b.WriteString(labelStyle(m.saved))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return lipgloss.NewStyle().Padding(1, 1).Render(b.String())
}

func (m model) header() string {
	if m.settings.ModeValue() == speech.Model {
		return fmt.Sprintf("local model (%s)", m.settings.Dtype)
	}

	format := "native"
	if m.settings.UseOpenAIFormat {
		format = "openai"
	}
	state := "offline"
	if m.connected {
		state = "connected, voices from " + m.catalog
	}
	return fmt.Sprintf("service · %s · %s · %s", m.settings.APIEndpoint, format, state)
}

func (m model) settingsLine() string {
	voice := m.settings.EffectiveVoice()
	name := voices.DisplayName(voice)
	for _, v := range m.voices {
		if v.ID == voice && v.Name != "" {
			name = v.Name
		}
	}

	parts := []string{
		labelStyle("Voice ") + valueStyle(name),
		labelStyle("Language ") + valueStyle(voices.LanguageName(m.settings.Language)),
		labelStyle("Speed ") + valueStyle(fmt.Sprintf("%.2fx", m.settings.Speed)),
	}
	return strings.Join(parts, separator)
}

// errNoSpeaker is reported when the program was built without a controller.
var errNoSpeaker = errors.New("speech controller unavailable")

// Validate reports whether deps can drive the program.
func (d Deps) Validate() error {
	if d.Speaker == nil {
		return errNoSpeaker
	}
	return nil
}
