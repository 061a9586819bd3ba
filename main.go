// Package main provides the entry point for the kokoro-tts CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/kokoro-tts/internal/audio"
	"github.com/dgnsrekt/kokoro-tts/internal/cache"
	"github.com/dgnsrekt/kokoro-tts/internal/model"
	"github.com/dgnsrekt/kokoro-tts/internal/service"
	"github.com/dgnsrekt/kokoro-tts/internal/settings"
	"github.com/dgnsrekt/kokoro-tts/internal/speech"
	"github.com/dgnsrekt/kokoro-tts/internal/textsource"
	"github.com/dgnsrekt/kokoro-tts/internal/voices"
	"github.com/dgnsrekt/kokoro-tts/internal/wav"
	"github.com/dgnsrekt/kokoro-tts/ui"
	"github.com/dgnsrekt/kokoro-tts/utils"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile    string
	tui           bool
	play          bool
	output        string
	fromClipboard bool
	noCache       bool
	mouse         bool

	current settings.Settings

	rootCmd = &cobra.Command{
		Use:     "kokoro-tts [TEXT|FILE|DIR|URL|-]",
		Short:   "Speak text with Kokoro, from a server or a local model",
		Example: paragraph("kokoro-tts \"Hello there\"\nkokoro-tts README.md --play\nkokoro-tts --mode model -o hello.wav \"Hello\"\ncat notes.txt | kokoro-tts > notes.wav"),
		Long: paragraph(
			fmt.Sprintf("\nTurn text into %s with the Kokoro voice model, served by a Kokoro server or run on this machine.", keyword("speech")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(utils.ExpandPath(configFile))
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
		configFile = viper.ConfigFileUsed()
	}

	// the config file must stay editable while it holds bad values
	if cmd == configCmd {
		return nil
	}

	mouse = viper.GetBool("mouse")
	if noCache {
		viper.Set(settings.KeyCacheEnabled, false)
	}

	current = settings.FromViper(viper.GetViper())
	if err := current.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	// the local model only ships the built-in voices
	if current.ModeValue() == speech.Model && current.Voice != "" && !voices.Known(current.Voice) {
		if s := voices.Suggest(current.Voice, voices.Builtin(), 3); len(s) > 0 {
			return fmt.Errorf("unknown voice %q, did you mean %s?", current.Voice, strings.Join(s, ", "))
		}
		return fmt.Errorf("unknown voice %q", current.Voice)
	}

	if tui && (output != "" || play) {
		return errors.New("cannot use --output or --play with the tui")
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	src, err := readSource(ctx, args)
	if err != nil {
		return err
	}

	if tui || src == nil {
		if src == nil && !term.IsTerminal(int(os.Stdin.Fd())) {
			return textsource.ErrNoText
		}
		text := ""
		if src != nil {
			text = src.Text
		}
		return runTUI(text)
	}

	return executeCLI(ctx, src)
}

// readSource returns nil when nothing was given on the command line or
// stdin.
func readSource(ctx context.Context, args []string) (*textsource.Source, error) {
	if fromClipboard {
		return textsource.FromClipboard()
	}

	// if stdin is a pipe then use stdin for input. note that you can also
	// explicitly use a - to read from stdin.
	if len(args) == 0 {
		if yes, err := stdinIsPipe(); err != nil {
			return nil, err
		} else if yes {
			return textsource.FromReader(os.Stdin, "stdin")
		}
		return nil, nil
	}

	if len(args) == 1 && looksLikeSource(args[0]) {
		return textsource.FromArg(ctx, utils.ExpandPath(args[0]))
	}
	return textsource.FromArgs(args)
}

// looksLikeSource tells a file, directory or URL argument apart from words
// to be spoken.
func looksLikeSource(arg string) bool {
	if arg == "-" {
		return true
	}
	if u, err := url.ParseRequestURI(arg); err == nil && u.Scheme != "" && strings.Contains(arg, "://") {
		return true
	}
	_, err := os.Stat(utils.ExpandPath(arg))
	return err == nil
}

func executeCLI(ctx context.Context, src *textsource.Source) error {
	if src.Truncated {
		log.Warn("Text truncated", "origin", src.Origin, "limit", textsource.MaxChars)
	}

	var player audio.Player
	if play {
		p, err := audio.NewDevicePlayer(wav.DeviceFormat())
		if err != nil {
			return fmt.Errorf("unable to open audio output: %w", err)
		}
		player = p
	}

	stderrTTY := term.IsTerminal(int(os.Stderr.Fd()))
	ctrl, cleanup, err := newController(current, newStatusPrinter(os.Stderr, stderrTTY), player)
	if err != nil {
		if player != nil {
			_ = player.Close()
		}
		return err
	}
	defer cleanup()

	var finished chan struct{}
	if player != nil {
		finished = make(chan struct{}, 1)
		player.OnFinished(func() {
			select {
			case finished <- struct{}{}:
			default:
			}
		})
	}

	a, err := ctrl.Generate(ctx, current.Request(src.Text))
	if err != nil {
		return err
	}
	log.Debug("Generated audio", "id", a.ID, "origin", src.Origin, "bytes", a.Size())

	if err := writeOutput(ctrl, stderrTTY); err != nil {
		return err
	}

	if player == nil || player.State() != audio.StatePlaying {
		return nil
	}
	select {
	case <-finished:
	case <-ctx.Done():
		ctrl.Stop()
	}
	return nil
}

// writeOutput saves the current artifact. Without --output it goes to
// stdout when stdout is not a terminal, otherwise into outputDir unless the
// audio is only played.
func writeOutput(ctrl *speech.Controller, tty bool) error {
	b, ok := ctrl.CurrentDownloadableBytes()
	if !ok {
		return speech.ErrNoAudio
	}

	stdoutTTY := term.IsTerminal(int(os.Stdout.Fd()))
	switch {
	case output == "-" || (output == "" && !play && !stdoutTTY):
		if _, err := os.Stdout.Write(b); err != nil {
			return fmt.Errorf("unable to write to stdout: %w", err)
		}
		return nil

	case output != "":
		path := utils.OutputPath(output, speech.DownloadName(current.EffectiveVoice(), time.Now()))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("unable to create directory: %w", err)
		}
		if err := os.WriteFile(path, b, 0o644); err != nil { //nolint:gosec
			return fmt.Errorf("unable to write audio: %w", err)
		}
		printSaved(path, b, tty)
		return nil

	case play:
		return nil

	default:
		path, err := ctrl.Download(utils.ExpandPath(current.OutputDir))
		if err != nil {
			return err
		}
		printSaved(path, b, tty)
		return nil
	}
}

func printSaved(path string, b []byte, tty bool) {
	length := ""
	if a, err := wav.Decode(b); err == nil {
		length = ", " + a.Duration().Round(100*time.Millisecond).String()
	}
	if tty {
		fmt.Fprintf(os.Stderr, "Saved %s (%s%s)\n", keyword(path), humanize.Bytes(uint64(len(b))), length) //nolint:gosec
		return
	}
	fmt.Fprintln(os.Stderr, path)
}

// newController wires the backends described by s. A nil player leaves
// playback out.
func newController(s settings.Settings, n speech.Notifier, player audio.Player) (*speech.Controller, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Debug("Cleanup failed", "err", err)
			}
		}
	}

	client := service.NewClient(service.Config{
		Timeout:           s.Timeout,
		RequestsPerMinute: s.RateLimit,
	})

	assets, err := model.DefaultAssetDir()
	if err != nil {
		return nil, nil, err
	}
	dtype, err := model.ParseDtype(s.Dtype)
	if err != nil {
		return nil, nil, err
	}
	loader := s.Loader(model.NewFetcher(assets))
	loader.Command = utils.ExpandPath(loader.Command)
	adapter := model.NewAdapter(loader, dtype)
	closers = append(closers, adapter.Close)

	cfg := speech.Config{
		Model:    adapter,
		Service:  client,
		Notifier: n,
	}

	if s.CacheEnabled {
		cc := cache.DefaultConfig()
		if dir, err := cache.DefaultDiskPath(); err == nil {
			cc.DiskPath = dir
		} else {
			log.Warn("Keeping audio cache in memory only", "err", err)
		}
		m, err := cache.NewManager(cc)
		if err != nil {
			log.Warn("Audio cache disabled", "err", err)
		} else {
			cfg.Cache = m
			closers = append(closers, m.Close)
		}
	}

	if player != nil {
		cfg.Player = player
		cfg.AutoPlay = true
		closers = append(closers, player.Close)
	}

	return speech.New(cfg), cleanup, nil
}

func runTUI(text string) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	cfg.Settings = current
	cfg.Text = text
	cfg.EnableMouse = mouse

	// playback is optional in the tui; generation and saving still work
	player, err := audio.NewDevicePlayer(wav.DeviceFormat())
	if err != nil {
		log.Warn("Audio playback unavailable", "err", err)
		player = nil
	}

	notifier := ui.NewNotifier(32)
	ctrl, cleanup, err := newController(current, notifier, player)
	if err != nil {
		return err
	}
	defer cleanup()

	store := settings.NewStore(viper.GetViper(), configFile)
	deps := ui.Deps{
		Speaker: ctrl,
		Discoverer: service.NewClient(service.Config{
			Timeout: 5 * time.Second,
		}),
		Store:    store,
		Watcher:  store,
		Notifier: notifier,
	}
	if err := deps.Validate(); err != nil {
		return err
	}

	// Run Bubble Tea program
	if _, err := ui.NewProgram(cfg, deps).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}

	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	settings.SetDefaults(viper.GetViper())
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "config file")
	rootCmd.PersistentFlags().StringP("mode", "m", "", "generation mode: service or model")
	rootCmd.PersistentFlags().StringP("endpoint", "e", "", "Kokoro server URL")
	rootCmd.PersistentFlags().String("api-key", "", "bearer token sent to the server")

	rootCmd.Flags().String("voice", "", "voice id (see kokoro-tts voices)")
	rootCmd.Flags().Float64P("speed", "s", 0, "speaking speed, 0.25 to 4.0")
	rootCmd.Flags().StringP("lang", "l", "", "language code")
	rootCmd.Flags().Bool("openai", false, "use the OpenAI compatible speech route")
	rootCmd.Flags().String("dtype", "", "model quantization: fp32, fp16, q8, q4 or q4f16")
	rootCmd.Flags().Duration("timeout", 0, "bound for each server request")
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "write audio to FILE or DIR (- for stdout)")
	rootCmd.Flags().BoolVarP(&play, "play", "p", false, "play the audio when it is ready")
	rootCmd.Flags().BoolVarP(&tui, "tui", "t", false, "open the interactive speech popup")
	rootCmd.Flags().BoolVarP(&fromClipboard, "clipboard", "c", false, "speak the text on the clipboard")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "do not reuse or store generated audio")
	rootCmd.Flags().BoolVar(&mouse, "mouse", false, "enable mouse support (TUI-mode only)")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag(settings.KeyMode, rootCmd.PersistentFlags().Lookup("mode"))
	_ = viper.BindPFlag(settings.KeyAPIEndpoint, rootCmd.PersistentFlags().Lookup("endpoint"))
	_ = viper.BindPFlag(settings.KeyAPIKey, rootCmd.PersistentFlags().Lookup("api-key"))
	_ = viper.BindPFlag(settings.KeyVoice, rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag(settings.KeySpeed, rootCmd.Flags().Lookup("speed"))
	_ = viper.BindPFlag(settings.KeyLanguage, rootCmd.Flags().Lookup("lang"))
	_ = viper.BindPFlag(settings.KeyUseOpenAIFormat, rootCmd.Flags().Lookup("openai"))
	_ = viper.BindPFlag(settings.KeyDtype, rootCmd.Flags().Lookup("dtype"))
	_ = viper.BindPFlag(settings.KeyTimeout, rootCmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "kokoro-tts")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "kokoro-tts")}, dirs...)
	}

	if c := os.Getenv("KOKORO_TTS_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("kokoro-tts")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("kokoro_tts")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		configFile = used
		return
	}

	configFile = filepath.Join(dirs[0], "kokoro-tts.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
