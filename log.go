package main

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "kokoro-tts").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "kokoro-tts.log"), nil
}

// setupLog sends all logging to a file in the user cache directory; the
// terminal belongs to the tui and to the audio written to stdout.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, err
	}
	f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}

	level := log.DebugLevel
	if s := os.Getenv("KOKORO_TTS_LOG_LEVEL"); s != "" {
		if l, err := log.ParseLevel(s); err == nil {
			level = l
		}
	}

	log.SetDefault(log.NewWithOptions(f, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "kokoro-tts",
	}))
	return f.Close, nil
}
