// Package textsource collects the text to speak from arguments, files,
// directories, URLs, stdin or the clipboard, and reduces it to plain
// speakable text.
package textsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/muesli/gitcha"
)

// MaxChars is the most text a single generation accepts.
const MaxChars = 5000

var (
	// ErrNoText is returned when a source holds nothing speakable.
	ErrNoText = errors.New("no text found")

	// ErrNoReadme is returned for directories without a README.
	ErrNoReadme = errors.New("no README found in directory")
)

var readmeNames = []string{"README.md", "README", "Readme.md", "Readme", "readme.md", "readme"}

// Kind describes what the text looked like before cleaning.
type Kind int

const (
	Plain Kind = iota
	Markdown
	HTML
)

// Source is prepared text plus where it came from.
type Source struct {
	Text      string
	Origin    string
	Truncated bool
}

// FromArgs joins command line words into one text.
func FromArgs(args []string) (*Source, error) {
	return prepare(strings.Join(args, " "), Plain, "arguments")
}

// FromReader reads all of r.
func FromReader(r io.Reader, origin string) (*Source, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", origin, err)
	}
	return prepare(string(b), kindOf(origin, ""), origin)
}

// FromClipboard reads the system clipboard, standing in for the selected
// text of a page.
func FromClipboard() (*Source, error) {
	s, err := clipboard.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to read clipboard: %w", err)
	}
	return prepare(s, Plain, "clipboard")
}

// FromArg resolves a single argument: "-" for stdin, an http(s) URL, a
// directory containing a README, or a file.
func FromArg(ctx context.Context, arg string) (*Source, error) {
	if arg == "-" {
		return FromReader(os.Stdin, "stdin")
	}

	if u, err := url.ParseRequestURI(arg); err == nil && strings.Contains(arg, "://") {
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("%s is not a supported protocol", u.Scheme)
		}
		return FromURL(ctx, http.DefaultClient, u.String())
	}

	st, err := os.Stat(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	if st.IsDir() {
		return FromDir(arg)
	}
	return FromFile(arg)
}

// FromFile reads a file. Markdown files are stripped of their markup.
func FromFile(path string) (*Source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return prepare(string(b), kindOf(path, ""), abs)
}

// FromDir speaks the README found in dir.
func FromDir(dir string) (*Source, error) {
	ch, err := gitcha.FindFilesExcept(dir, readmeNames, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to search %s: %w", dir, err)
	}

	var found string
	for res := range ch {
		// keep draining so the walker can finish
		if found == "" || depth(res.Path) < depth(found) {
			found = res.Path
		}
	}
	if found == "" {
		return nil, ErrNoReadme
	}

	log.Debug("Found README", "path", found)
	return FromFile(found)
}

func depth(p string) int {
	return strings.Count(filepath.ToSlash(p), "/")
}

// FromURL fetches a page and speaks its visible text.
func FromURL(ctx context.Context, hc *http.Client, u string) (*Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to get url: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to get url: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", u, err)
	}
	return prepare(string(b), kindOf(u, resp.Header.Get("Content-Type")), u)
}

func kindOf(name, contentType string) Kind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "text/html"):
		return HTML
	case strings.Contains(ct, "markdown"):
		return Markdown
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".mdown", ".mkdn", ".mkd":
		return Markdown
	case ".html", ".htm":
		return HTML
	}
	if strings.EqualFold(filepath.Base(name), "readme") {
		return Markdown
	}
	return Plain
}

func prepare(raw string, kind Kind, origin string) (*Source, error) {
	var text string
	switch kind {
	case Markdown:
		text = StripMarkdown(raw)
	case HTML:
		text = StripHTML(raw)
	default:
		text = raw
	}

	text, truncated := Clean(text)
	if text == "" {
		return nil, fmt.Errorf("%w in %s", ErrNoText, origin)
	}
	if truncated {
		log.Info("Text truncated", "origin", origin, "limit", MaxChars)
	}
	return &Source{Text: text, Origin: origin, Truncated: truncated}, nil
}
