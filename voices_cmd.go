package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/kokoro-tts/internal/service"
	"github.com/dgnsrekt/kokoro-tts/internal/speech"
	"github.com/dgnsrekt/kokoro-tts/internal/voices"
)

var voicesCmd = &cobra.Command{
	Use:     "voices [QUERY]",
	Short:   "List the voices and languages you can speak with",
	Long:    paragraph(fmt.Sprintf("\n%s the voices offered by the configured server, or the built-in voices in model mode. A query fuzzy-matches voice ids.", keyword("List"))),
	Example: paragraph("kokoro-tts voices\nkokoro-tts voices bella\nkokoro-tts voices --mode model"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := catalogFor(cmd.Context())

		list := cat.Voices
		if len(args) == 1 {
			list = filterVoices(list, voices.Suggest(args[0], list, 10))
			if len(list) == 0 {
				return fmt.Errorf("no voice matches %q", args[0])
			}
		}

		out, err := renderCatalog(cat, list)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

func catalogFor(ctx context.Context) service.Catalog {
	if current.ModeValue() == speech.Model {
		return service.Catalog{
			Voices:    voices.Builtin(),
			Languages: voices.BuiltinLanguages(),
			Source:    "builtin",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client := service.NewClient(service.Config{Timeout: 5 * time.Second})
	return client.Discover(ctx, current.Target())
}

func filterVoices(list []voices.Voice, ids []string) []voices.Voice {
	byID := make(map[string]voices.Voice, len(list))
	for _, v := range list {
		byID[v.ID] = v
	}
	res := make([]voices.Voice, 0, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			res = append(res, v)
		}
	}
	return res
}

// catalogMarkdown lays out the voices and languages as markdown tables.
func catalogMarkdown(cat service.Catalog, list []voices.Voice) string {
	var b strings.Builder

	switch {
	case current.ModeValue() == speech.Model:
		b.WriteString("# Voices (local model)\n\n")
	case cat.Connected:
		fmt.Fprintf(&b, "# Voices from %s\n\n", current.APIEndpoint)
	default:
		fmt.Fprintf(&b, "# Voices\n\n_%s is not reachable; showing the built-in voices._\n\n", current.APIEndpoint)
	}

	b.WriteString("| Voice | Name |\n| --- | --- |\n")
	for _, v := range list {
		id := "`" + v.ID + "`"
		if v.ID == current.EffectiveVoice() {
			id += " (selected)"
		}
		fmt.Fprintf(&b, "| %s | %s |\n", id, v.Name)
	}

	if len(cat.Languages) > 0 {
		b.WriteString("\n## Languages\n\n| Code | Language |\n| --- | --- |\n")
		for _, l := range cat.Languages {
			fmt.Fprintf(&b, "| `%s` | %s |\n", l.Code, l.Name)
		}
	}
	return b.String()
}

func renderCatalog(cat service.Catalog, list []voices.Voice) (string, error) {
	width := 80
	profile := termenv.Ascii
	style := glamour.WithStandardStyle(styles.NoTTYStyle)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		profile = lipgloss.ColorProfile()
		style = glamour.WithAutoStyle()
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w < 120 {
			width = w
		} else if err == nil {
			width = 120
		}
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(profile),
		style,
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("unable to create renderer: %w", err)
	}

	out, err := r.Render(catalogMarkdown(cat, list))
	if err != nil {
		return "", fmt.Errorf("unable to render voices: %w", err)
	}
	return out, nil
}
