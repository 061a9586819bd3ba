package textsource

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"
)

// Clean normalizes s to NFC, collapses runs of whitespace, trims it and
// keeps at most MaxChars characters.
func Clean(s string) (string, bool) {
	s = norm.NFC.String(s)
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")

	r := []rune(s)
	if len(r) <= MaxChars {
		return s, false
	}
	return strings.TrimSpace(string(r[:MaxChars])), true
}

// StripHTML returns the visible text of an HTML document. Script and style
// contents are dropped.
func StripHTML(s string) string {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return html.UnescapeString(p.Sanitize(s))
}

// StripMarkdown renders markdown to plain text. Code blocks and raw HTML
// are skipped; blocks end with a full stop so they are read as separate
// sentences.
func StripMarkdown(s string) string {
	src := []byte(s)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var buf strings.Builder
	walk(doc, src, &buf)
	return buf.String()
}

func walk(node ast.Node, src []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(src))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte(' ')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.CodeSpan:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(src))
			}
		}
		return

	case *ast.Image:
		// alt text only
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c, src, buf)
		}
		return

	case *ast.Heading, *ast.Paragraph, *ast.ListItem, *ast.TextBlock:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c, src, buf)
		}
		endSentence(buf)
		return

	case *ast.ThematicBreak:
		endSentence(buf)
		return
	}

	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		walk(c, src, buf)
	}
}

func endSentence(buf *strings.Builder) {
	s := strings.TrimRightFunc(buf.String(), unicode.IsSpace)
	if s == "" {
		return
	}
	buf.Reset()
	buf.WriteString(s)
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';':
		buf.WriteByte(' ')
	default:
		buf.WriteString(". ")
	}
}
