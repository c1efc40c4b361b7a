package html

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Head:     true,
	atom.Svg:      true,
	atom.Template: true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Tr: true, atom.Blockquote: true, atom.Pre: true,
	atom.Table: true, atom.Section: true, atom.Article: true,
}

// Reader renders the visible text of an HTML page.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

func (r *Reader) Read(_ context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open html: %w", err)
	}
	defer file.Close()
	return Text(file)
}

// Text parses HTML from r and returns its visible text with block elements
// on separate lines.
func Text(r io.Reader) (string, error) {
	root, err := xhtml.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var b strings.Builder
	walk(root, &b)
	return collapse(b.String()), nil
}

func walk(n *xhtml.Node, b *strings.Builder) {
	if n.Type == xhtml.ElementNode && skipped[n.DataAtom] {
		return
	}
	if n.Type == xhtml.TextNode {
		b.WriteString(n.Data)
	}
	if n.Type == xhtml.ElementNode && blocks[n.DataAtom] {
		b.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, b)
	}
	if n.Type == xhtml.ElementNode && blocks[n.DataAtom] {
		b.WriteString("\n")
	}
}

func collapse(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
