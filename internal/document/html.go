package document

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/HlhDataScience/DocsIngestionApi/internal/markdown"
)

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Object:   true,
}

// blocks end the current paragraph.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Main: true, atom.Aside: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Tr: true, atom.Table: true,
	atom.Blockquote: true, atom.Pre: true, atom.Br: true, atom.Hr: true,
	atom.Dt: true, atom.Dd: true, atom.Figcaption: true,
}

var headingLevels = map[atom.Atom]int{atom.H1: 1, atom.H2: 2, atom.H3: 3}

type htmlWalker struct {
	paragraphs []string
	current    strings.Builder
	headings   []markdown.Heading
	trail      []string // titles of the open heading levels
	size       int      // byte length of the joined paragraphs
}

// extractHTML returns the visible text of an HTML document with one
// paragraph per block element, plus its H1-H3 outline.
func extractHTML(data []byte) (string, []markdown.Heading, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", nil, err
	}

	w := &htmlWalker{}
	w.walk(doc)
	w.flush()
	return strings.Join(w.paragraphs, "\n\n"), w.headings, nil
}

func (w *htmlWalker) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.write(n.Data)
		return
	case html.ElementNode:
		if skipped[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Img {
			if alt := attr(n, "alt"); alt != "" {
				w.write(" " + alt + " ")
			}
			return
		}
	}

	isBlock := n.Type == html.ElementNode && blocks[n.DataAtom]
	if isBlock {
		w.flush()
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	if isBlock {
		if level, ok := headingLevels[n.DataAtom]; ok {
			w.recordHeading(level, w.pending())
		}
		w.flush()
	}
}

func (w *htmlWalker) write(s string) {
	text := strings.Join(strings.Fields(s), " ")
	if text == "" {
		w.space()
		return
	}
	if startsWithSpace(s) {
		w.space()
	}
	w.current.WriteString(text)
	if endsWithSpace(s) {
		w.space()
	}
}

// space separates the next write from the current text, at most once.
func (w *htmlWalker) space() {
	if w.current.Len() > 0 && !strings.HasSuffix(w.current.String(), " ") {
		w.current.WriteByte(' ')
	}
}

func (w *htmlWalker) pending() string {
	return strings.TrimSpace(w.current.String())
}

func (w *htmlWalker) flush() {
	if p := w.pending(); p != "" {
		w.size = w.nextOffset() + len(p)
		w.paragraphs = append(w.paragraphs, p)
	}
	w.current.Reset()
}

// nextOffset is where the next paragraph starts in the joined text.
func (w *htmlWalker) nextOffset() int {
	if len(w.paragraphs) == 0 {
		return 0
	}
	return w.size + len("\n\n")
}

func (w *htmlWalker) recordHeading(level int, title string) {
	if title == "" {
		return
	}
	if level-1 < len(w.trail) {
		w.trail = w.trail[:level-1]
	}
	w.trail = append(w.trail, title)
	w.headings = append(w.headings, markdown.Heading{
		Level:  len(w.trail),
		Title:  title,
		Path:   strings.Join(w.trail, " > "),
		Offset: w.nextOffset(),
	})
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func startsWithSpace(s string) bool {
	return s != "" && strings.TrimLeft(s, " \t\r\n") != s
}

func endsWithSpace(s string) bool {
	return s != "" && strings.TrimRight(s, " \t\r\n") != s
}
