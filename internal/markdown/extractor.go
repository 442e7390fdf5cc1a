// Package markdown extracts reading-order text and the heading outline from
// markdown documents.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Heading is one entry of the document outline.
type Heading struct {
	Level int    // Depth in the outline, 1-based
	Title string // Heading text
	Path   string // Hierarchy: "Guide > Install > Linux"
	Offset int    // Byte offset of the heading in the extracted text, -1 if unknown
}

// Document is the result of extracting a markdown source.
type Document struct {
	Text     string    // Block text in reading order, blocks separated by a blank line
	Headings []Heading // Outline in document order
}

// Extractor parses markdown with goldmark.
type Extractor struct {
	parser   goldmark.Markdown
	maxDepth int
}

// NewExtractor creates an extractor that records headings down to H3.
func NewExtractor() *Extractor {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Extractor{
		parser:   md,
		maxDepth: 3,
	}
}

// Extract returns the plain text and heading outline of source.
// HTML blocks and images carry no text and are skipped.
func (e *Extractor) Extract(source []byte) (*Document, error) {
	reader := text.NewReader(source)
	doc := e.parser.Parser().Parse(reader)

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(e.maxDepth),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var headings []Heading
	flattenItems(tree.Items, nil, &headings)

	body, offsets := blockText(doc, source, e.maxDepth)
	locateHeadings(headings, body, offsets)

	return &Document{
		Text:     body,
		Headings: headings,
	}, nil
}

// locateHeadings assigns text offsets to the outline. The outline and the
// heading blocks are both in document order, so they pair up one to one
// unless a heading rendered to an empty title; then titles are searched.
func locateHeadings(headings []Heading, body string, offsets []int) {
	if len(offsets) == len(headings) {
		for i := range headings {
			headings[i].Offset = offsets[i]
		}
		return
	}

	from := 0
	for i := range headings {
		at := strings.Index(body[from:], headings[i].Title)
		if at < 0 {
			headings[i].Offset = -1
			continue
		}
		headings[i].Offset = from + at
		from += at + len(headings[i].Title)
	}
}

// flattenItems walks the TOC tree depth-first, building header paths.
func flattenItems(items toc.Items, ancestors []string, out *[]Heading) {
	for _, item := range items {
		title := strings.TrimSpace(string(item.Title))
		path := ancestors
		if title != "" {
			path = append(append([]string(nil), ancestors...), title)
			*out = append(*out, Heading{
				Level: len(path),
				Title: title,
				Path:  strings.Join(path, " > "),
			})
		}
		if len(item.Items) > 0 {
			flattenItems(item.Items, path, out)
		}
	}
}

// blockText concatenates the raw lines of every text-bearing leaf block. It
// also returns the text offset of each heading down to maxDepth.
func blockText(doc ast.Node, source []byte, maxDepth int) (string, []int) {
	var (
		blocks  []string
		offsets []int
		size    int
	)
	add := func(s string) {
		if len(blocks) > 0 {
			size += len("\n\n")
		}
		blocks = append(blocks, s)
		size += len(s)
	}

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n.Kind() {
		case ast.KindHeading:
			if s := linesOf(n, source); s != "" {
				if n.(*ast.Heading).Level <= maxDepth {
					start := size
					if len(blocks) > 0 {
						start += len("\n\n")
					}
					offsets = append(offsets, start)
				}
				add(s)
			}
			return ast.WalkSkipChildren, nil
		case ast.KindParagraph, ast.KindTextBlock,
			ast.KindFencedCodeBlock, ast.KindCodeBlock:
			if s := linesOf(n, source); s != "" {
				add(s)
			}
			return ast.WalkSkipChildren, nil
		case ast.KindHTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(blocks, "\n\n"), offsets
}

func linesOf(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return strings.TrimSpace(buf.String())
}
