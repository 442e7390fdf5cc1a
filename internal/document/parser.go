// Package document turns raw document bytes into plain text ready for
// segmentation.
package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"

	"github.com/HlhDataScience/DocsIngestionApi/internal/markdown"
)

// DefaultMaxBytes bounds how much of a document is read into memory.
const DefaultMaxBytes = 64 << 20

// Parsed is the text extracted from one document.
type Parsed struct {
	Text     string
	Headings []markdown.Heading
	Format   Format
}

// Parser extracts text from the supported formats. It is safe for
// concurrent use.
type Parser struct {
	markdown *markdown.Extractor
	maxBytes int64
}

// NewParser creates a parser with the default size limit.
func NewParser() *Parser {
	return &Parser{
		markdown: markdown.NewExtractor(),
		maxBytes: DefaultMaxBytes,
	}
}

// Parse reads r fully and extracts its text according to format.
// Images and embedded objects are skipped without failing the document.
func (p *Parser) Parse(ctx context.Context, r io.Reader, format Format) (*Parsed, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrCorruptDocument, err)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrCorruptDocument, p.maxBytes)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch format {
	case FormatText:
		text, err := decodeText(data)
		if err != nil {
			return nil, err
		}
		return &Parsed{Text: text, Format: format}, nil

	case FormatMarkdown:
		text, err := decodeText(data)
		if err != nil {
			return nil, err
		}
		doc, err := p.markdown.Extract([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
		}
		return &Parsed{Text: doc.Text, Headings: doc.Headings, Format: format}, nil

	case FormatHTML:
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: html is not valid UTF-8", ErrCorruptDocument)
		}
		text, headings, err := extractHTML(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
		}
		return &Parsed{Text: text, Headings: headings, Format: format}, nil

	default:
		return p.convert(data, format)
	}
}

// convert hands binary office formats to docconv.
func (p *Parser) convert(data []byte, format Format) (*Parsed, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty %s file", ErrCorruptDocument, format)
	}

	res, err := docconv.Convert(bytes.NewReader(data), mimeTypes[format], false)
	if err != nil {
		return nil, fmt.Errorf("%w: %s conversion failed: %v", ErrCorruptDocument, format, err)
	}

	text := normalizeNewlines(res.Body)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	return &Parsed{Text: strings.TrimSpace(text), Format: format}, nil
}

// decodeText validates UTF-8 and strips a byte order mark.
func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrCorruptDocument)
	}
	return normalizeNewlines(string(data)), nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
