// Package chunking splits extracted document text into bounded chunks sized
// for a language-model context window.
package chunking

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/HlhDataScience/DocsIngestionApi/internal/markdown"
)

// DefaultMaxTokens is the chunk budget used when none is configured.
const DefaultMaxTokens = 512

// runesPerToken approximates tokenizer output for English prose.
const runesPerToken = 4

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t\r]*\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?]["')\]]*\s`)
)

// Chunk is one bounded span of the source text.
type Chunk struct {
	Index  int    // Position in document (0, 1, 2...)
	Text   string // Span text with surrounding whitespace trimmed
	Start  int    // Byte offset of Text in the source
	End    int    // Byte offset just past Text
	Tokens int    // Approximate token count

	// HeaderPath is the outline position of the chunk, e.g.
	// "Guide > Install". Empty when the document has no headings.
	HeaderPath string
}

// Segmenter produces chunks of at most MaxTokens approximate tokens.
type Segmenter struct {
	maxTokens int
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithMaxTokens sets the chunk budget. Values below 1 are ignored.
func WithMaxTokens(n int) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// NewSegmenter creates a segmenter with the default budget unless overridden.
func NewSegmenter(opts ...Option) *Segmenter {
	s := &Segmenter{maxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxTokens returns the configured budget.
func (s *Segmenter) MaxTokens() int {
	return s.maxTokens
}

// Segment returns a lazy iterator over the chunks of text. No chunk is
// computed until Next is called.
func (s *Segmenter) Segment(text string) *Iterator {
	return &Iterator{
		text:     text,
		maxRunes: s.maxTokens * runesPerToken,
	}
}

// SegmentOutline is Segment for text with a heading outline. Each chunk is
// labelled with the path of the last heading at or before its start, or of
// the first heading inside it when none precedes it.
func (s *Segmenter) SegmentOutline(text string, headings []markdown.Heading) *Iterator {
	it := s.Segment(text)
	for _, h := range headings {
		if h.Offset >= 0 && h.Offset < len(text) {
			it.headings = append(it.headings, h)
		}
	}
	slices.SortStableFunc(it.headings, func(a, b markdown.Heading) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	return it
}

// Iterator is a finite, non-restartable pull sequence of chunks.
type Iterator struct {
	text     string
	maxRunes int
	pos      int
	next     int
	done     bool

	headings []markdown.Heading // sorted by offset
	section  int                // headings[:section] start at or before pos
}

// Next returns the next chunk, or false once the text is exhausted.
func (it *Iterator) Next() (Chunk, bool) {
	if it.done {
		return Chunk{}, false
	}

	// Skip whitespace between chunks
	for it.pos < len(it.text) {
		r, size := utf8.DecodeRuneInString(it.text[it.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		it.pos += size
	}
	if it.pos >= len(it.text) {
		it.done = true
		return Chunk{}, false
	}

	rest := it.text[it.pos:]
	cut := len(rest)
	if utf8.RuneCountInString(strings.TrimRightFunc(rest, unicode.IsSpace)) > it.maxRunes {
		cut = splitPoint(rest, it.maxRunes)
	}

	body := strings.TrimRightFunc(rest[:cut], unicode.IsSpace)
	chunk := Chunk{
		Index:  it.next,
		Text:   body,
		Start:  it.pos,
		End:    it.pos + len(body),
		Tokens: estimateTokens(body),
	}
	chunk.HeaderPath = it.headerPath(chunk.Start, chunk.End)

	it.pos += cut
	it.next++
	return chunk, true
}

// headerPath advances the section cursor to start and returns the path that
// labels the span [start, end).
func (it *Iterator) headerPath(start, end int) string {
	for it.section < len(it.headings) && it.headings[it.section].Offset <= start {
		it.section++
	}
	switch {
	case it.section > 0:
		return it.headings[it.section-1].Path
	case len(it.headings) > 0 && it.headings[0].Offset < end:
		return it.headings[0].Path
	}
	return ""
}

// Collect drains the iterator. Intended for tests and small inputs.
func (it *Iterator) Collect() []Chunk {
	var chunks []Chunk
	for {
		c, ok := it.Next()
		if !ok {
			return chunks
		}
		chunks = append(chunks, c)
	}
}

// splitPoint returns the byte offset at which to end a chunk taken from the
// start of s, which is longer than maxRunes. It prefers a paragraph break,
// then a sentence end, then any whitespace, and cuts mid-word only when the
// window holds a single word.
func splitPoint(s string, maxRunes int) int {
	window := prefixRunes(s, maxRunes)

	if locs := paragraphBreak.FindAllStringIndex(window, -1); len(locs) > 0 {
		if at := locs[len(locs)-1][0]; at > 0 {
			return at
		}
	}

	if locs := sentenceEnd.FindAllStringIndex(window, -1); len(locs) > 0 {
		// End just before the trailing whitespace the match consumed
		last := locs[len(locs)-1]
		_, size := utf8.DecodeLastRuneInString(window[:last[1]])
		return last[1] - size
	}

	if at := strings.LastIndexFunc(window, unicode.IsSpace); at > 0 {
		return at
	}

	return len(window)
}

// prefixRunes returns the longest prefix of s holding at most n runes.
func prefixRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func estimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + runesPerToken - 1) / runesPerToken
}
