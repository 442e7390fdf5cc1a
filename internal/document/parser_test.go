package document

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HlhDataScience/DocsIngestionApi/internal/markdown"
)

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"docs/guide.md", FormatMarkdown},
		{"/tmp/Report.DOCX", FormatDOCX},
		{"s3://bucket/a/b/c.pdf", FormatPDF},
		{"notes.txt", FormatText},
		{"page.htm", FormatHTML},
		{"letter.odt", FormatODT},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"image.png", "archive.tar.gz", "README"} {
		_, err := FormatFromPath(bad)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, bad)
	}
}

func TestParse_Text(t *testing.T) {
	in := "\xef\xbb\xbfLine one.\r\nLine two.\r\n"
	got, err := NewParser().Parse(context.Background(), strings.NewReader(in), FormatText)
	require.NoError(t, err)
	assert.Equal(t, "Line one.\nLine two.\n", got.Text)
	assert.Equal(t, FormatText, got.Format)
}

func TestParse_EmptyText(t *testing.T) {
	got, err := NewParser().Parse(context.Background(), strings.NewReader(""), FormatText)
	require.NoError(t, err)
	assert.Empty(t, got.Text)
}

func TestParse_InvalidUTF8(t *testing.T) {
	for _, f := range []Format{FormatText, FormatMarkdown, FormatHTML} {
		_, err := NewParser().Parse(context.Background(), strings.NewReader("ok \xff\xfe bad"), f)
		assert.ErrorIs(t, err, ErrCorruptDocument, string(f))
	}
}

func TestParse_Markdown(t *testing.T) {
	in := "# Handbook\n\nWelcome aboard.\n\n## Leave\n\nTwenty days per year.\n"
	got, err := NewParser().Parse(context.Background(), strings.NewReader(in), FormatMarkdown)
	require.NoError(t, err)

	assert.Equal(t, "Handbook\n\nWelcome aboard.\n\nLeave\n\nTwenty days per year.", got.Text)
	require.Len(t, got.Headings, 2)
	assert.Equal(t, "Handbook > Leave", got.Headings[1].Path)
	assert.Equal(t, 27, got.Headings[1].Offset)
	assert.True(t, strings.HasPrefix(got.Text[got.Headings[1].Offset:], "Leave"))
}

func TestParse_HTML(t *testing.T) {
	in := `<html><head><title>Ignored</title><style>p { color: red }</style></head><body>
<h1>Guide</h1>
<p>Intro <b>bold</b> text.</p>
<script>var tracking = true;</script>
<h2>Install</h2>
<p>Run it <img src="a.png" alt="diagram"> now.</p>
<p><img src="spacer.gif"></p>
</body></html>`

	got, err := NewParser().Parse(context.Background(), strings.NewReader(in), FormatHTML)
	require.NoError(t, err)

	assert.Equal(t, "Guide\n\nIntro bold text.\n\nInstall\n\nRun it diagram now.", got.Text)
	assert.Equal(t, []markdown.Heading{
		{Level: 1, Title: "Guide", Path: "Guide", Offset: 0},
		{Level: 2, Title: "Install", Path: "Guide > Install", Offset: 25},
	}, got.Headings)
}

func TestParse_CorruptBinary(t *testing.T) {
	p := NewParser()
	_, err := p.Parse(context.Background(), strings.NewReader("this is not a zip archive"), FormatDOCX)
	assert.ErrorIs(t, err, ErrCorruptDocument)

	_, err = p.Parse(context.Background(), strings.NewReader(""), FormatODT)
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestParse_UnknownFormat(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), strings.NewReader("x"), Format("png"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParse_TooLarge(t *testing.T) {
	p := NewParser()
	p.maxBytes = 8
	_, err := p.Parse(context.Background(), strings.NewReader("0123456789"), FormatText)
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestParse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewParser().Parse(ctx, strings.NewReader("hello"), FormatText)
	assert.ErrorIs(t, err, context.Canceled)
}
