package document

import (
	"fmt"
	"path"
	"strings"
)

// Format identifies how document bytes are decoded.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
	FormatPDF      Format = "pdf"
	FormatODT      Format = "odt"
	FormatRTF      Format = "rtf"
	FormatDOC      Format = "doc"
)

var extensions = map[string]Format{
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".docx":     FormatDOCX,
	".pdf":      FormatPDF,
	".odt":      FormatODT,
	".rtf":      FormatRTF,
	".doc":      FormatDOC,
}

// mimeTypes are the content types docconv dispatches on.
var mimeTypes = map[Format]string{
	FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FormatPDF:  "application/pdf",
	FormatODT:  "application/vnd.oasis.opendocument.text",
	FormatRTF:  "application/rtf",
	FormatDOC:  "application/msword",
}

// FormatFromPath detects the format from the file extension of p. Query
// strings and @ref suffixes are not stripped; callers pass the object path.
func FormatFromPath(p string) (Format, error) {
	ext := strings.ToLower(path.Ext(p))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnsupportedFormat, p)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	switch f {
	case FormatText, FormatMarkdown, FormatHTML:
		return true
	}
	_, ok := mimeTypes[f]
	return ok
}
