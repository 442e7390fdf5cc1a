package document

import "errors"

var (
	// ErrUnsupportedFormat is returned when the path or format names a type
	// the parser cannot read.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrCorruptDocument is returned when the bytes cannot be decoded as the
	// declared format.
	ErrCorruptDocument = errors.New("corrupt document")
)
