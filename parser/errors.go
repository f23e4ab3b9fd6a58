package parser

import "errors"

var (
	// ErrUnsupportedFormat indicates no registered parser handles the
	// file's extension.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyDocument indicates the file parsed to no usable text.
	ErrEmptyDocument = errors.New("document contains no text")
)
