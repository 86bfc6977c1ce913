package format

import "errors"

var (
	// ErrInvalidHeader indicates an invalid or truncated file header.
	ErrInvalidHeader = errors.New("invalid file header")
	// ErrMagicMismatch indicates the magic number doesn't match.
	ErrMagicMismatch = errors.New("magic number mismatch")
	// ErrVersionMismatch indicates an unsupported format version.
	ErrVersionMismatch = errors.New("unsupported format version")
	// ErrCorrupt indicates the body of a cache file failed validation.
	ErrCorrupt = errors.New("corrupt cache file")
)
