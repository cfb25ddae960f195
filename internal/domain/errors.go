package domain

import "errors"

var (
	ErrNotFound          = errors.New("resource not found")
	ErrRevisionConflict  = errors.New("prior state revision changed concurrently")
	ErrInputNotFound     = errors.New("input source does not exist")
	ErrInputUnreadable   = errors.New("input stream unreadable")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrMissingPaperID    = errors.New("record has no paper id")
	ErrMalformedRecord   = errors.New("record is not a JSON object")
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrPartitionWrite    = errors.New("partition write failed")
	ErrStateUpdate       = errors.New("prior state update failed")
)
