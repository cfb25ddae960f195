package port

import (
	"context"

	"paperflow/internal/domain"
)

// RecordSource produces a lazy, finite stream of record spans that can be
// restarted from any position a previous reader reported.
type RecordSource interface {
	Open(ctx context.Context, from domain.Position) (RecordReader, error)
}

// RecordReader yields spans in position order. Next returns io.EOF after the
// last span.
type RecordReader interface {
	Next(ctx context.Context) (domain.Span, error)
	Close() error
}
