package sink

import (
	"context"
	"errors"

	"paperflow/internal/domain"
	"paperflow/internal/port"
)

// Fanout delivers each batch to every sink in order. The batch fails if any
// sink fails; sinks after a failing one still receive it.
type Fanout []port.OutputSink

func (f Fanout) WriteBatch(ctx context.Context, key domain.PartitionKey, papers []*domain.CanonicalPaper) error {
	var errs []error
	for _, s := range f {
		if err := s.WriteBatch(ctx, key, papers); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
