package sink

import (
	"context"
	"fmt"

	"paperflow/internal/domain"
	"paperflow/internal/port"
)

// LookupSink upserts every paper into the point-lookup table. Re-delivery
// replaces rows by paper id.
type LookupSink struct {
	repo port.PaperRepository
}

// NewLookupSink creates a LookupSink.
func NewLookupSink(repo port.PaperRepository) *LookupSink {
	return &LookupSink{repo: repo}
}

func (s *LookupSink) WriteBatch(ctx context.Context, key domain.PartitionKey, papers []*domain.CanonicalPaper) error {
	if err := s.repo.UpsertMany(ctx, papers); err != nil {
		return fmt.Errorf("upserting %s batch: %w", key, err)
	}
	return nil
}
