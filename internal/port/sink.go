package port

import (
	"context"

	"paperflow/internal/domain"
)

// OutputSink accepts batches of papers for one partition. Delivering an
// identical batch twice must not duplicate records.
type OutputSink interface {
	WriteBatch(ctx context.Context, key domain.PartitionKey, papers []*domain.CanonicalPaper) error
}

// PaperRepository is the point-lookup table of reconciled papers.
type PaperRepository interface {
	UpsertMany(ctx context.Context, papers []*domain.CanonicalPaper) error
	GetByID(ctx context.Context, paperID string) (*domain.CanonicalPaper, error)
}
