package port

import (
	"context"

	"paperflow/internal/domain"
)

// PriorStateRepository persists the cumulative per-paper state of earlier
// runs. Implementations must allow concurrent readers.
type PriorStateRepository interface {
	// GetMany returns the stored states for ids; ids without state are absent
	// from the map.
	GetMany(ctx context.Context, ids []string) (map[string]domain.PriorState, error)
	// Put stores state if the stored revision still equals state.Revision
	// (0 meaning "not stored yet") and bumps the revision. Otherwise it returns
	// domain.ErrRevisionConflict.
	Put(ctx context.Context, state domain.PriorState) error
}
