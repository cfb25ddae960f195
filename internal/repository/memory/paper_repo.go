package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"paperflow/internal/domain"
	"paperflow/internal/port"
)

// PaperRepo is an in-memory point-lookup table.
type PaperRepo struct {
	mu     sync.RWMutex
	papers map[string][]byte
}

var _ port.PaperRepository = (*PaperRepo)(nil)

// NewPaperRepo creates an empty in-memory PaperRepository.
func NewPaperRepo() *PaperRepo {
	return &PaperRepo{papers: make(map[string][]byte)}
}

func (r *PaperRepo) UpsertMany(_ context.Context, papers []*domain.CanonicalPaper) error {
	encoded := make(map[string][]byte, len(papers))
	for _, p := range papers {
		doc, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("memory.PaperRepo.UpsertMany encoding %s: %w", p.PaperID, err)
		}
		encoded[p.PaperID] = doc
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, doc := range encoded {
		r.papers[id] = doc
	}
	return nil
}

func (r *PaperRepo) GetByID(_ context.Context, paperID string) (*domain.CanonicalPaper, error) {
	r.mu.RLock()
	doc, ok := r.papers[paperID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	var p domain.CanonicalPaper
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("memory.PaperRepo.GetByID decoding: %w", err)
	}
	return &p, nil
}

// Len returns the number of stored papers.
func (r *PaperRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.papers)
}
