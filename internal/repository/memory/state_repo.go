// Package memory provides in-process implementations of the persistence
// ports for single-run use and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"paperflow/internal/domain"
	"paperflow/internal/port"
)

type storedState struct {
	revision int64
	doc      []byte
}

// PriorStateRepo keeps prior states encoded, so callers never share slices
// with the store.
type PriorStateRepo struct {
	mu     sync.RWMutex
	states map[string]storedState
}

var _ port.PriorStateRepository = (*PriorStateRepo)(nil)

// NewPriorStateRepo creates an empty in-memory PriorStateRepository.
func NewPriorStateRepo() *PriorStateRepo {
	return &PriorStateRepo{states: make(map[string]storedState)}
}

func (r *PriorStateRepo) GetMany(_ context.Context, ids []string) (map[string]domain.PriorState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]domain.PriorState, len(ids))
	for _, id := range ids {
		s, ok := r.states[id]
		if !ok {
			continue
		}
		var st domain.PriorState
		if err := json.Unmarshal(s.doc, &st); err != nil {
			return nil, fmt.Errorf("memory.PriorStateRepo.GetMany decoding %s: %w", id, err)
		}
		st.Revision = s.revision
		out[id] = st
	}
	return out, nil
}

func (r *PriorStateRepo) Put(_ context.Context, state domain.PriorState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.states[state.PaperID].revision
	if current != state.Revision {
		return domain.ErrRevisionConflict
	}
	state.Revision++
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("memory.PriorStateRepo.Put encoding: %w", err)
	}
	r.states[state.PaperID] = storedState{revision: state.Revision, doc: doc}
	return nil
}

// Len returns the number of stored states.
func (r *PriorStateRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}
