// Package sqlrepo implements the persistence ports on top of sqlx. Queries
// are written with '?' placeholders and rebound per driver, so the same code
// serves PostgreSQL and SQLite.
package sqlrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"paperflow/internal/domain"
	"paperflow/internal/port"
)

// lookupBatch bounds the number of ids bound into one IN clause.
const lookupBatch = 500

type stateRow struct {
	PaperID  string `db:"paper_id"`
	Revision int64  `db:"revision"`
	State    string `db:"state"`
}

type priorStateRepo struct {
	db *sqlx.DB
}

// NewPriorStateRepo creates a SQL-backed PriorStateRepository.
func NewPriorStateRepo(db *sqlx.DB) port.PriorStateRepository {
	return &priorStateRepo{db: db}
}

func (r *priorStateRepo) GetMany(ctx context.Context, ids []string) (map[string]domain.PriorState, error) {
	out := make(map[string]domain.PriorState, len(ids))
	for start := 0; start < len(ids); start += lookupBatch {
		end := min(start+lookupBatch, len(ids))

		query, args, err := sqlx.In(
			`SELECT paper_id, revision, state FROM paper_state WHERE paper_id IN (?)`,
			ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("priorStateRepo.GetMany: %w", err)
		}

		var rows []stateRow
		if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("priorStateRepo.GetMany: %w", err)
		}
		for _, row := range rows {
			var st domain.PriorState
			if err := json.Unmarshal([]byte(row.State), &st); err != nil {
				return nil, fmt.Errorf("priorStateRepo.GetMany decoding %s: %w", row.PaperID, err)
			}
			st.PaperID = row.PaperID
			st.Revision = row.Revision
			out[row.PaperID] = st
		}
	}
	return out, nil
}

func (r *priorStateRepo) Put(ctx context.Context, state domain.PriorState) error {
	next := state.Revision + 1
	stored := state
	stored.Revision = next
	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("priorStateRepo.Put encoding: %w", err)
	}
	now := time.Now().UTC()

	var query string
	var args []interface{}
	if state.Revision == 0 {
		query = `INSERT INTO paper_state (paper_id, revision, state, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (paper_id) DO NOTHING`
		args = []interface{}{state.PaperID, next, string(doc), now}
	} else {
		query = `UPDATE paper_state SET revision = ?, state = ?, updated_at = ?
		 WHERE paper_id = ? AND revision = ?`
		args = []interface{}{next, string(doc), now, state.PaperID, state.Revision}
	}

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("priorStateRepo.Put: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrRevisionConflict
	}
	return nil
}
