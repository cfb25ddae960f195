package sqlrepo_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperflow/internal/domain"
	"paperflow/internal/repository/sqlite"
	"paperflow/internal/repository/sqlrepo"
)

func openDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPriorStateRepo_PutAndGet(t *testing.T) {
	ctx := context.Background()
	repo := sqlrepo.NewPriorStateRepo(openDB(t))

	ts := time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)
	st := domain.PriorState{
		PaperID:  "2101.00001",
		Versions: []domain.Version{{Label: "v1", Timestamp: &ts}},
		Curated:  &domain.Fragment{PaperID: "2101.00001", Source: domain.FormatCurated, Title: "A Study"},
	}
	require.NoError(t, repo.Put(ctx, st))

	got, err := repo.GetMany(ctx, []string{"2101.00001", "absent"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	stored := got["2101.00001"]
	assert.Equal(t, int64(1), stored.Revision)
	require.Len(t, stored.Versions, 1)
	assert.True(t, ts.Equal(*stored.Versions[0].Timestamp))
	require.NotNil(t, stored.Curated)
	assert.Equal(t, "A Study", stored.Curated.Title)
}

func TestPriorStateRepo_RevisionConflict(t *testing.T) {
	ctx := context.Background()
	repo := sqlrepo.NewPriorStateRepo(openDB(t))

	require.NoError(t, repo.Put(ctx, domain.PriorState{PaperID: "p1"}))
	assert.ErrorIs(t, repo.Put(ctx, domain.PriorState{PaperID: "p1"}), domain.ErrRevisionConflict)

	// Updating from revision 1 succeeds exactly once.
	require.NoError(t, repo.Put(ctx, domain.PriorState{PaperID: "p1", Revision: 1}))
	assert.ErrorIs(t, repo.Put(ctx, domain.PriorState{PaperID: "p1", Revision: 1}), domain.ErrRevisionConflict)

	got, err := repo.GetMany(ctx, []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got["p1"].Revision)

	assert.ErrorIs(t, repo.Put(ctx, domain.PriorState{PaperID: "never", Revision: 3}), domain.ErrRevisionConflict)
}

func TestPriorStateRepo_GetManyBatches(t *testing.T) {
	ctx := context.Background()
	repo := sqlrepo.NewPriorStateRepo(openDB(t))

	ids := make([]string, 0, 1200)
	for i := 0; i < 1200; i++ {
		id := fmt.Sprintf("p%04d", i)
		ids = append(ids, id)
		if i%2 == 0 {
			require.NoError(t, repo.Put(ctx, domain.PriorState{PaperID: id}))
		}
	}

	got, err := repo.GetMany(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, got, 600)

	empty, err := repo.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPaperRepo_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := sqlrepo.NewPaperRepo(openDB(t))

	_, err := repo.GetByID(ctx, "2101.00001")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	days := 365
	p := &domain.CanonicalPaper{
		PaperID:                     "2101.00001",
		Title:                       "A Study",
		Categories:                  []string{"cs.AI"},
		SubmittedDate:               domain.DatePtr(domain.NewDate(2021, time.January, 1)),
		SubmissionToPublicationDays: &days,
		VersionCount:                1,
		PartitionYear:               "2021", PartitionMonth: "01", PartitionDay: "01",
	}
	require.NoError(t, repo.UpsertMany(ctx, []*domain.CanonicalPaper{p}))

	p.Title = "A Revised Study"
	p.VersionCount = 2
	require.NoError(t, repo.UpsertMany(ctx, []*domain.CanonicalPaper{p}))

	got, err := repo.GetByID(ctx, "2101.00001")
	require.NoError(t, err)
	assert.Equal(t, "A Revised Study", got.Title)
	assert.Equal(t, 2, got.VersionCount)
	require.NotNil(t, got.SubmissionToPublicationDays)
	assert.Equal(t, 365, *got.SubmissionToPublicationDays)
	assert.Equal(t, "2021-01-01", got.SubmittedDate.String())

	require.NoError(t, repo.UpsertMany(ctx, nil))
}
