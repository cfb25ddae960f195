package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"paperflow/internal/domain"
	"paperflow/internal/port"
)

type paperRow struct {
	PaperID         string    `db:"paper_id"`
	Title           string    `db:"title"`
	Abstract        string    `db:"abstract"`
	PrimaryCategory string    `db:"primary_category"`
	Categories      string    `db:"categories"`
	Institutions    string    `db:"institutions"`
	DOI             string    `db:"doi"`
	JournalRef      string    `db:"journal_ref"`
	SubmittedDate   *string   `db:"submitted_date"`
	PublishedDate   *string   `db:"published_date"`
	UpdateDate      *string   `db:"update_date"`
	VersionCount    int       `db:"version_count"`
	UpdateFrequency int       `db:"update_frequency"`
	DelayDays       *int      `db:"submission_to_publication_days"`
	IsPublished     bool      `db:"is_published"`
	PartitionYear   string    `db:"partition_year"`
	PartitionMonth  string    `db:"partition_month"`
	PartitionDay    string    `db:"partition_day"`
	Doc             string    `db:"doc"`
	UpdatedAt       time.Time `db:"updated_at"`
}

const upsertPaperQuery = `INSERT INTO papers (
	paper_id, title, abstract, primary_category, categories, institutions, doi, journal_ref,
	submitted_date, published_date, update_date, version_count, update_frequency,
	submission_to_publication_days, is_published, partition_year, partition_month, partition_day,
	doc, updated_at
) VALUES (
	:paper_id, :title, :abstract, :primary_category, :categories, :institutions, :doi, :journal_ref,
	:submitted_date, :published_date, :update_date, :version_count, :update_frequency,
	:submission_to_publication_days, :is_published, :partition_year, :partition_month, :partition_day,
	:doc, :updated_at
)
ON CONFLICT (paper_id) DO UPDATE SET
	title = excluded.title,
	abstract = excluded.abstract,
	primary_category = excluded.primary_category,
	categories = excluded.categories,
	institutions = excluded.institutions,
	doi = excluded.doi,
	journal_ref = excluded.journal_ref,
	submitted_date = excluded.submitted_date,
	published_date = excluded.published_date,
	update_date = excluded.update_date,
	version_count = excluded.version_count,
	update_frequency = excluded.update_frequency,
	submission_to_publication_days = excluded.submission_to_publication_days,
	is_published = excluded.is_published,
	partition_year = excluded.partition_year,
	partition_month = excluded.partition_month,
	partition_day = excluded.partition_day,
	doc = excluded.doc,
	updated_at = excluded.updated_at`

type paperRepo struct {
	db *sqlx.DB
}

// NewPaperRepo creates a SQL-backed PaperRepository.
func NewPaperRepo(db *sqlx.DB) port.PaperRepository {
	return &paperRepo{db: db}
}

func (r *paperRepo) UpsertMany(ctx context.Context, papers []*domain.CanonicalPaper) error {
	if len(papers) == 0 {
		return nil
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("paperRepo.UpsertMany begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, p := range papers {
		row, err := toPaperRow(p, now)
		if err != nil {
			return fmt.Errorf("paperRepo.UpsertMany encoding %s: %w", p.PaperID, err)
		}
		if _, err := tx.NamedExecContext(ctx, upsertPaperQuery, row); err != nil {
			return fmt.Errorf("paperRepo.UpsertMany %s: %w", p.PaperID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("paperRepo.UpsertMany commit: %w", err)
	}
	return nil
}

func (r *paperRepo) GetByID(ctx context.Context, paperID string) (*domain.CanonicalPaper, error) {
	var doc string
	err := r.db.GetContext(ctx, &doc, r.db.Rebind(`SELECT doc FROM papers WHERE paper_id = ?`), paperID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("paperRepo.GetByID: %w", err)
	}

	var p domain.CanonicalPaper
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("paperRepo.GetByID decoding: %w", err)
	}
	return &p, nil
}

func toPaperRow(p *domain.CanonicalPaper, now time.Time) (*paperRow, error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	categories, err := json.Marshal(orEmpty(p.Categories))
	if err != nil {
		return nil, err
	}
	institutions, err := json.Marshal(orEmpty(p.Institutions))
	if err != nil {
		return nil, err
	}
	return &paperRow{
		PaperID:         p.PaperID,
		Title:           p.Title,
		Abstract:        p.Abstract,
		PrimaryCategory: p.PrimaryCategory,
		Categories:      string(categories),
		Institutions:    string(institutions),
		DOI:             p.DOI,
		JournalRef:      p.JournalRef,
		SubmittedDate:   dateString(p.SubmittedDate),
		PublishedDate:   dateString(p.PublishedDate),
		UpdateDate:      dateString(p.UpdateDate),
		VersionCount:    p.VersionCount,
		UpdateFrequency: p.UpdateFrequency,
		DelayDays:       p.SubmissionToPublicationDays,
		IsPublished:     p.IsPublished,
		PartitionYear:   p.PartitionYear,
		PartitionMonth:  p.PartitionMonth,
		PartitionDay:    p.PartitionDay,
		Doc:             string(doc),
		UpdatedAt:       now,
	}, nil
}

func dateString(d *domain.Date) *string {
	if d == nil || d.IsZero() {
		return nil
	}
	s := d.String()
	return &s
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
