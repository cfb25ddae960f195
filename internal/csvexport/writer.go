package csvexport

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"paperflow/internal/domain"
)

// columns defines the CSV header row.
var columns = []string{
	"paper_id",
	"title",
	"abstract",
	"primary_category",
	"categories",
	"authors",
	"institutions",
	"doi",
	"journal_ref",
	"submitted_date",
	"published_date",
	"update_date",
	"version_count",
	"update_frequency",
	"submission_to_publication_days",
	"is_published",
	"partition_year",
	"partition_month",
	"partition_day",
}

// Writer wraps csv.Writer for exporting papers as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WritePapers converts a batch of papers to CSV rows and writes them.
func (w *Writer) WritePapers(papers []*domain.CanonicalPaper) error {
	for _, p := range papers {
		if err := w.csv.Write(paperToRow(p)); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// paperToRow flattens a paper. Multi-valued columns are joined: categories
// and institutions by spaces, authors by "; " with the hint in brackets.
func paperToRow(p *domain.CanonicalPaper) []string {
	row := make([]string, len(columns))

	row[0] = p.PaperID
	row[1] = p.Title
	row[2] = p.Abstract
	row[3] = p.PrimaryCategory
	row[4] = strings.Join(p.Categories, " ")
	row[5] = formatAuthors(p.Authors)
	row[6] = strings.Join(p.Institutions, " ")
	row[7] = p.DOI
	row[8] = p.JournalRef
	row[9] = formatDate(p.SubmittedDate)
	row[10] = formatDate(p.PublishedDate)
	row[11] = formatDate(p.UpdateDate)
	row[12] = strconv.Itoa(p.VersionCount)
	row[13] = strconv.Itoa(p.UpdateFrequency)
	if p.SubmissionToPublicationDays != nil {
		row[14] = strconv.Itoa(*p.SubmissionToPublicationDays)
	}
	row[15] = strconv.FormatBool(p.IsPublished)
	row[16] = p.PartitionYear
	row[17] = p.PartitionMonth
	row[18] = p.PartitionDay

	return row
}

func formatAuthors(authors []domain.Author) string {
	parts := make([]string, 0, len(authors))
	for _, a := range authors {
		if a.AffiliationHint != "" {
			parts = append(parts, a.Name+" ["+a.AffiliationHint+"]")
			continue
		}
		parts = append(parts, a.Name)
	}
	return strings.Join(parts, "; ")
}

func formatDate(d *domain.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
