package sink

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/compress"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"

	"paperflow/internal/domain"
)

const ParquetExt = ".parquet"

var (
	authorType = arrow.StructOf(
		arrow.Field{Name: "name", Type: arrow.BinaryTypes.String},
		arrow.Field{Name: "affiliation_hint", Type: arrow.BinaryTypes.String},
	)

	versionType = arrow.StructOf(
		arrow.Field{Name: "version", Type: arrow.BinaryTypes.String},
		arrow.Field{Name: "created", Type: &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, Nullable: true},
		arrow.Field{Name: "synthetic", Type: arrow.FixedWidthTypes.Boolean},
	)

	// PaperSchema is the analytical layout of a CanonicalPaper.
	PaperSchema = arrow.NewSchema([]arrow.Field{
		{Name: "paper_id", Type: arrow.BinaryTypes.String},
		{Name: "title", Type: arrow.BinaryTypes.String},
		{Name: "abstract", Type: arrow.BinaryTypes.String},
		{Name: "primary_category", Type: arrow.BinaryTypes.String},
		{Name: "categories", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		{Name: "authors_parsed", Type: arrow.ListOf(authorType)},
		{Name: "institutions", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		{Name: "doi", Type: arrow.BinaryTypes.String},
		{Name: "journal_ref", Type: arrow.BinaryTypes.String},
		{Name: "submitted_date", Type: arrow.PrimitiveTypes.Date32, Nullable: true},
		{Name: "published_date", Type: arrow.PrimitiveTypes.Date32, Nullable: true},
		{Name: "update_date", Type: arrow.PrimitiveTypes.Date32, Nullable: true},
		{Name: "versions", Type: arrow.ListOf(versionType)},
		{Name: "version_count", Type: arrow.PrimitiveTypes.Int32},
		{Name: "update_frequency", Type: arrow.PrimitiveTypes.Int32},
		{Name: "submission_to_publication_days", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "is_published", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "partition_year", Type: arrow.BinaryTypes.String},
		{Name: "partition_month", Type: arrow.BinaryTypes.String},
		{Name: "partition_day", Type: arrow.BinaryTypes.String},
	}, nil)
)

// ParquetEncoder writes a batch as one snappy-compressed parquet file with a
// single row group.
type ParquetEncoder struct {
	mem memory.Allocator
}

// NewParquetEncoder creates a ParquetEncoder using the default allocator.
func NewParquetEncoder() *ParquetEncoder {
	return &ParquetEncoder{mem: memory.DefaultAllocator}
}

func (e *ParquetEncoder) Extension() string   { return ParquetExt }
func (e *ParquetEncoder) ContentType() string { return "application/vnd.apache.parquet" }

func (e *ParquetEncoder) Encode(papers []*domain.CanonicalPaper) ([]byte, error) {
	rec := e.record(papers)
	defer rec.Release()

	var buf bytes.Buffer
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithAllocator(e.mem),
	)
	w, err := pqarrow.NewFileWriter(PaperSchema, &buf, props, pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(e.mem)))
	if err != nil {
		return nil, fmt.Errorf("creating parquet writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return nil, fmt.Errorf("writing parquet record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *ParquetEncoder) record(papers []*domain.CanonicalPaper) arrow.Record {
	b := array.NewRecordBuilder(e.mem, PaperSchema)
	defer b.Release()

	for _, p := range papers {
		b.Field(0).(*array.StringBuilder).Append(p.PaperID)
		b.Field(1).(*array.StringBuilder).Append(p.Title)
		b.Field(2).(*array.StringBuilder).Append(p.Abstract)
		b.Field(3).(*array.StringBuilder).Append(p.PrimaryCategory)
		appendStrings(b.Field(4).(*array.ListBuilder), p.Categories)
		appendAuthors(b.Field(5).(*array.ListBuilder), p.Authors)
		appendStrings(b.Field(6).(*array.ListBuilder), p.Institutions)
		b.Field(7).(*array.StringBuilder).Append(p.DOI)
		b.Field(8).(*array.StringBuilder).Append(p.JournalRef)
		appendDate(b.Field(9).(*array.Date32Builder), p.SubmittedDate)
		appendDate(b.Field(10).(*array.Date32Builder), p.PublishedDate)
		appendDate(b.Field(11).(*array.Date32Builder), p.UpdateDate)
		appendVersions(b.Field(12).(*array.ListBuilder), p.Versions)
		b.Field(13).(*array.Int32Builder).Append(int32(p.VersionCount))
		b.Field(14).(*array.Int32Builder).Append(int32(p.UpdateFrequency))
		if p.SubmissionToPublicationDays != nil {
			b.Field(15).(*array.Int32Builder).Append(int32(*p.SubmissionToPublicationDays))
		} else {
			b.Field(15).(*array.Int32Builder).AppendNull()
		}
		b.Field(16).(*array.BooleanBuilder).Append(p.IsPublished)
		b.Field(17).(*array.StringBuilder).Append(p.PartitionYear)
		b.Field(18).(*array.StringBuilder).Append(p.PartitionMonth)
		b.Field(19).(*array.StringBuilder).Append(p.PartitionDay)
	}
	return b.NewRecord()
}

func appendStrings(lb *array.ListBuilder, values []string) {
	lb.Append(true)
	vb := lb.ValueBuilder().(*array.StringBuilder)
	for _, v := range values {
		vb.Append(v)
	}
}

func appendAuthors(lb *array.ListBuilder, authors []domain.Author) {
	lb.Append(true)
	sb := lb.ValueBuilder().(*array.StructBuilder)
	for _, a := range authors {
		sb.Append(true)
		sb.FieldBuilder(0).(*array.StringBuilder).Append(a.Name)
		sb.FieldBuilder(1).(*array.StringBuilder).Append(a.AffiliationHint)
	}
}

func appendVersions(lb *array.ListBuilder, versions []domain.Version) {
	lb.Append(true)
	sb := lb.ValueBuilder().(*array.StructBuilder)
	for _, v := range versions {
		sb.Append(true)
		sb.FieldBuilder(0).(*array.StringBuilder).Append(v.Label)
		ts := sb.FieldBuilder(1).(*array.TimestampBuilder)
		if v.Timestamp != nil {
			ts.Append(arrow.Timestamp(v.Timestamp.UnixMicro()))
		} else {
			ts.AppendNull()
		}
		sb.FieldBuilder(2).(*array.BooleanBuilder).Append(v.Synthetic)
	}
}

func appendDate(db *array.Date32Builder, d *domain.Date) {
	if d == nil || d.IsZero() {
		db.AppendNull()
		return
	}
	db.Append(arrow.Date32FromTime(d.Time()))
}
