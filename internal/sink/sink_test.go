package sink_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"paperflow/internal/domain"
	"paperflow/internal/sink"
	"paperflow/internal/storage/localfs"
	"paperflow/mocks"
)

func samplePapers() []*domain.CanonicalPaper {
	days := 365
	created := time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)
	return []*domain.CanonicalPaper{
		{
			PaperID:                     "2101.00001",
			Title:                       "A Study",
			PrimaryCategory:             "cs.AI",
			Categories:                  []string{"cs.AI", "cs.LG"},
			Authors:                     []domain.Author{{Name: "A. Smith", AffiliationHint: "mit.edu"}},
			Institutions:                []string{"mit.edu"},
			JournalRef:                  "J. Phys (2022)",
			SubmittedDate:               domain.DatePtr(domain.NewDate(2021, time.January, 1)),
			PublishedDate:               domain.DatePtr(domain.NewDate(2022, time.January, 1)),
			Versions:                    []domain.Version{{Label: "v1", Timestamp: &created}},
			VersionCount:                1,
			SubmissionToPublicationDays: &days,
			IsPublished:                 true,
			PartitionYear:               "2021", PartitionMonth: "01", PartitionDay: "01",
		},
		{
			PaperID:       "2101.00002",
			Categories:    []string{},
			Authors:       []domain.Author{},
			Institutions:  []string{},
			Versions:      []domain.Version{{Label: "v1", Synthetic: true}},
			VersionCount:  1,
			PartitionYear: "2021", PartitionMonth: "01", PartitionDay: "01",
		},
	}
}

func TestParquetEncoder_RoundTrip(t *testing.T) {
	data, err := sink.NewParquetEncoder().Encode(samplePapers())
	require.NoError(t, err)
	require.NotEmpty(t, data)

	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data),
		parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, int64(2), tbl.NumRows())
	assert.Equal(t, int64(len(sink.PaperSchema.Fields())), tbl.NumCols())
	assert.Equal(t, "paper_id", tbl.Schema().Field(0).Name)
}

func TestParquetEncoder_Deterministic(t *testing.T) {
	enc := sink.NewParquetEncoder()
	a, err := enc.Encode(samplePapers())
	require.NoError(t, err)
	b, err := enc.Encode(samplePapers())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestJSONLEncoder(t *testing.T) {
	data, err := sink.JSONLEncoder{}.Encode(samplePapers())
	require.NoError(t, err)

	sc := bufio.NewScanner(bytes.NewReader(data))
	var ids []string
	for sc.Scan() {
		var p domain.CanonicalPaper
		require.NoError(t, json.Unmarshal(sc.Bytes(), &p))
		ids = append(ids, p.PaperID)
	}
	assert.Equal(t, []string{"2101.00001", "2101.00002"}, ids)
	assert.Contains(t, string(data), `"submission_to_publication_days":null`)
}

func TestCSVEncoder(t *testing.T) {
	data, err := sink.CSVEncoder{}.Encode(samplePapers())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "paper_id,title"))
}

func TestNewEncoder(t *testing.T) {
	for format, ext := range map[domain.OutputFormat]string{
		domain.OutputFormatParquet: ".parquet",
		domain.OutputFormatJSONL:   ".jsonl",
		domain.OutputFormatCSV:     ".csv",
	} {
		enc, err := sink.NewEncoder(format)
		require.NoError(t, err)
		assert.Equal(t, ext, enc.Extension())
	}
	_, err := sink.NewEncoder("avro")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestObjectSink_RepeatedDeliveryOverwrites(t *testing.T) {
	store := localfs.New(t.TempDir())
	s := sink.NewObjectSink(store, "", "processed", sink.JSONLEncoder{})
	key := domain.PartitionKey{Year: "2021", Month: "01", Day: "01"}
	ctx := context.Background()

	require.NoError(t, s.WriteBatch(ctx, key, samplePapers()))
	require.NoError(t, s.WriteBatch(ctx, key, samplePapers()))

	objs, err := store.List(ctx, "", "processed/year=2021/month=01/day=01/")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.True(t, strings.HasSuffix(objs[0].Key, ".jsonl"))
	assert.Regexp(t, `part-[0-9a-f]{16}\.jsonl$`, objs[0].Key)

	require.NoError(t, s.WriteBatch(ctx, key, samplePapers()[:1]))
	objs, err = store.List(ctx, "", "processed/year=2021/month=01/day=01/")
	require.NoError(t, err)
	assert.Len(t, objs, 2)

	require.NoError(t, s.WriteBatch(ctx, key, nil))
}

func TestObjectSink_UploadError(t *testing.T) {
	store := new(mocks.MockObjectStorage)
	store.On("Upload", mock.Anything, mock.Anything).Return(nil, errors.New("denied"))
	s := sink.NewObjectSink(store, "bucket", "out", sink.JSONLEncoder{})
	err := s.WriteBatch(context.Background(), domain.UnknownPartition, samplePapers())
	assert.ErrorContains(t, err, "denied")
}

func TestLookupAndFanout(t *testing.T) {
	repo := new(mocks.MockPaperRepo)
	repo.On("UpsertMany", mock.Anything, mock.Anything).Return(nil)

	failing := new(mocks.MockOutputSink)
	failing.On("WriteBatch", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))

	fan := sink.Fanout{failing, sink.NewLookupSink(repo)}
	err := fan.WriteBatch(context.Background(), domain.UnknownPartition, samplePapers())
	assert.ErrorContains(t, err, "boom")
	repo.AssertCalled(t, "UpsertMany", mock.Anything, mock.Anything)

	assert.NoError(t, sink.Fanout{sink.NewLookupSink(repo)}.WriteBatch(context.Background(), domain.UnknownPartition, nil))
}
