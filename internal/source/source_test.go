package source_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"paperflow/internal/domain"
	"paperflow/internal/port"
	"paperflow/internal/source"
	"paperflow/internal/storage/localfs"
	"paperflow/mocks"
)

func put(t *testing.T, s port.ObjectStorage, key, body string) {
	t.Helper()
	_, err := s.Upload(context.Background(), port.UploadInput{Key: key, Body: strings.NewReader(body)})
	require.NoError(t, err)
}

func drain(t *testing.T, r port.RecordReader) []domain.Span {
	t.Helper()
	var out []domain.Span
	for {
		span, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, span)
	}
}

func TestHistory_ReadsAndResumes(t *testing.T) {
	store := localfs.New(t.TempDir())
	put(t, store, "snapshot.json", "{\"id\":\"a\"}\n\n{\"id\":\"b\"}\r\n{\"id\":\"c\"}")
	ctx := context.Background()

	src, err := source.History(ctx, store, "", "snapshot.json")
	require.NoError(t, err)

	r, err := src.Open(ctx, domain.Position{})
	require.NoError(t, err)
	spans := drain(t, r)
	require.NoError(t, r.Close())

	require.Len(t, spans, 3)
	assert.Equal(t, `{"id":"a"}`, string(spans[0].Data))
	assert.Equal(t, `{"id":"b"}`, string(spans[1].Data))
	assert.Equal(t, `{"id":"c"}`, string(spans[2].Data))
	assert.Equal(t, domain.Position{Part: 0, Offset: 12}, spans[1].Position)
	assert.Equal(t, spans[1].Next, spans[2].Position)
	assert.Equal(t, domain.Position{Part: 1, Offset: 0}, spans[2].Next)

	resumed, err := src.Open(ctx, spans[1].Position)
	require.NoError(t, err)
	rest := drain(t, resumed)
	require.Len(t, rest, 2)
	assert.Equal(t, spans[1:], rest)

	done, err := src.Open(ctx, spans[2].Next)
	require.NoError(t, err)
	assert.Empty(t, drain(t, done))
}

func TestHistory_MissingInput(t *testing.T) {
	store := localfs.New(t.TempDir())
	_, err := source.History(context.Background(), store, "", "missing.json")
	assert.ErrorIs(t, err, domain.ErrInputNotFound)
}

func TestDaily_OrderAndHints(t *testing.T) {
	store := localfs.New(t.TempDir())
	put(t, store, "raw/arXivRaw/2024-01-01/0001.json", `{"id":"r1"}`+"\n")
	put(t, store, "raw/arXiv/2024-01-01/0002.json", `{"id":"c2"}`+"\n")
	put(t, store, "raw/arXiv/2024-01-01/0001.json", `{"id":"c1"}`+"\n")
	put(t, store, "raw/arXiv/2024-01-02/0001.json", `{"id":"c3"}`+"\n")
	put(t, store, "raw/arXiv/2024-01-02/notes.txt", "ignored")
	put(t, store, "raw/arXiv/2024-01-03/0001.json", `{"id":"outside"}`+"\n")
	ctx := context.Background()

	from := domain.NewDate(2024, time.January, 1)
	to := domain.NewDate(2024, time.January, 3)
	src, err := source.Daily(ctx, store, "", "raw", from, to)
	require.NoError(t, err)
	require.Len(t, source.Parts(src), 4)

	r, err := src.Open(ctx, domain.Position{})
	require.NoError(t, err)
	spans := drain(t, r)

	var ids []string
	var hints []domain.FormatKind
	for _, s := range spans {
		ids = append(ids, string(s.Data))
		hints = append(hints, s.FormatHint)
	}
	assert.Equal(t, []string{`{"id":"c1"}`, `{"id":"c2"}`, `{"id":"r1"}`, `{"id":"c3"}`}, ids)
	assert.Equal(t, []domain.FormatKind{domain.FormatCurated, domain.FormatCurated, domain.FormatRawHistory, domain.FormatCurated}, hints)

	resumed, err := src.Open(ctx, domain.Position{Part: 2})
	require.NoError(t, err)
	assert.Len(t, drain(t, resumed), 2)
}

func TestDaily_EmptyRangeRejected(t *testing.T) {
	d := domain.NewDate(2024, time.January, 1)
	_, err := source.Daily(context.Background(), localfs.New(t.TempDir()), "", "raw", d, d)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestReader_MidStreamFailure(t *testing.T) {
	store := new(mocks.MockObjectStorage)
	store.On("OpenRange", mock.Anything, "b", "one.json", int64(0)).
		Return(io.NopCloser(strings.NewReader(`{"id":"a"}`+"\n")), nil)
	store.On("OpenRange", mock.Anything, "b", "two.json", int64(0)).
		Return(nil, errors.New("connection reset"))

	src := source.New(store, []source.Part{
		{Bucket: "b", Key: "one.json", Size: -1},
		{Bucket: "b", Key: "two.json", Size: -1},
	})
	r, err := src.Open(context.Background(), domain.Position{})
	require.NoError(t, err)

	span, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"id":"a"}`, string(span.Data))

	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, domain.ErrInputUnreadable)
	store.AssertExpectations(t)
}

func TestHintForKey(t *testing.T) {
	assert.Equal(t, domain.FormatRawHistory, source.HintForKey("raw/arXivRaw/2024-01-01/0001.json"))
	assert.Equal(t, domain.FormatCurated, source.HintForKey("raw/arXiv/2024-01-01/0001.json"))
	assert.Equal(t, domain.FormatKind(""), source.HintForKey("raw/initial/arxiv-metadata-oai-snapshot.json"))
}
