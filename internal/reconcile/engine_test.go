package reconcile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paperflow/internal/domain"
	"paperflow/internal/quality"
)

func newTestEngine() *Engine {
	return NewEngine(zap.NewNop(), WithClock(func() time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
}

func spans(records ...string) []domain.Span {
	out := make([]domain.Span, len(records))
	for i, r := range records {
		out[i] = domain.Span{Position: domain.Position{Offset: int64(i)}, Data: []byte(r)}
	}
	return out
}

func reconcile(t *testing.T, e *Engine, prior map[string]domain.PriorState, records ...string) *Result {
	t.Helper()
	return e.Reconcile(e.Prepare(spans(records...)), prior)
}

const (
	curatedExample = `{"paper_id":"2101.00001","format_kind":"CURATED","title":"A Study","journal_ref":"J. Phys (2022)","submitted_date":"2021-01-01"}`

	curatedFull = `{"id":"0704.0001","format_kind":"CURATED","title":"Calculation of prompt diphoton production",
		"abstract":"A fully differential calculation.","categories":"hep-ph cs.AI astro-ph",
		"authors_parsed":[["Balazs","C.",""],["Nadolsky","P. M.",""]],"doi":"10.1103/PhysRevD.76.013009",
		"journal-ref":"Phys.Rev.D76:013009,2007","update_date":"2008-11-13"}`

	historyFull = `{"id":"0704.0001","format_kind":"RAW_HISTORY","title":"Calculation of prompt diphoton production at colliders",
		"submitter":"Pavel Nadolsky <nadolsky@pa.msu.edu>","authors":"C. Balazs and P. M. Nadolsky",
		"categories":"hep-ph","versions":[{"version":"v1","created":"Mon, 2 Apr 2007 19:18:42 GMT"},
		{"version":"v2","created":"Tue, 24 Jul 2007 20:10:27 GMT"}]}`
)

func TestReconcile_CuratedWithoutHistory(t *testing.T) {
	res := reconcile(t, newTestEngine(), nil, curatedExample)
	require.Len(t, res.Papers, 1)
	p := res.Papers[0]

	assert.Equal(t, 1, p.VersionCount)
	assert.Equal(t, 0, p.UpdateFrequency)
	assert.True(t, p.IsPublished)
	require.NotNil(t, p.PublishedDate)
	assert.Equal(t, "2022-01-01", p.PublishedDate.String())
	require.NotNil(t, p.SubmissionToPublicationDays)
	assert.Equal(t, 365, *p.SubmissionToPublicationDays)
	assert.Equal(t, domain.PartitionKey{Year: "2021", Month: "01", Day: "01"}, p.Partition())
	require.Len(t, p.Versions, 1)
	assert.True(t, p.Versions[0].Synthetic)
}

func TestReconcile_TwoVersions(t *testing.T) {
	res := reconcile(t, newTestEngine(), nil,
		`{"id":"x","versions":[{"version":"v1","created":"2021-01-01"},{"version":"v2","created":"2021-06-01"}]}`)
	p := res.Papers[0]
	assert.Equal(t, 2, p.VersionCount)
	assert.Equal(t, 1, p.UpdateFrequency)
	assert.Equal(t, "2021-01-01", p.SubmittedDate.String())
	assert.Equal(t, "2021-06-01", p.UpdateDate.String())
	assert.False(t, p.IsPublished)
	assert.Nil(t, p.SubmissionToPublicationDays)
}

func TestReconcile_MissingFieldsDoNotFail(t *testing.T) {
	e := newTestEngine()
	res := reconcile(t, e, nil, `{"id":"m1","title":"Only a title","authors_parsed":[["Doe","J",""]]}`)
	p := res.Papers[0]

	assert.Equal(t, "", p.Abstract)
	assert.Equal(t, []string{}, p.Categories)
	assert.Equal(t, domain.UnknownPartition, p.Partition())

	report := e.Score(res)
	assert.Equal(t, 1, report.Missing.Abstract)
	assert.Equal(t, 1, report.Missing.Categories)
	assert.Equal(t, 1, report.Anomalies)
}

func TestReconcile_MergesBothShapes(t *testing.T) {
	res := reconcile(t, newTestEngine(), nil, curatedFull, historyFull)
	require.Len(t, res.Papers, 1)
	p := res.Papers[0]

	assert.Equal(t, "Calculation of prompt diphoton production", p.Title)
	assert.Equal(t, "hep-ph", p.PrimaryCategory)
	assert.Equal(t, []string{"hep-ph", "astro-ph", "cs.AI"}, p.Categories)
	assert.Equal(t, []domain.Author{
		{Name: "C. Balazs"},
		{Name: "P. M. Nadolsky", AffiliationHint: "msu.edu"},
	}, p.Authors)
	assert.Equal(t, []string{"msu.edu"}, p.Institutions)
	assert.Equal(t, 2, p.VersionCount)
	assert.Equal(t, "2007-04-02", p.SubmittedDate.String())
	assert.Equal(t, "2008-11-13", p.UpdateDate.String())
	assert.Equal(t, "2007-01-01", p.PublishedDate.String())
	assert.Nil(t, p.SubmissionToPublicationDays)
	assert.Equal(t, domain.PartitionKey{Year: "2007", Month: "04", Day: "02"}, p.Partition())

	fields := []string{}
	for _, c := range res.Conflicts {
		assert.Equal(t, domain.FormatCurated, c.Winner)
		fields = append(fields, c.Field)
	}
	assert.ElementsMatch(t, []string{fieldTitle, fieldCategories}, fields)
}

func TestReconcile_Commutative(t *testing.T) {
	e := newTestEngine()
	ab := reconcile(t, e, nil, curatedFull, historyFull)
	ba := reconcile(t, e, nil, historyFull, curatedFull)
	assert.Equal(t, mustJSON(t, ab.Papers), mustJSON(t, ba.Papers))
}

func TestReconcile_IdempotentAgainstOwnState(t *testing.T) {
	e := newTestEngine()
	first := reconcile(t, e, nil, curatedFull, historyFull)
	prior := map[string]domain.PriorState{}
	for _, st := range first.States {
		st.Revision = 1
		prior[st.PaperID] = st
	}
	second := reconcile(t, e, prior, curatedFull, historyFull)
	assert.Equal(t, mustJSON(t, first.Papers), mustJSON(t, second.Papers))
	assert.Equal(t, int64(1), second.States[0].Revision)
}

func TestReconcile_PriorStateSuppliesMissingHalf(t *testing.T) {
	e := newTestEngine()
	both := reconcile(t, e, nil, curatedFull, historyFull).Papers[0]

	chunkA := reconcile(t, e, nil, historyFull)
	prior := map[string]domain.PriorState{"0704.0001": chunkA.States[0]}
	chunkB := reconcile(t, e, prior, curatedFull)
	assert.Equal(t, mustJSON(t, both), mustJSON(t, chunkB.Papers[0]))

	chunkA = reconcile(t, e, nil, curatedFull)
	prior = map[string]domain.PriorState{"0704.0001": chunkA.States[0]}
	chunkB = reconcile(t, e, prior, historyFull)
	assert.Equal(t, mustJSON(t, both), mustJSON(t, chunkB.Papers[0]))
}

func TestReconcile_DuplicateCuratedLatestWins(t *testing.T) {
	old := `{"id":"d","format_kind":"CURATED","title":"Old","update_date":"2020-01-01"}`
	fresh := `{"id":"d","format_kind":"CURATED","title":"New","update_date":"2021-01-01"}`
	e := newTestEngine()
	assert.Equal(t, "New", reconcile(t, e, nil, old, fresh).Papers[0].Title)
	assert.Equal(t, "New", reconcile(t, e, nil, fresh, old).Papers[0].Title)
}

func TestReconcile_RejectsAndOrders(t *testing.T) {
	e := newTestEngine()
	res := reconcile(t, e, nil, `{"id":"b"}`, `garbage`, `{"title":"no id"}`, `{"id":"a"}`, `{"id":"b"}`)

	assert.Equal(t, 3, res.Records)
	assert.Equal(t, 2, res.Rejected)
	require.Len(t, res.Papers, 2)
	assert.Equal(t, "a", res.Papers[0].PaperID)
	assert.Equal(t, "b", res.Papers[1].PaperID)
	assert.Equal(t, 2, e.Score(res).RejectedRecords)
}

func TestReconcile_VersionCountMonotonicAcrossRuns(t *testing.T) {
	e := newTestEngine()
	first := reconcile(t, e, nil, `{"id":"v","versions":[{"version":"v1","created":"2021-01-01"},{"version":"v2","created":"2021-02-01"}]}`)
	prior := map[string]domain.PriorState{"v": first.States[0]}
	second := reconcile(t, e, prior, `{"id":"v","versions":[{"version":"v3","created":"2021-03-01"}]}`)
	assert.Equal(t, 3, second.Papers[0].VersionCount)
	assert.Equal(t, "2021-01-01", second.Papers[0].SubmittedDate.String())
}

func TestResult_Replace(t *testing.T) {
	e := newTestEngine()
	res := reconcile(t, e, nil, `{"id":"a"}`, `{"id":"b","title":"B"}`)
	m := e.Merge("b", []domain.Fragment{{PaperID: "b", Source: domain.FormatCurated, Title: "B2"}}, nil)
	require.NoError(t, res.Replace(m))
	assert.Equal(t, "B2", res.Papers[1].Title)

	assert.Error(t, res.Replace(e.Merge("zzz", nil, nil)))
}

func TestScore_UsesClock(t *testing.T) {
	e := newTestEngine()
	res := reconcile(t, e, nil, `{"id":"f","submitted_date":"2030-01-01"}`)
	assert.Equal(t, 1, e.Score(res).FutureSubmitted)
	assert.IsType(t, quality.Report{}, e.Score(res))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
