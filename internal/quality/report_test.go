package quality_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"paperflow/internal/config"
	"paperflow/internal/domain"
	"paperflow/internal/quality"
)

var asOf = domain.NewDate(2024, time.January, 1)

func d(y int, m time.Month, day int) *domain.Date {
	v := domain.NewDate(y, m, day)
	return &v
}

func complete(id string) *domain.CanonicalPaper {
	return &domain.CanonicalPaper{
		PaperID:       id,
		Title:         "Title",
		Abstract:      "Abstract",
		Categories:    []string{"cs.AI"},
		Authors:       []domain.Author{{Name: "A. Author", AffiliationHint: "mit.edu"}},
		Institutions:  []string{"mit.edu"},
		SubmittedDate: d(2021, 1, 1),
	}
}

func TestScore_MissingFields(t *testing.T) {
	missing := complete("b")
	missing.Abstract = ""
	missing.Categories = nil

	r := quality.Score([]*domain.CanonicalPaper{complete("a"), missing}, quality.Diagnostics{}, asOf)

	assert.Equal(t, 2, r.Records)
	assert.Equal(t, quality.Missing{Abstract: 1, Categories: 1}, r.Missing)
	assert.Equal(t, 1, r.Anomalies)
	assert.Equal(t, 1, r.EmptyCategories)
	assert.InDelta(t, 50.0, r.MissingRate(quality.FieldAbstract), 1e-9)
	assert.InDelta(t, 0.0, r.MissingRate(quality.FieldTitle), 1e-9)
}

func TestScore_Anomalies(t *testing.T) {
	neg := complete("neg")
	neg.PublishedDate = d(2020, 1, 1)

	bare := complete("bare")
	bare.Authors = nil
	bare.Categories = nil

	odd := complete("odd")
	odd.SubmittedDate = d(2030, 1, 1)
	odd.Title = strings.Repeat("x", quality.MaxTitleLength+1)

	old := complete("old")
	old.SubmittedDate = d(1985, 5, 1)

	r := quality.Score([]*domain.CanonicalPaper{neg, bare, odd, old}, quality.Diagnostics{
		Failures:  []domain.FieldFailure{{Field: "title"}, {Field: "title"}, {Field: "versions"}},
		Conflicts: []domain.MergeConflict{{PaperID: "neg", Field: "title"}},
		Rejected:  2,
	}, asOf)

	assert.Equal(t, 2, r.Anomalies)
	assert.Equal(t, 1, r.NegativeDelta)
	assert.Equal(t, 1, r.EmptyAuthors)
	assert.Equal(t, 1, r.FutureSubmitted)
	assert.Equal(t, 1, r.EarlySubmitted)
	assert.Equal(t, 1, r.LongTitles)
	assert.Equal(t, 2, r.RejectedRecords)
	assert.Equal(t, 1, r.MergeConflicts)
	assert.Equal(t, 3, r.FieldFailures)
	assert.Equal(t, map[string]int{"title": 2, "versions": 1}, r.FailuresByField)
}

func TestReport_MergeIsAdditive(t *testing.T) {
	a := complete("a")
	b := complete("b")
	b.Title = ""
	c := complete("c")
	c.Authors = nil
	c.Institutions = nil
	diagA := quality.Diagnostics{Failures: []domain.FieldFailure{{Field: "doi"}}, Rejected: 1}
	diagC := quality.Diagnostics{Failures: []domain.FieldFailure{{Field: "doi"}, {Field: "authors"}}}

	left := quality.Score([]*domain.CanonicalPaper{a, b}, diagA, asOf)
	right := quality.Score([]*domain.CanonicalPaper{c}, diagC, asOf)
	union := quality.Score([]*domain.CanonicalPaper{a, b, c}, quality.Diagnostics{
		Failures: append(append([]domain.FieldFailure{}, diagA.Failures...), diagC.Failures...),
		Rejected: 1,
	}, asOf)

	assert.Equal(t, union, left.Merge(right))
	assert.Equal(t, left.Merge(right), right.Merge(left))
	assert.Equal(t, left, left.Merge(quality.Report{}))
}

func TestReport_Evaluate(t *testing.T) {
	th := quality.ThresholdsFromConfig(config.QualityConfig{
		MissingTitlesPct: 5, MissingAbstractsPct: 10, MissingCategoriesPct: 5, MissingAuthorsPct: 15,
	})

	r := quality.Report{Records: 10, Missing: quality.Missing{Abstract: 2, Authors: 1}}
	v := r.Evaluate(th)
	assert.False(t, v.Passed)
	assert.Equal(t, []quality.Breach{{Field: quality.FieldAbstract, Rate: 20, Threshold: 10}}, v.Breaches)

	assert.True(t, quality.Report{}.Evaluate(th).Passed)
}
