// Package quality computes additive completeness statistics and anomaly
// counts for batches of reconciled papers.
package quality

import (
	"sort"
	"unicode/utf8"

	"paperflow/internal/config"
	"paperflow/internal/domain"
)

// Bounds for the informational date and length checks.
const (
	MinPlausibleYear = 1990
	MaxTitleLength   = 500
)

// Field names used for missing-rate reporting.
const (
	FieldTitle        = "title"
	FieldAbstract     = "abstract"
	FieldCategories   = "categories"
	FieldAuthors      = "authors"
	FieldInstitutions = "institutions"
)

// Missing counts records lacking a field.
type Missing struct {
	Title        int `json:"title"`
	Abstract     int `json:"abstract"`
	Categories   int `json:"categories"`
	Authors      int `json:"authors"`
	Institutions int `json:"institutions"`
}

func (m Missing) add(o Missing) Missing {
	return Missing{
		Title:        m.Title + o.Title,
		Abstract:     m.Abstract + o.Abstract,
		Categories:   m.Categories + o.Categories,
		Authors:      m.Authors + o.Authors,
		Institutions: m.Institutions + o.Institutions,
	}
}

// Report holds raw counters only, so two reports combine by addition in any
// order. Rates are derived on demand.
type Report struct {
	Records int     `json:"records"`
	Missing Missing `json:"missing"`

	// Anomalies counts records with at least one of NegativeDelta,
	// EmptyCategories or EmptyAuthors.
	Anomalies       int `json:"anomalies"`
	NegativeDelta   int `json:"negative_delta"`
	EmptyCategories int `json:"empty_categories"`
	EmptyAuthors    int `json:"empty_authors"`

	FutureSubmitted int            `json:"future_submitted"`
	EarlySubmitted  int            `json:"early_submitted"`
	LongTitles      int            `json:"long_titles"`
	RejectedRecords int            `json:"rejected_records"`
	MergeConflicts  int            `json:"merge_conflicts"`
	FieldFailures   int            `json:"field_failures"`
	FailuresByField map[string]int `json:"failures_by_field,omitempty"`
}

// Diagnostics are the side products of reconciling a batch.
type Diagnostics struct {
	Failures  []domain.FieldFailure
	Conflicts []domain.MergeConflict
	Rejected  int
}

// Score builds the report for one batch. asOf is the reference day for the
// future-date check.
func Score(papers []*domain.CanonicalPaper, diag Diagnostics, asOf domain.Date) Report {
	r := Report{
		Records:         len(papers),
		RejectedRecords: diag.Rejected,
		MergeConflicts:  len(diag.Conflicts),
		FieldFailures:   len(diag.Failures),
	}
	for _, f := range diag.Failures {
		if r.FailuresByField == nil {
			r.FailuresByField = make(map[string]int)
		}
		r.FailuresByField[f.Field]++
	}

	for _, p := range papers {
		if p.Title == "" {
			r.Missing.Title++
		}
		if p.Abstract == "" {
			r.Missing.Abstract++
		}
		if len(p.Categories) == 0 {
			r.Missing.Categories++
		}
		if len(p.Authors) == 0 {
			r.Missing.Authors++
		}
		if len(p.Institutions) == 0 {
			r.Missing.Institutions++
		}

		anomalous := false
		if negativeDelta(p) {
			r.NegativeDelta++
			anomalous = true
		}
		if len(p.Categories) == 0 {
			r.EmptyCategories++
			anomalous = true
		}
		if len(p.Authors) == 0 {
			r.EmptyAuthors++
			anomalous = true
		}
		if anomalous {
			r.Anomalies++
		}

		if s := p.SubmittedDate; s != nil && !s.IsZero() {
			if !asOf.IsZero() && s.After(asOf) {
				r.FutureSubmitted++
			}
			if s.Year() < MinPlausibleYear {
				r.EarlySubmitted++
			}
		}
		if utf8.RuneCountInString(p.Title) > MaxTitleLength {
			r.LongTitles++
		}
	}
	return r
}

func negativeDelta(p *domain.CanonicalPaper) bool {
	s, pub := p.SubmittedDate, p.PublishedDate
	return s != nil && pub != nil && !s.IsZero() && !pub.IsZero() && pub.Before(*s)
}

// Merge returns the sum of r and o. It does not modify either operand.
func (r Report) Merge(o Report) Report {
	out := Report{
		Records:         r.Records + o.Records,
		Missing:         r.Missing.add(o.Missing),
		Anomalies:       r.Anomalies + o.Anomalies,
		NegativeDelta:   r.NegativeDelta + o.NegativeDelta,
		EmptyCategories: r.EmptyCategories + o.EmptyCategories,
		EmptyAuthors:    r.EmptyAuthors + o.EmptyAuthors,
		FutureSubmitted: r.FutureSubmitted + o.FutureSubmitted,
		EarlySubmitted:  r.EarlySubmitted + o.EarlySubmitted,
		LongTitles:      r.LongTitles + o.LongTitles,
		RejectedRecords: r.RejectedRecords + o.RejectedRecords,
		MergeConflicts:  r.MergeConflicts + o.MergeConflicts,
		FieldFailures:   r.FieldFailures + o.FieldFailures,
	}
	if len(r.FailuresByField)+len(o.FailuresByField) > 0 {
		out.FailuresByField = make(map[string]int, len(r.FailuresByField)+len(o.FailuresByField))
		for k, v := range r.FailuresByField {
			out.FailuresByField[k] += v
		}
		for k, v := range o.FailuresByField {
			out.FailuresByField[k] += v
		}
	}
	return out
}

// MissingRate returns the percentage of records missing field, or 0 for an
// empty report.
func (r Report) MissingRate(field string) float64 {
	if r.Records == 0 {
		return 0
	}
	var n int
	switch field {
	case FieldTitle:
		n = r.Missing.Title
	case FieldAbstract:
		n = r.Missing.Abstract
	case FieldCategories:
		n = r.Missing.Categories
	case FieldAuthors:
		n = r.Missing.Authors
	case FieldInstitutions:
		n = r.Missing.Institutions
	}
	return float64(n) * 100 / float64(r.Records)
}

// Thresholds are maximum acceptable missing rates in percent.
type Thresholds map[string]float64

// ThresholdsFromConfig maps the quality configuration to Thresholds.
func ThresholdsFromConfig(cfg config.QualityConfig) Thresholds {
	return Thresholds{
		FieldTitle:      cfg.MissingTitlesPct,
		FieldAbstract:   cfg.MissingAbstractsPct,
		FieldCategories: cfg.MissingCategoriesPct,
		FieldAuthors:    cfg.MissingAuthorsPct,
	}
}

// Breach is one field over its threshold.
type Breach struct {
	Field     string  `json:"field"`
	Rate      float64 `json:"rate"`
	Threshold float64 `json:"threshold"`
}

// Verdict is the informational outcome of a threshold check.
type Verdict struct {
	Passed   bool     `json:"passed"`
	Breaches []Breach `json:"breaches,omitempty"`
}

// Evaluate compares the report's missing rates against th.
func (r Report) Evaluate(th Thresholds) Verdict {
	fields := make([]string, 0, len(th))
	for f := range th {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	v := Verdict{Passed: true}
	for _, f := range fields {
		if rate := r.MissingRate(f); rate > th[f] {
			v.Passed = false
			v.Breaches = append(v.Breaches, Breach{Field: f, Rate: rate, Threshold: th[f]})
		}
	}
	return v
}
