// Package metric derives temporal metrics for reconciled papers.
package metric

import (
	"paperflow/internal/domain"
	"paperflow/internal/history"
)

// Metrics are the values derived from a paper's timeline and dates.
type Metrics struct {
	VersionCount    int
	UpdateFrequency int
	// SubmissionToPublicationDays is nil unless both dates are known and
	// publication is not before submission. Nil and zero are distinct.
	SubmissionToPublicationDays *int
	// NegativeDelta is set when publication precedes submission.
	NegativeDelta bool
}

// Compute derives the metrics for a timeline and the two optional dates.
func Compute(timeline []domain.Version, submitted, published *domain.Date) Metrics {
	m := Metrics{VersionCount: history.Count(timeline)}
	m.UpdateFrequency = max(0, m.VersionCount-1)

	if submitted == nil || published == nil || submitted.IsZero() || published.IsZero() {
		return m
	}
	days := submitted.DaysUntil(*published)
	if days < 0 {
		m.NegativeDelta = true
		return m
	}
	m.SubmissionToPublicationDays = &days
	return m
}

// Apply computes the metrics of p from its own fields and stores them on p.
func Apply(p *domain.CanonicalPaper) Metrics {
	m := Compute(p.Versions, p.SubmittedDate, p.PublishedDate)
	p.VersionCount = m.VersionCount
	p.UpdateFrequency = m.UpdateFrequency
	p.SubmissionToPublicationDays = m.SubmissionToPublicationDays
	p.IsPublished = p.JournalRef != ""
	return m
}
