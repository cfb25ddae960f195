// Package reconcile merges the curated and raw-history records of each paper
// in a chunk into CanonicalPaper values.
package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"paperflow/internal/domain"
	"paperflow/internal/history"
	"paperflow/internal/logging"
	"paperflow/internal/metric"
	"paperflow/internal/normalize"
	"paperflow/internal/quality"
)

// Descriptive field names used in merge conflict reports.
const (
	fieldTitle      = "title"
	fieldAbstract   = "abstract"
	fieldCategories = "categories"
	fieldAuthors    = "authors"
	fieldJournalRef = "journal_ref"
	fieldDOI        = "doi"
)

// Engine reconciles chunks. It holds no per-chunk state and is safe for
// concurrent use.
type Engine struct {
	logger *zap.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for the future-date quality check.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{logger: logger.Named("reconcile"), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Batch is a decoded, normalized chunk grouped by paper id.
type Batch struct {
	groups   map[string][]domain.Fragment
	ids      []string
	failures []domain.FieldFailure
	records  int
	rejected int
}

// IDs returns the distinct paper ids of the batch in ascending order.
func (b *Batch) IDs() []string { return b.ids }

// Fragments returns the normalized fragments for id.
func (b *Batch) Fragments(id string) []domain.Fragment { return b.groups[id] }

// Records is the number of spans that decoded into a record.
func (b *Batch) Records() int { return b.records }

// Rejected is the number of spans that could not be decoded.
func (b *Batch) Rejected() int { return b.rejected }

// Prepare decodes and normalizes spans and groups them by paper id.
// Undecodable spans are counted and skipped.
func (e *Engine) Prepare(spans []domain.Span) *Batch {
	b := &Batch{groups: make(map[string][]domain.Fragment)}
	for _, span := range spans {
		rec, err := normalize.Decode(span)
		if err != nil {
			b.rejected++
			e.logger.Debug("rejected record", zap.String("position", span.Position.String()), zap.Error(err))
			continue
		}
		b.records++
		res := normalize.Normalize(rec)
		for _, f := range res.Failures {
			e.logger.Debug("field parse failure",
				zap.String(logging.FieldPaperID, f.PaperID),
				zap.String("field", f.Field),
				zap.String("reason", f.Reason),
			)
		}
		b.failures = append(b.failures, res.Failures...)
		if _, seen := b.groups[rec.PaperID]; !seen {
			b.ids = append(b.ids, rec.PaperID)
		}
		b.groups[rec.PaperID] = append(b.groups[rec.PaperID], res.Fragment)
	}
	sort.Strings(b.ids)
	return b
}

// Merged is the reconciliation of one paper.
type Merged struct {
	Paper     *domain.CanonicalPaper
	State     domain.PriorState
	Conflicts []domain.MergeConflict
}

// Result is the reconciliation of a whole batch.
type Result struct {
	Papers    []*domain.CanonicalPaper
	States    []domain.PriorState
	Conflicts []domain.MergeConflict
	Failures  []domain.FieldFailure
	Records   int
	Rejected  int
}

// Reconcile merges every group of b against its prior state. Papers and
// States are in paper id order.
func (e *Engine) Reconcile(b *Batch, prior map[string]domain.PriorState) *Result {
	res := &Result{
		Papers:   make([]*domain.CanonicalPaper, 0, len(b.ids)),
		States:   make([]domain.PriorState, 0, len(b.ids)),
		Failures: b.failures,
		Records:  b.records,
		Rejected: b.rejected,
	}
	for _, id := range b.ids {
		var p *domain.PriorState
		if st, ok := prior[id]; ok {
			p = &st
		}
		m := e.Merge(id, b.groups[id], p)
		res.Papers = append(res.Papers, m.Paper)
		res.States = append(res.States, m.State)
		res.Conflicts = append(res.Conflicts, m.Conflicts...)
	}
	return res
}

// Score builds the quality report for res.
func (e *Engine) Score(res *Result) quality.Report {
	return quality.Score(res.Papers, quality.Diagnostics{
		Failures:  res.Failures,
		Conflicts: res.Conflicts,
		Rejected:  res.Rejected,
	}, domain.DateOf(e.now()))
}

// Replace swaps in a re-merged paper and state for the same id.
func (r *Result) Replace(m Merged) error {
	i := sort.Search(len(r.Papers), func(i int) bool { return r.Papers[i].PaperID >= m.Paper.PaperID })
	if i == len(r.Papers) || r.Papers[i].PaperID != m.Paper.PaperID {
		return fmt.Errorf("paper %s not in result", m.Paper.PaperID)
	}
	r.Papers[i] = m.Paper
	r.States[i] = m.State
	return nil
}

// Merge reconciles the fragments of one paper with its prior state. The
// result depends only on the set of fragments, not their order.
func (e *Engine) Merge(id string, frags []domain.Fragment, prior *domain.PriorState) Merged {
	var curatedAll, historyAll []domain.Fragment
	for _, f := range frags {
		if f.Source == domain.FormatRawHistory {
			historyAll = append(historyAll, f)
		} else {
			curatedAll = append(curatedAll, f)
		}
	}
	curated := latest(curatedAll)
	hist := latest(historyAll)

	var priorVersions []domain.Version
	if prior != nil {
		priorVersions = prior.Versions
		if curated == nil {
			curated = prior.Curated
		}
		if hist == nil {
			hist = prior.History
		}
	}

	var conflicts []domain.MergeConflict
	conflict := func(field string) {
		conflicts = append(conflicts, domain.MergeConflict{PaperID: id, Field: field, Winner: domain.FormatCurated})
		e.logger.Debug("merge conflict",
			zap.String(logging.FieldPaperID, id),
			zap.String("field", field),
			zap.String("winner", string(domain.FormatCurated)),
		)
	}

	var c, h domain.Fragment
	if curated != nil {
		c = *curated
	}
	if hist != nil {
		h = *hist
	}

	p := &domain.CanonicalPaper{
		PaperID:    id,
		Title:      pickString(fieldTitle, c.Title, h.Title, conflict),
		Abstract:   pickString(fieldAbstract, c.Abstract, h.Abstract, conflict),
		JournalRef: pickString(fieldJournalRef, c.JournalRef, h.JournalRef, conflict),
		DOI:        pickString(fieldDOI, c.DOI, h.DOI, conflict),
	}

	cats := pickCategories(c.Categories, h.Categories, conflict)
	p.Categories = orderCategories(cats)
	if len(cats) > 0 {
		p.PrimaryCategory = cats[0]
	}

	p.Authors = pickAuthors(c.Authors, h.Authors, conflict)
	p.Institutions = institutions(p.Authors)

	fallbackSubmitted := firstDate(c.SubmittedDate, h.SubmittedDate)
	p.Versions = history.Build(history.Input{
		Prior:     priorVersions,
		Fragments: frags,
		Submitted: fallbackSubmitted,
	})

	p.SubmittedDate = fallbackSubmitted
	if t := history.Earliest(p.Versions); t != nil {
		d := domain.DateOf(*t)
		p.SubmittedDate = &d
	}
	p.UpdateDate = latestDate(c.UpdateDate, h.UpdateDate)
	if t := history.Latest(p.Versions); t != nil {
		d := domain.DateOf(*t)
		p.UpdateDate = latestDate(p.UpdateDate, &d)
	}
	if p.JournalRef != "" {
		if d, ok := normalize.ParseJournalDate(p.JournalRef); ok {
			p.PublishedDate = d
		}
	}

	metric.Apply(p)

	key := domain.PartitionFor(firstDate(p.SubmittedDate, p.UpdateDate))
	p.PartitionYear, p.PartitionMonth, p.PartitionDay = key.Year, key.Month, key.Day

	state := domain.PriorState{
		PaperID:  id,
		Versions: p.Versions,
		Curated:  stripVersions(curated),
		History:  stripVersions(hist),
		Paper:    p,
	}
	if prior != nil {
		state.Revision = prior.Revision
	}
	return Merged{Paper: p, State: state, Conflicts: conflicts}
}

// latest picks the fragment with the latest update date. Ties are broken by
// the larger JSON encoding so the choice does not depend on input order.
func latest(frags []domain.Fragment) *domain.Fragment {
	var best *domain.Fragment
	var bestKey []byte
	for i := range frags {
		f := &frags[i]
		key, _ := json.Marshal(f)
		if best == nil {
			best, bestKey = f, key
			continue
		}
		switch compareDates(f.UpdateDate, best.UpdateDate) {
		case 1:
			best, bestKey = f, key
		case 0:
			if bytes.Compare(key, bestKey) > 0 {
				best, bestKey = f, key
			}
		}
	}
	return best
}

func compareDates(a, b *domain.Date) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.After(*b):
		return 1
	case a.Before(*b):
		return -1
	default:
		return 0
	}
}

func pickString(field, curated, raw string, conflict func(string)) string {
	if curated == "" {
		return raw
	}
	if raw != "" && !strings.EqualFold(curated, raw) {
		conflict(field)
	}
	return curated
}

func pickCategories(curated, raw []string, conflict func(string)) []string {
	if len(curated) == 0 {
		return raw
	}
	if len(raw) > 0 && !sameSet(curated, raw) {
		conflict(fieldCategories)
	}
	return curated
}

// pickAuthors prefers the curated list and fills affiliation hints that only
// the raw record carries, matching authors by surname.
func pickAuthors(curated, raw []domain.Author, conflict func(string)) []domain.Author {
	if len(curated) == 0 {
		return append([]domain.Author{}, raw...)
	}
	if len(raw) > 0 && len(raw) != len(curated) {
		conflict(fieldAuthors)
	}
	hints := make(map[string]string, len(raw))
	for _, a := range raw {
		if a.AffiliationHint != "" {
			hints[surname(a.Name)] = a.AffiliationHint
		}
	}
	out := make([]domain.Author, len(curated))
	for i, a := range curated {
		if a.AffiliationHint == "" {
			a.AffiliationHint = hints[surname(a.Name)]
		}
		out[i] = a
	}
	return out
}

func surname(name string) string {
	f := strings.Fields(strings.ToLower(name))
	if len(f) == 0 {
		return ""
	}
	return f[len(f)-1]
}

// orderCategories keeps the primary category first and sorts the rest.
func orderCategories(cats []string) []string {
	if len(cats) == 0 {
		return []string{}
	}
	rest := make([]string, 0, len(cats)-1)
	seen := map[string]bool{cats[0]: true}
	for _, c := range cats[1:] {
		if !seen[c] {
			seen[c] = true
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)
	return append([]string{cats[0]}, rest...)
}

func institutions(authors []domain.Author) []string {
	set := make(map[string]bool)
	for _, a := range authors {
		if a.AffiliationHint != "" {
			set[a.AffiliationHint] = true
		}
	}
	out := make([]string, 0, len(set))
	for inst := range set {
		out = append(out, inst)
	}
	sort.Strings(out)
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}

func firstDate(ds ...*domain.Date) *domain.Date {
	for _, d := range ds {
		if d != nil && !d.IsZero() {
			return d
		}
	}
	return nil
}

func latestDate(a, b *domain.Date) *domain.Date {
	if compareDates(a, b) >= 0 {
		return a
	}
	return b
}

func stripVersions(f *domain.Fragment) *domain.Fragment {
	if f == nil {
		return nil
	}
	out := *f
	out.Versions = nil
	return &out
}
