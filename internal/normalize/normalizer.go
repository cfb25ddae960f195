// Package normalize turns raw input records of either shape into normalized
// paper fragments. Every field is parsed independently; a field that cannot
// be parsed is left empty and reported as a FieldFailure.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"paperflow/internal/domain"
)

// Field names used in FieldFailure reports.
const (
	FieldTitle         = "title"
	FieldAbstract      = "abstract"
	FieldCategories    = "categories"
	FieldAuthors       = "authors"
	FieldSubmitter     = "submitter"
	FieldJournalRef    = "journal_ref"
	FieldDOI           = "doi"
	FieldVersions      = "versions"
	FieldSubmittedDate = "submitted_date"
	FieldUpdateDate    = "update_date"
)

// Result is the outcome of normalizing one record.
type Result struct {
	Fragment domain.Fragment
	Failures []domain.FieldFailure
}

// Normalize converts rec into a Fragment. It never fails as a whole.
func Normalize(rec *domain.RawRecord) Result {
	n := &normalizer{id: rec.PaperID}
	frag := domain.Fragment{
		PaperID:    rec.PaperID,
		Source:     rec.FormatKind,
		Title:      n.text(FieldTitle, rec.Title),
		Abstract:   n.text(FieldAbstract, rec.Abstract),
		Categories: n.categories(rec.Categories),
		JournalRef: n.text(FieldJournalRef, rec.JournalRef),
		DOI:        n.text(FieldDOI, rec.DOI),
		Versions:   n.versions(rec.Versions),
	}
	frag.Authors = n.authors(rec.Authors, n.text(FieldSubmitter, rec.Submitter))
	frag.SubmittedDate = n.date(FieldSubmittedDate, rec.SubmittedDate)
	frag.UpdateDate = n.date(FieldUpdateDate, rec.UpdateDate)
	if frag.UpdateDate == nil {
		frag.UpdateDate = n.date(FieldUpdateDate, rec.Datestamp)
	}
	return Result{Fragment: frag, Failures: n.failures}
}

type normalizer struct {
	id       string
	failures []domain.FieldFailure
}

func (n *normalizer) fail(field, format string, args ...any) {
	n.failures = append(n.failures, domain.FieldFailure{
		PaperID: n.id,
		Field:   field,
		Reason:  fmt.Sprintf(format, args...),
	})
}

// text decodes a JSON string and collapses its whitespace.
func (n *normalizer) text(field string, raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		n.fail(field, "expected string")
		return ""
	}
	return cleanText(s)
}

// categories accepts a space-separated string or an array of strings and
// keeps first-seen order without duplicates.
func (n *normalizer) categories(raw json.RawMessage) []string {
	if raw == nil {
		return nil
	}
	var tokens []string
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		tokens = strings.Fields(s)
	} else {
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			n.fail(FieldCategories, "expected string or array of strings")
			return nil
		}
		for _, item := range list {
			tokens = append(tokens, strings.Fields(item)...)
		}
	}
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func (n *normalizer) authors(raw domain.AuthorsRaw, submitter string) []domain.Author {
	parsed, err := parseAuthors(raw)
	if err != nil {
		n.fail(FieldAuthors, "%v", err)
		return nil
	}
	submitterHint(parsed, submitter)
	out := make([]domain.Author, 0, len(parsed))
	for _, a := range parsed {
		out = append(out, a.Author)
	}
	return out
}

func (n *normalizer) date(field string, raw json.RawMessage) *domain.Date {
	if raw == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		n.fail(field, "expected date string")
		return nil
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	d, ok := ParseDate(s)
	if !ok {
		n.fail(field, "unparseable date %q", s)
		return nil
	}
	return d
}

type rawVersion struct {
	Version json.RawMessage `json:"version"`
	Label   json.RawMessage `json:"label"`
	Created json.RawMessage `json:"created"`
	Date    json.RawMessage `json:"date"`
}

// versions parses [{version, created}, ...]. An entry with an unparseable
// timestamp is kept without one; an entry without a label takes its 1-based
// position.
func (n *normalizer) versions(raw json.RawMessage) []domain.Version {
	if raw == nil {
		return nil
	}
	var entries []rawVersion
	if err := json.Unmarshal(raw, &entries); err != nil {
		n.fail(FieldVersions, "expected array of version objects")
		return nil
	}
	out := make([]domain.Version, 0, len(entries))
	for i, e := range entries {
		label := firstString(e.Version, e.Label)
		if label == "" {
			label = fmt.Sprintf("v%d", i+1)
		}
		v := domain.Version{Label: label}
		if ts := firstString(e.Created, e.Date); ts != "" {
			if t, ok := ParseTimestamp(ts); ok {
				v.Timestamp = &t
			} else {
				n.fail(FieldVersions, "unparseable timestamp %q for %s", ts, label)
			}
		}
		out = append(out, v)
	}
	return out
}

func firstString(raws ...json.RawMessage) string {
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
