package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"paperflow/internal/domain"
)

// Decode turns one input span into a RawRecord. Only a span that is not a
// JSON object or has no paper id is rejected; every other field is kept raw
// and parsed later by Normalize.
func Decode(span domain.Span) (*domain.RawRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(span.Data, &fields); err != nil {
		return nil, fmt.Errorf("%w at %s: %v", domain.ErrMalformedRecord, span.Position, err)
	}

	id := identifier(pick(fields, "paper_id", "id"))
	if id == "" {
		return nil, fmt.Errorf("%w at %s", domain.ErrMissingPaperID, span.Position)
	}

	rec := &domain.RawRecord{
		PaperID:       id,
		Title:         pick(fields, "title"),
		Abstract:      pick(fields, "abstract"),
		Categories:    pick(fields, "categories"),
		Submitter:     pick(fields, "submitter"),
		JournalRef:    pick(fields, "journal_ref", "journal-ref"),
		DOI:           pick(fields, "doi"),
		Versions:      pick(fields, "versions"),
		SubmittedDate: pick(fields, "submitted_date"),
		UpdateDate:    pick(fields, "update_date", "updated"),
		Datestamp:     pick(fields, "datestamp"),
		Authors: domain.AuthorsRaw{
			Parsed:    pick(fields, "authors_parsed"),
			Keynames:  pick(fields, "keyname"),
			Forenames: pick(fields, "forenames"),
			Text:      pick(fields, "authors"),
		},
	}
	rec.FormatKind = formatKind(fields, span.FormatHint, rec.Versions)
	return rec, nil
}

// pick returns the first present, non-null value among keys.
func pick(fields map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || isNull(v) {
			continue
		}
		return v
	}
	return nil
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// identifier accepts a JSON string or a bare JSON number literal.
func identifier(v json.RawMessage) string {
	if v == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

// formatKind resolves the discriminant: explicit field, then the source's
// hint, then RAW_HISTORY iff the record carries a non-empty versions array.
func formatKind(fields map[string]json.RawMessage, hint domain.FormatKind, versions json.RawMessage) domain.FormatKind {
	if raw := pick(fields, "format_kind", "_format_type"); raw != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if k, ok := domain.ParseFormatKind(s); ok {
				return k
			}
		}
	}
	if hint.Valid() {
		return hint
	}
	var entries []json.RawMessage
	if versions != nil && json.Unmarshal(versions, &entries) == nil && len(entries) > 0 {
		return domain.FormatRawHistory
	}
	return domain.FormatCurated
}
