package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RawRecord is one decoded input record. Field values are kept as raw JSON so
// that every field can be parsed independently with its own fallback.
type RawRecord struct {
	PaperID       string
	FormatKind    FormatKind
	Title         json.RawMessage
	Abstract      json.RawMessage
	Categories    json.RawMessage
	Authors       AuthorsRaw
	Submitter     json.RawMessage
	JournalRef    json.RawMessage
	DOI           json.RawMessage
	Versions      json.RawMessage
	SubmittedDate json.RawMessage
	UpdateDate    json.RawMessage
	Datestamp     json.RawMessage
}

// AuthorsRaw holds the nested author structures seen across input shapes.
type AuthorsRaw struct {
	Parsed    json.RawMessage // [[keyname, forenames, suffix, affiliation...], ...]
	Keynames  json.RawMessage // parallel arrays from the OAI arXiv format
	Forenames json.RawMessage
	Text      json.RawMessage // "A. Smith, B. Jones and C. Doe"
}

// Version is one entry of a paper's revision timeline.
type Version struct {
	Label     string     `json:"version"`
	Timestamp *time.Time `json:"created,omitempty"`
	Synthetic bool       `json:"synthetic,omitempty"`
}

// Author is a parsed author with a best-effort institution hint.
type Author struct {
	Name            string `json:"name"`
	AffiliationHint string `json:"affiliation_hint"`
}

// Fragment is the normalized, partially filled view of a paper contributed by
// a single raw record.
type Fragment struct {
	PaperID       string     `json:"paper_id"`
	Source        FormatKind `json:"source"`
	Title         string     `json:"title,omitempty"`
	Abstract      string     `json:"abstract,omitempty"`
	Categories    []string   `json:"categories,omitempty"`
	Authors       []Author   `json:"authors,omitempty"`
	JournalRef    string     `json:"journal_ref,omitempty"`
	DOI           string     `json:"doi,omitempty"`
	SubmittedDate *Date      `json:"submitted_date,omitempty"`
	UpdateDate    *Date      `json:"update_date,omitempty"`
	Versions      []Version  `json:"versions,omitempty"`
}

// CanonicalPaper is the reconciled unit of output, keyed by PaperID.
type CanonicalPaper struct {
	PaperID                     string    `json:"paper_id"`
	Title                       string    `json:"title"`
	Abstract                    string    `json:"abstract"`
	PrimaryCategory             string    `json:"primary_category"`
	Categories                  []string  `json:"categories"`
	Authors                     []Author  `json:"authors_parsed"`
	Institutions                []string  `json:"institutions"`
	DOI                         string    `json:"doi"`
	JournalRef                  string    `json:"journal_ref"`
	SubmittedDate               *Date     `json:"submitted_date"`
	PublishedDate               *Date     `json:"published_date"`
	UpdateDate                  *Date     `json:"update_date"`
	Versions                    []Version `json:"versions"`
	VersionCount                int       `json:"version_count"`
	UpdateFrequency             int       `json:"update_frequency"`
	SubmissionToPublicationDays *int      `json:"submission_to_publication_days"`
	IsPublished                 bool      `json:"is_published"`
	PartitionYear               string    `json:"partition_year"`
	PartitionMonth              string    `json:"partition_month"`
	PartitionDay                string    `json:"partition_day"`
}

// Partition returns the output placement key of the paper.
func (p *CanonicalPaper) Partition() PartitionKey {
	return PartitionKey{Year: p.PartitionYear, Month: p.PartitionMonth, Day: p.PartitionDay}
}

// PartitionKey is the year/month/day placement of output records.
type PartitionKey struct {
	Year  string `json:"year"`
	Month string `json:"month"`
	Day   string `json:"day"`
}

// UnknownPartition holds papers without any usable date.
var UnknownPartition = PartitionKey{Year: "unknown", Month: "00", Day: "00"}

// PartitionFor derives the key from a date; nil maps to UnknownPartition.
func PartitionFor(d *Date) PartitionKey {
	if d == nil || d.IsZero() {
		return UnknownPartition
	}
	return PartitionKey{
		Year:  fmt.Sprintf("%04d", d.Year()),
		Month: fmt.Sprintf("%02d", int(d.Month())),
		Day:   fmt.Sprintf("%02d", d.Day()),
	}
}

// String renders the key as a hive-style path segment.
func (k PartitionKey) String() string {
	return fmt.Sprintf("year=%s/month=%s/day=%s", k.Year, k.Month, k.Day)
}

// Less orders partition keys lexically by year, month, day.
func (k PartitionKey) Less(o PartitionKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	if k.Month != o.Month {
		return k.Month < o.Month
	}
	return k.Day < o.Day
}

// PriorState is the persisted cumulative result of earlier runs for a paper.
type PriorState struct {
	PaperID  string          `json:"paper_id"`
	Revision int64           `json:"revision"`
	Versions []Version       `json:"versions"`
	Curated  *Fragment       `json:"curated,omitempty"`
	History  *Fragment       `json:"history,omitempty"`
	Paper    *CanonicalPaper `json:"paper,omitempty"`
}

// FieldFailure records a recoverable field-level parse failure.
type FieldFailure struct {
	PaperID string `json:"paper_id"`
	Field   string `json:"field"`
	Reason  string `json:"reason"`
}

// MergeConflict records two formats disagreeing on a descriptive field.
type MergeConflict struct {
	PaperID string     `json:"paper_id"`
	Field   string     `json:"field"`
	Winner  FormatKind `json:"winner"`
}

// Position addresses a record in the input stream: the part (object) index
// within the source and the byte offset of the record within that part.
type Position struct {
	Part   int   `json:"part"`
	Offset int64 `json:"offset"`
}

// Less orders positions by part, then offset.
func (p Position) Less(o Position) bool {
	if p.Part != o.Part {
		return p.Part < o.Part
	}
	return p.Offset < o.Offset
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Part, p.Offset)
}

// Span is the raw bytes of one input record plus its location.
type Span struct {
	Position   Position
	Next       Position // position immediately after this span
	Data       []byte
	FormatHint FormatKind
}
