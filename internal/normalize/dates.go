package normalize

import (
	"regexp"
	"strings"
	"time"

	"paperflow/internal/domain"
)

// timeLayouts are tried in order; the first that parses wins.
var timeLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC1123,
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// embeddedISODate finds a YYYY-MM-DD date inside a longer string.
var embeddedISODate = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// ParseTimestamp parses s using the known layouts, returning the instant in
// UTC. The second return value is false when nothing matched.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if m := embeddedISODate.FindString(s); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseDate parses s to a UTC calendar day.
func ParseDate(s string) (*domain.Date, bool) {
	t, ok := ParseTimestamp(s)
	if !ok {
		return nil, false
	}
	d := domain.DateOf(t)
	return &d, true
}
