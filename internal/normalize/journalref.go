package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"paperflow/internal/domain"
)

var (
	journalMonthYear = regexp.MustCompile(`(?i)\(\s*([a-z]{3,9})\.?\s+(\d{4})\s*\)`)
	journalYear      = regexp.MustCompile(`\((\d{4})\)`)
	anyYear          = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
)

// ParseJournalDate extracts a publication date from a journal reference.
// It prefers an embedded ISO date, then "(Month YYYY)", then "(YYYY)", then
// the last plausible year anywhere in the text. Month-only and year-only
// matches resolve to the first day of the period.
func ParseJournalDate(ref string) (*domain.Date, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, false
	}

	if m := embeddedISODate.FindString(ref); m != "" {
		if d, err := domain.ParseDate(m); err == nil {
			return &d, true
		}
	}
	if m := journalMonthYear.FindStringSubmatch(ref); m != nil {
		if month, ok := monthByName(m[1]); ok {
			if y, ok := plausibleYear(m[2]); ok {
				d := domain.NewDate(y, month, 1)
				return &d, true
			}
		}
	}
	if m := journalYear.FindStringSubmatch(ref); m != nil {
		if y, ok := plausibleYear(m[1]); ok {
			d := domain.NewDate(y, time.January, 1)
			return &d, true
		}
	}
	if all := anyYear.FindAllString(ref, -1); len(all) > 0 {
		if y, ok := plausibleYear(all[len(all)-1]); ok {
			d := domain.NewDate(y, time.January, 1)
			return &d, true
		}
	}
	return nil, false
}

func plausibleYear(s string) (int, bool) {
	y, err := strconv.Atoi(s)
	if err != nil || y < 1900 || y > 2099 {
		return 0, false
	}
	return y, true
}

func monthByName(s string) (time.Month, bool) {
	s = strings.ToLower(s)
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if s == full || (len(s) >= 3 && strings.HasPrefix(full, s)) {
			return m, true
		}
	}
	return 0, false
}
