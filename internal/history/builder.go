// Package history reconstructs a paper's version timeline from the revisions
// seen in the current run and the cumulative timeline of earlier runs.
package history

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"paperflow/internal/domain"
)

// InitialLabel is the label of the synthetic version used when a paper has
// no revision history.
const InitialLabel = "v1"

// Input is everything known about one paper's revisions.
type Input struct {
	// Prior is the timeline persisted by earlier runs.
	Prior []domain.Version
	// Fragments are this run's normalized records for the paper.
	Fragments []domain.Fragment
	// Submitted seeds the synthetic initial version.
	Submitted *domain.Date
}

// Build returns the ordered, deduplicated timeline. Versions from
// RAW_HISTORY fragments take precedence; CURATED versions are only used when
// no history exists at all. Labels are compared case-insensitively and a
// label already in Prior is never duplicated.
func Build(in Input) []domain.Version {
	byLabel := make(map[string]domain.Version)
	add := func(vs []domain.Version) {
		for _, v := range vs {
			v.Label = strings.ToLower(strings.TrimSpace(v.Label))
			if v.Label == "" {
				continue
			}
			if cur, ok := byLabel[v.Label]; !ok || preferred(v, cur) {
				byLabel[v.Label] = v
			}
		}
	}

	add(in.Prior)
	for _, f := range in.Fragments {
		if f.Source == domain.FormatRawHistory {
			add(f.Versions)
		}
	}
	if len(byLabel) == 0 {
		for _, f := range in.Fragments {
			add(f.Versions)
		}
	}

	hasReal := false
	for _, v := range byLabel {
		if !v.Synthetic {
			hasReal = true
			break
		}
	}
	if !hasReal {
		v := synthetic(in.Submitted)
		if prev, ok := byLabel[InitialLabel]; ok && v.Timestamp == nil {
			v.Timestamp = prev.Timestamp
		}
		return []domain.Version{v}
	}

	out := make([]domain.Version, 0, len(byLabel))
	for _, v := range byLabel {
		if !v.Synthetic {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Count returns version_count for a timeline; it is never below 1.
func Count(timeline []domain.Version) int {
	if len(timeline) < 1 {
		return 1
	}
	return len(timeline)
}

// Earliest returns the earliest real (non-synthetic) timestamp, or nil.
func Earliest(timeline []domain.Version) *time.Time {
	var first *time.Time
	for _, v := range timeline {
		if v.Synthetic || v.Timestamp == nil {
			continue
		}
		if first == nil || v.Timestamp.Before(*first) {
			t := *v.Timestamp
			first = &t
		}
	}
	return first
}

// Latest returns the latest real timestamp, or nil.
func Latest(timeline []domain.Version) *time.Time {
	var last *time.Time
	for _, v := range timeline {
		if v.Synthetic || v.Timestamp == nil {
			continue
		}
		if last == nil || v.Timestamp.After(*last) {
			t := *v.Timestamp
			last = &t
		}
	}
	return last
}

func synthetic(submitted *domain.Date) domain.Version {
	v := domain.Version{Label: InitialLabel, Synthetic: true}
	if submitted != nil && !submitted.IsZero() {
		t := submitted.Time()
		v.Timestamp = &t
	}
	return v
}

// preferred decides between two entries with the same label: a real entry
// beats a synthetic one, a timestamped entry beats one without, and the
// earlier timestamp wins.
func preferred(a, b domain.Version) bool {
	if a.Synthetic != b.Synthetic {
		return !a.Synthetic
	}
	if (a.Timestamp == nil) != (b.Timestamp == nil) {
		return a.Timestamp != nil
	}
	if a.Timestamp != nil && !a.Timestamp.Equal(*b.Timestamp) {
		return a.Timestamp.Before(*b.Timestamp)
	}
	return false
}

// less orders numeric labels (v1, v2, ..., v10) numerically and ahead of
// anything else, then by timestamp, then lexically.
func less(a, b domain.Version) bool {
	an, aok := labelNumber(a.Label)
	bn, bok := labelNumber(b.Label)
	if aok != bok {
		return aok
	}
	if aok && an != bn {
		return an < bn
	}
	if (a.Timestamp == nil) != (b.Timestamp == nil) {
		return a.Timestamp != nil
	}
	if a.Timestamp != nil && !a.Timestamp.Equal(*b.Timestamp) {
		return a.Timestamp.Before(*b.Timestamp)
	}
	return a.Label < b.Label
}

func labelNumber(label string) (int, bool) {
	s := strings.TrimPrefix(strings.ToLower(label), "v")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
