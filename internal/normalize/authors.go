package normalize

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"paperflow/internal/domain"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@([A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)+)`)

	// authorSeparators splits a free-text author list.
	authorSeparators = regexp.MustCompile(`\s*,\s*|\s+and\s+|\s*;\s*`)

	errAuthorShape = errors.New("unrecognized author structure")
)

// genericSecondLevel are labels that, under a two-letter country TLD, are not
// an institution by themselves (ox.ac.uk, u-tokyo.ac.jp).
var genericSecondLevel = map[string]bool{
	"ac": true, "co": true, "edu": true, "gov": true, "org": true, "net": true, "com": true,
}

// parsedAuthor is an author before institution hints are attached.
type parsedAuthor struct {
	domain.Author
	keyname string
}

// parseAuthors tries the nested structures in order: authors_parsed, then
// the keyname/forenames arrays, then the free-text list.
func parseAuthors(raw domain.AuthorsRaw) ([]parsedAuthor, error) {
	if raw.Parsed != nil {
		return parseAuthorsParsed(raw.Parsed)
	}
	if raw.Keynames != nil {
		return parseKeynames(raw.Keynames, raw.Forenames)
	}
	if raw.Text != nil {
		return parseAuthorText(raw.Text)
	}
	return nil, nil
}

// parseAuthorsParsed reads [[keyname, forenames, suffix, affiliation...], ...].
// A flat array of names is accepted too.
func parseAuthorsParsed(raw json.RawMessage) ([]parsedAuthor, error) {
	var nested [][]string
	if err := json.Unmarshal(raw, &nested); err != nil {
		var flat []string
		if ferr := json.Unmarshal(raw, &flat); ferr != nil {
			return nil, errAuthorShape
		}
		return splitNames(flat), nil
	}

	out := make([]parsedAuthor, 0, len(nested))
	for _, entry := range nested {
		if len(entry) == 0 {
			continue
		}
		keyname := cleanText(entry[0])
		parts := []string{}
		if len(entry) > 1 {
			parts = append(parts, cleanText(entry[1]))
		}
		parts = append(parts, keyname)
		if len(entry) > 2 {
			parts = append(parts, cleanText(entry[2]))
		}
		name := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		if name == "" {
			continue
		}
		a := parsedAuthor{Author: domain.Author{Name: name}, keyname: keyname}
		for _, extra := range entry[min(3, len(entry)):] {
			if hint := institutionFromText(extra); hint != "" {
				a.AffiliationHint = hint
				break
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func parseKeynames(keynamesRaw, forenamesRaw json.RawMessage) ([]parsedAuthor, error) {
	keynames, err := stringList(keynamesRaw)
	if err != nil {
		return nil, errAuthorShape
	}
	var forenames []string
	if forenamesRaw != nil {
		if forenames, err = stringList(forenamesRaw); err != nil {
			return nil, errAuthorShape
		}
	}

	out := make([]parsedAuthor, 0, len(keynames))
	for i, k := range keynames {
		k = cleanText(k)
		if k == "" {
			continue
		}
		name := k
		if i < len(forenames) && cleanText(forenames[i]) != "" {
			name = cleanText(forenames[i]) + " " + k
		}
		out = append(out, parsedAuthor{Author: domain.Author{Name: name}, keyname: k})
	}
	return out, nil
}

func parseAuthorText(raw json.RawMessage) ([]parsedAuthor, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var list []string
		if lerr := json.Unmarshal(raw, &list); lerr != nil {
			return nil, errAuthorShape
		}
		return splitNames(list), nil
	}
	return splitNames(authorSeparators.Split(cleanText(s), -1)), nil
}

func splitNames(names []string) []parsedAuthor {
	out := make([]parsedAuthor, 0, len(names))
	for _, n := range names {
		n = cleanText(n)
		if n == "" {
			continue
		}
		fields := strings.Fields(n)
		out = append(out, parsedAuthor{Author: domain.Author{Name: n}, keyname: fields[len(fields)-1]})
	}
	return out
}

// stringList accepts a JSON array of strings or a single string.
func stringList(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []string{one}, nil
}

// submitterHint attaches the submitter's email domain to the author whose
// keyname appears in the submitter's name. Authors that already carry a hint
// are left alone.
func submitterHint(authors []parsedAuthor, submitter string) {
	hint := institutionFromText(submitter)
	if hint == "" {
		return
	}
	name := strings.ToLower(submitter)
	if i := strings.Index(name, "<"); i >= 0 {
		name = name[:i]
	}
	for i := range authors {
		a := &authors[i]
		if a.AffiliationHint != "" || a.keyname == "" {
			continue
		}
		if strings.Contains(name, strings.ToLower(a.keyname)) {
			a.AffiliationHint = hint
			return
		}
	}
}

// institutionFromText extracts an institution hint from the first email
// address found in s.
func institutionFromText(s string) string {
	m := emailPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return institutionFromDomain(m[1])
}

// institutionFromDomain reduces a mail domain to its registrable part:
// cs.stanford.edu -> stanford.edu, phys.ox.ac.uk -> ox.ac.uk.
func institutionFromDomain(d string) string {
	labels := strings.Split(strings.Trim(strings.ToLower(d), "."), ".")
	if len(labels) < 2 {
		return ""
	}
	keep := 2
	n := len(labels)
	if len(labels[n-1]) == 2 && genericSecondLevel[labels[n-2]] && n >= 3 {
		keep = 3
	}
	return strings.Join(labels[n-keep:], ".")
}
