package source

import (
	"context"
	"fmt"
	"path"
	"strings"

	"paperflow/internal/domain"
	"paperflow/internal/port"
)

// Daily directory names written by the collector, in read order.
var dailyFormats = []struct {
	dir  string
	kind domain.FormatKind
}{
	{"arXiv", domain.FormatCurated},
	{"arXivRaw", domain.FormatRawHistory},
}

// History resolves the single JSON-lines object of a historical load. A
// missing object is an input error.
func History(ctx context.Context, store port.ObjectStorage, bucket, key string) (port.RecordSource, error) {
	objs, err := store.List(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", domain.ErrInputUnreadable, key, err)
	}
	for _, o := range objs {
		if o.Key == key {
			return New(store, []Part{{Bucket: bucket, Key: key, Size: o.Size, Hint: HintForKey(key)}}), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrInputNotFound, key)
}

// Daily lists every collector object for the dates in [from, to): for each
// date the curated objects first, then the raw-history objects, each in key
// order. An empty range yields a source with no parts.
func Daily(ctx context.Context, store port.ObjectStorage, bucket, prefix string, from, to domain.Date) (port.RecordSource, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: daily range %s..%s is empty", domain.ErrInvalidConfig, from, to)
	}
	var parts []Part
	for day := from; day.Before(to); day = domain.DateOf(day.Time().AddDate(0, 0, 1)) {
		for _, f := range dailyFormats {
			dir := path.Join(prefix, f.dir, day.String()) + "/"
			objs, err := store.List(ctx, bucket, dir)
			if err != nil {
				return nil, fmt.Errorf("%w: listing %s: %v", domain.ErrInputUnreadable, dir, err)
			}
			for _, o := range objs {
				if !strings.HasSuffix(o.Key, ".json") {
					continue
				}
				parts = append(parts, Part{Bucket: bucket, Key: o.Key, Size: o.Size, Hint: f.kind})
			}
		}
	}
	return New(store, parts), nil
}
