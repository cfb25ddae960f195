// Package source reads JSON-lines record streams from object storage.
package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"paperflow/internal/domain"
	"paperflow/internal/port"
)

// Part is one object of a source.
type Part struct {
	Bucket string
	Key    string
	// Size is the object size in bytes, or -1 when unknown.
	Size int64
	Hint domain.FormatKind
}

type objectSource struct {
	store port.ObjectStorage
	parts []Part
}

// New returns a source that concatenates parts in order.
func New(store port.ObjectStorage, parts []Part) port.RecordSource {
	return &objectSource{store: store, parts: parts}
}

// Parts exposes the resolved parts of a source built by this package.
func Parts(src port.RecordSource) []Part {
	if s, ok := src.(*objectSource); ok {
		return s.parts
	}
	return nil
}

// Open positions a reader at from. The part at from must be readable,
// otherwise the error wraps domain.ErrInputNotFound or
// domain.ErrInputUnreadable.
func (s *objectSource) Open(ctx context.Context, from domain.Position) (port.RecordReader, error) {
	if from.Part < 0 || from.Offset < 0 {
		return nil, fmt.Errorf("%w: negative position %s", domain.ErrInvalidConfig, from)
	}
	r := &reader{src: s, part: from.Part, offset: from.Offset}
	if err := r.openPart(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

type reader struct {
	src    *objectSource
	part   int
	offset int64
	body   io.ReadCloser
	buf    *bufio.Reader
	err    error
}

// openPart opens the current part at the current offset, skipping parts the
// offset has already consumed.
func (r *reader) openPart(ctx context.Context) error {
	for r.part < len(r.src.parts) {
		p := r.src.parts[r.part]
		if p.Size >= 0 && r.offset >= p.Size {
			r.part++
			r.offset = 0
			continue
		}
		body, err := r.src.store.OpenRange(ctx, p.Bucket, p.Key, r.offset)
		if err != nil {
			if errors.Is(err, domain.ErrInputNotFound) {
				return err
			}
			return fmt.Errorf("%w: %v", domain.ErrInputUnreadable, err)
		}
		r.body = body
		r.buf = bufio.NewReaderSize(body, 1024*1024)
		return nil
	}
	return nil
}

// advance closes the exhausted part and opens the next one. An open failure
// is kept and returned by the following Next call.
func (r *reader) advance(ctx context.Context) {
	r.body.Close()
	r.body, r.buf = nil, nil
	r.part++
	r.offset = 0
	r.err = r.openPart(ctx)
}

func (r *reader) Next(ctx context.Context) (domain.Span, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Span{}, err
		}
		if r.err != nil {
			return domain.Span{}, r.err
		}
		if r.buf == nil {
			return domain.Span{}, io.EOF
		}

		start := r.offset
		line, err := r.buf.ReadBytes('\n')
		r.offset += int64(len(line))
		if err != nil && !errors.Is(err, io.EOF) {
			r.err = fmt.Errorf("%w: part %d: %v", domain.ErrInputUnreadable, r.part, err)
			return domain.Span{}, r.err
		}

		span := domain.Span{
			Position:   domain.Position{Part: r.part, Offset: start},
			Next:       domain.Position{Part: r.part, Offset: r.offset},
			Data:       bytes.TrimSpace(line),
			FormatHint: r.src.parts[r.part].Hint,
		}
		if err != nil {
			r.advance(ctx)
			span.Next = domain.Position{Part: r.part, Offset: 0}
		}
		if len(span.Data) > 0 {
			return span, nil
		}
	}
}

func (r *reader) Close() error {
	if r.body != nil {
		err := r.body.Close()
		r.body, r.buf = nil, nil
		return err
	}
	return nil
}

// HintForKey infers the record shape from a daily object path such as
// raw/arXivRaw/2024-01-02/0001.json.
func HintForKey(key string) domain.FormatKind {
	for _, seg := range strings.Split(key, "/") {
		if k, ok := domain.ParseFormatKind(seg); ok {
			return k
		}
	}
	return ""
}
