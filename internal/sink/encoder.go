// Package sink implements output sinks for partitioned paper batches.
package sink

import (
	"bytes"
	"encoding/json"
	"fmt"

	"paperflow/internal/csvexport"
	"paperflow/internal/domain"
)

// Encoder serializes a batch of papers into one object.
type Encoder interface {
	Encode(papers []*domain.CanonicalPaper) ([]byte, error)
	Extension() string
	ContentType() string
}

// NewEncoder returns the encoder for format.
func NewEncoder(format domain.OutputFormat) (Encoder, error) {
	switch format {
	case domain.OutputFormatParquet:
		return NewParquetEncoder(), nil
	case domain.OutputFormatJSONL:
		return JSONLEncoder{}, nil
	case domain.OutputFormatCSV:
		return CSVEncoder{}, nil
	default:
		return nil, fmt.Errorf("%w: output format %q", domain.ErrUnsupportedFormat, format)
	}
}

// JSONLEncoder writes one JSON object per line.
type JSONLEncoder struct{}

func (JSONLEncoder) Extension() string   { return ".jsonl" }
func (JSONLEncoder) ContentType() string { return "application/x-ndjson" }

func (JSONLEncoder) Encode(papers []*domain.CanonicalPaper) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range papers {
		if err := enc.Encode(p); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", p.PaperID, err)
		}
	}
	return buf.Bytes(), nil
}

// CSVEncoder writes a header row followed by one row per paper.
type CSVEncoder struct{}

func (CSVEncoder) Extension() string   { return ".csv" }
func (CSVEncoder) ContentType() string { return "text/csv" }

func (CSVEncoder) Encode(papers []*domain.CanonicalPaper) ([]byte, error) {
	var buf bytes.Buffer
	w := csvexport.NewWriter(&buf)
	if err := w.WriteHeader(); err != nil {
		return nil, err
	}
	if err := w.WritePapers(papers); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
