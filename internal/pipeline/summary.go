package pipeline

import (
	"sort"
	"time"

	"paperflow/internal/domain"
	"paperflow/internal/quality"
	"paperflow/internal/writer"
)

// ChunkFailure identifies a chunk to re-run from Start.
type ChunkFailure struct {
	Index int             `json:"index"`
	Start domain.Position `json:"start"`
	End   domain.Position `json:"end"`
	Stage domain.Stage    `json:"stage"`
	Error string          `json:"error"`
}

// PartitionCount is the per-partition delivery tally of a run.
type PartitionCount struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Summary is the aggregate result of a run. Apart from the identifiers and
// timings, re-running the same input against the same prior state yields an
// equal Summary.
type Summary struct {
	RunID     string         `json:"run_id"`
	Mode      domain.RunMode `json:"mode"`
	State     domain.Stage   `json:"state"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration_ns"`

	TotalRecords int `json:"total_records"`
	ValidRecords int `json:"valid_records"`
	Rejected     int `json:"rejected_records"`
	Papers       int `json:"papers"`
	Anomalies    int `json:"anomalies"`

	SucceededChunks    int            `json:"succeeded_chunks"`
	FailedChunks       int            `json:"failed_chunks"`
	FailedChunkEntries []ChunkFailure `json:"failed_chunk_entries"`

	Partitions map[string]PartitionCount `json:"partitions"`
	Quality    quality.Report            `json:"quality"`
	Verdict    quality.Verdict           `json:"verdict"`

	Start  domain.Position `json:"start"`
	Resume domain.Position `json:"resume"`
	Error  string          `json:"error,omitempty"`
}

func newSummary(runID string, mode domain.RunMode, started time.Time, start domain.Position) Summary {
	return Summary{
		RunID:              runID,
		Mode:               mode,
		State:              domain.StageReading,
		StartedAt:          started,
		FailedChunkEntries: []ChunkFailure{},
		Partitions:         map[string]PartitionCount{},
		Start:              start,
		Resume:             start,
	}
}

// chunkOutcome is everything one chunk contributes to the Summary.
type chunkOutcome struct {
	index      int
	start, end domain.Position
	records    int
	valid      int
	rejected   int
	papers     int
	scored     bool
	report     quality.Report
	writes     writer.Result
	failedAt   domain.Stage
	err        error
}

func (o chunkOutcome) failed() bool { return o.err != nil }

// with returns a copy of s that includes o. Chunks may be folded in any
// order.
func (s Summary) with(o chunkOutcome, th quality.Thresholds) Summary {
	next := s
	next.TotalRecords += o.records
	next.ValidRecords += o.valid
	next.Rejected += o.rejected
	next.Papers += o.papers

	if o.scored {
		next.Quality = s.Quality.Merge(o.report)
		next.Anomalies = next.Quality.Anomalies
		next.Verdict = next.Quality.Evaluate(th)
	}

	next.Partitions = make(map[string]PartitionCount, len(s.Partitions))
	for k, v := range s.Partitions {
		next.Partitions[k] = v
	}
	for _, p := range o.writes.Partitions {
		c := next.Partitions[p.Key.String()]
		c.Succeeded += p.Succeeded
		c.Failed += p.Failed
		next.Partitions[p.Key.String()] = c
	}

	if o.failed() {
		next.FailedChunks++
		next.FailedChunkEntries = append(append([]ChunkFailure(nil), s.FailedChunkEntries...), ChunkFailure{
			Index: o.index,
			Start: o.start,
			End:   o.end,
			Stage: o.failedAt,
			Error: o.err.Error(),
		})
		sort.Slice(next.FailedChunkEntries, func(i, j int) bool {
			return next.FailedChunkEntries[i].Index < next.FailedChunkEntries[j].Index
		})
	} else {
		next.SucceededChunks++
	}
	return next
}
