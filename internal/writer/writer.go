// Package writer groups reconciled papers by partition and delivers them to
// an output sink in bounded batches.
package writer

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"paperflow/internal/domain"
	"paperflow/internal/logging"
	"paperflow/internal/port"
	"paperflow/internal/retry"
)

// PartitionResult is the delivery outcome for one partition.
type PartitionResult struct {
	Key           domain.PartitionKey `json:"key"`
	Succeeded     int                 `json:"succeeded"`
	Failed        int                 `json:"failed"`
	Batches       int                 `json:"batches"`
	FailedBatches int                 `json:"failed_batches"`
	Err           error               `json:"-"`
}

// OK reports whether every batch of the partition was delivered.
func (p PartitionResult) OK() bool { return p.FailedBatches == 0 }

// Result lists per-partition outcomes in partition key order.
type Result struct {
	Partitions []PartitionResult
}

// Succeeded is the number of records delivered.
func (r Result) Succeeded() int {
	n := 0
	for _, p := range r.Partitions {
		n += p.Succeeded
	}
	return n
}

// Failed is the number of records not delivered.
func (r Result) Failed() int {
	n := 0
	for _, p := range r.Partitions {
		n += p.Failed
	}
	return n
}

// FailedPartitions returns the partitions with at least one failed batch.
func (r Result) FailedPartitions() []PartitionResult {
	var out []PartitionResult
	for _, p := range r.Partitions {
		if !p.OK() {
			out = append(out, p)
		}
	}
	return out
}

// Writer delivers papers to a sink. It is safe for concurrent use when the
// sink is.
type Writer struct {
	sink     port.OutputSink
	metrics  port.MetricsSink
	policy   retry.Policy
	maxBatch int
	logger   *zap.Logger
}

// New creates a Writer. maxBatch <= 0 means one batch per partition.
func New(sink port.OutputSink, metrics port.MetricsSink, policy retry.Policy, maxBatch int, logger *zap.Logger) *Writer {
	return &Writer{
		sink:     sink,
		metrics:  metrics,
		policy:   policy,
		maxBatch: maxBatch,
		logger:   logger.Named("writer"),
	}
}

// Group splits papers by partition key. Keys are returned in ascending order
// and papers within a partition are ordered by id.
func Group(papers []*domain.CanonicalPaper) ([]domain.PartitionKey, map[domain.PartitionKey][]*domain.CanonicalPaper) {
	groups := make(map[domain.PartitionKey][]*domain.CanonicalPaper)
	for _, p := range papers {
		k := p.Partition()
		groups[k] = append(groups[k], p)
	}
	keys := make([]domain.PartitionKey, 0, len(groups))
	for k, ps := range groups {
		keys = append(keys, k)
		sort.Slice(ps, func(i, j int) bool { return ps[i].PaperID < ps[j].PaperID })
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys, groups
}

// Write delivers papers partition by partition. A partition whose sink calls
// fail after retries is reported as failed without affecting the others.
func (w *Writer) Write(ctx context.Context, papers []*domain.CanonicalPaper) Result {
	keys, groups := Group(papers)
	res := Result{Partitions: make([]PartitionResult, 0, len(keys))}
	for _, key := range keys {
		res.Partitions = append(res.Partitions, w.writePartition(ctx, key, groups[key]))
	}
	return res
}

func (w *Writer) writePartition(ctx context.Context, key domain.PartitionKey, papers []*domain.CanonicalPaper) PartitionResult {
	pr := PartitionResult{Key: key}
	for _, batch := range split(papers, w.maxBatch) {
		pr.Batches++
		out := w.policy.Do(ctx, w.logger, "write partition "+key.String(), func(ctx context.Context) error {
			return w.sink.WriteBatch(ctx, key, batch)
		})
		w.metrics.ObservePartitionWrite(key.String(), len(batch), out.OK())
		if out.OK() {
			pr.Succeeded += len(batch)
			continue
		}
		pr.Failed += len(batch)
		pr.FailedBatches++
		pr.Err = fmt.Errorf("%w: %s after %d attempts: %v", domain.ErrPartitionWrite, key, out.Attempts, out.Err)
		w.logger.Warn("partition batch failed",
			zap.String(logging.FieldPartition, key.String()),
			zap.Int("records", len(batch)),
			zap.Int(logging.FieldAttempt, out.Attempts),
			zap.String("outcome", out.Outcome.String()),
			zap.Error(out.Err),
		)
	}
	return pr
}

func split(papers []*domain.CanonicalPaper, size int) [][]*domain.CanonicalPaper {
	if size <= 0 || len(papers) <= size {
		return [][]*domain.CanonicalPaper{papers}
	}
	var out [][]*domain.CanonicalPaper
	for start := 0; start < len(papers); start += size {
		end := min(start+size, len(papers))
		out = append(out, papers[start:end])
	}
	return out
}
