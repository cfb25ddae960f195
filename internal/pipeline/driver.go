// Package pipeline drives chunked reconciliation runs over a record source.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"paperflow/internal/config"
	"paperflow/internal/domain"
	"paperflow/internal/logging"
	"paperflow/internal/port"
	"paperflow/internal/quality"
	"paperflow/internal/reconcile"
	"paperflow/internal/retry"
	"paperflow/internal/writer"
)

// Chunk outcome labels reported to the metrics sink.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Options tune a run.
type Options struct {
	Mode         domain.RunMode
	ChunkSize    int
	Workers      int
	MaxBatchSize int
	// MaxChunks stops the run after that many chunks; 0 means no limit.
	MaxChunks  int
	Start      domain.Position
	Thresholds quality.Thresholds
}

// OptionsFromConfig maps the pipeline and quality configuration to Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Mode:         cfg.Pipeline.Mode,
		ChunkSize:    cfg.Pipeline.ChunkSize,
		Workers:      cfg.Pipeline.Workers,
		MaxBatchSize: cfg.Pipeline.MaxBatchSize,
		MaxChunks:    cfg.Pipeline.MaxChunks,
		Start:        domain.Position{Part: cfg.Pipeline.StartPart, Offset: cfg.Pipeline.StartOffset},
		Thresholds:   quality.ThresholdsFromConfig(cfg.Quality),
	}
}

// Driver reads the source in chunks and runs each chunk through
// reconciliation, prior-state commit and partitioned writing. Chunks run on
// up to Workers goroutines.
type Driver struct {
	opts    Options
	source  port.RecordSource
	state   port.PriorStateRepository
	engine  *reconcile.Engine
	writer  *writer.Writer
	metrics port.MetricsSink
	policy  retry.Policy
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.RWMutex
	summary Summary
}

// New creates a Driver.
func New(
	opts Options,
	source port.RecordSource,
	state port.PriorStateRepository,
	sink port.OutputSink,
	metrics port.MetricsSink,
	engine *reconcile.Engine,
	policy retry.Policy,
	logger *zap.Logger,
) *Driver {
	if opts.ChunkSize < 1 {
		opts.ChunkSize = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	logger = logger.Named("pipeline")
	return &Driver{
		opts:    opts,
		source:  source,
		state:   state,
		engine:  engine,
		writer:  writer.New(sink, metrics, policy, opts.MaxBatchSize, logger),
		metrics: metrics,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// Snapshot returns the summary accumulated so far.
func (d *Driver) Snapshot() Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.summary
}

type chunk struct {
	index      int
	start, end domain.Position
	spans      []domain.Span
	eof        bool
}

// Run processes the source until it is exhausted, MaxChunks is reached or
// ctx is canceled. Cancellation is observed between chunks; chunks already
// started run to completion. The returned error is non-nil only for
// configuration or input failures and cancellation; chunk failures are
// reported in the Summary.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	runID := uuid.New().String()
	logger := d.logger.With(zap.String(logging.FieldRunID, runID))
	d.mu.Lock()
	d.summary = newSummary(runID, d.opts.Mode, d.now(), d.opts.Start)
	d.mu.Unlock()

	work := context.WithoutCancel(ctx)
	in := &input{src: d.source, policy: d.policy, logger: logger, pos: d.opts.Start}
	if err := in.open(work); err != nil {
		logger.Error("input unavailable", zap.Error(err))
		return d.finish(domain.StageFailed, d.opts.Start, err), err
	}
	defer in.close()

	logger.Info("run started",
		zap.String("mode", string(d.opts.Mode)),
		zap.String("start", d.opts.Start.String()),
		zap.Int("chunk_size", d.opts.ChunkSize),
		zap.Int("workers", d.opts.Workers),
	)

	g := new(errgroup.Group)
	g.SetLimit(d.opts.Workers)

	var runErr error
	resume := d.opts.Start
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("run canceled before chunk %d: %w", index, err)
			break
		}
		if d.opts.MaxChunks > 0 && index >= d.opts.MaxChunks {
			break
		}

		c, err := d.read(work, in, index)
		if err != nil {
			logger.Error("input stream failed", zap.Int(logging.FieldChunk, index), zap.Error(err))
			runErr = err
			break
		}
		resume = c.end
		if len(c.spans) > 0 {
			g.Go(func() error {
				out := d.process(work, logger, c)
				d.record(out)
				return nil
			})
		}
		if c.eof {
			break
		}
	}
	_ = g.Wait()

	if runErr != nil {
		return d.finish(domain.StageFailed, resume, runErr), runErr
	}
	return d.finish(domain.StageDone, resume, nil), nil
}

func (d *Driver) read(ctx context.Context, in *input, index int) (chunk, error) {
	c := chunk{index: index, start: in.pos, spans: make([]domain.Span, 0, min(d.opts.ChunkSize, 1024))}
	for len(c.spans) < d.opts.ChunkSize {
		span, err := in.next(ctx)
		if errors.Is(err, io.EOF) {
			c.eof = true
			break
		}
		if err != nil {
			return c, err
		}
		c.spans = append(c.spans, span)
	}
	c.end = in.pos
	return c, nil
}

// process runs one chunk from RECONCILING through WRITING.
func (d *Driver) process(ctx context.Context, logger *zap.Logger, c chunk) chunkOutcome {
	started := time.Now()
	logger = logger.With(zap.Int(logging.FieldChunk, c.index))
	st := newStages(logger)
	out := chunkOutcome{index: c.index, start: c.start, end: c.end, records: len(c.spans)}

	defer func() {
		outcome := OutcomeSucceeded
		if out.failed() {
			outcome = OutcomeFailed
		}
		d.metrics.ObserveChunk(outcome, out.records, time.Since(started))
	}()

	st.to(domain.StageReconciling)
	batch := d.engine.Prepare(c.spans)
	out.valid = batch.Records()
	out.rejected = batch.Rejected()

	res, err := d.reconcile(ctx, logger, batch)
	if err != nil {
		out.failedAt = st.fail()
		out.err = err
		logger.Warn("chunk failed", zap.String(logging.FieldStage, string(out.failedAt)), zap.Error(err))
		return out
	}
	out.papers = len(res.Papers)
	out.report = d.engine.Score(res)
	out.scored = true

	st.to(domain.StageWriting)
	out.writes = d.writer.Write(ctx, res.Papers)
	if failed := out.writes.FailedPartitions(); len(failed) > 0 {
		errs := make([]error, 0, len(failed))
		for _, p := range failed {
			errs = append(errs, p.Err)
		}
		out.failedAt = st.fail()
		out.err = errors.Join(errs...)
		logger.Warn("chunk failed",
			zap.String(logging.FieldStage, string(out.failedAt)),
			zap.Int("failed_partitions", len(failed)),
			zap.Error(out.err),
		)
		return out
	}

	st.to(domain.StageReading)
	logger.Debug("chunk done",
		zap.Int("records", out.records),
		zap.Int("papers", out.papers),
		zap.Int("partitions", len(out.writes.Partitions)),
	)
	return out
}

// reconcile merges the batch against prior state and commits the new
// states. A revision conflict re-reads the paper's state and merges again.
func (d *Driver) reconcile(ctx context.Context, logger *zap.Logger, batch *reconcile.Batch) (*reconcile.Result, error) {
	ids := batch.IDs()
	var prior map[string]domain.PriorState
	got := d.policy.Do(ctx, logger, "load prior state", func(ctx context.Context) error {
		var err error
		prior, err = d.state.GetMany(ctx, ids)
		return err
	})
	if !got.OK() {
		return nil, fmt.Errorf("%w: loading %d states after %d attempts: %w", domain.ErrStateUpdate, len(ids), got.Attempts, got.Err)
	}

	res := d.engine.Reconcile(batch, prior)
	for i := range res.States {
		if err := d.commit(ctx, logger, batch, res, i); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (d *Driver) commit(ctx context.Context, logger *zap.Logger, batch *reconcile.Batch, res *reconcile.Result, i int) error {
	id := res.States[i].PaperID
	put := d.policy.Do(ctx, logger, "commit prior state", func(ctx context.Context) error {
		err := d.state.Put(ctx, res.States[i])
		if !errors.Is(err, domain.ErrRevisionConflict) {
			return err
		}
		logger.Debug("prior state changed concurrently, merging again", zap.String(logging.FieldPaperID, id))
		fresh, gerr := d.state.GetMany(ctx, []string{id})
		if gerr != nil {
			return gerr
		}
		var p *domain.PriorState
		if st, ok := fresh[id]; ok {
			p = &st
		}
		if rerr := res.Replace(d.engine.Merge(id, batch.Fragments(id), p)); rerr != nil {
			return retry.Permanent(rerr)
		}
		return err
	})
	if !put.OK() {
		return fmt.Errorf("%w: paper %s after %d attempts: %w", domain.ErrStateUpdate, id, put.Attempts, put.Err)
	}
	return nil
}

func (d *Driver) record(out chunkOutcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.summary = d.summary.with(out, d.opts.Thresholds)

	// Published under the lock so the gauges end on the final cumulative report.
	if out.scored {
		d.metrics.ObserveQuality(d.summary.Quality, d.summary.Verdict)
	}
}

func (d *Driver) finish(state domain.Stage, resume domain.Position, err error) Summary {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.summary.State = state
	d.summary.Resume = resume
	d.summary.Duration = d.now().Sub(d.summary.StartedAt)
	d.summary.Verdict = d.summary.Quality.Evaluate(d.opts.Thresholds)
	if err != nil {
		d.summary.Error = err.Error()
	}

	s := d.summary
	fields := []zap.Field{
		zap.String(logging.FieldRunID, s.RunID),
		zap.String("state", string(s.State)),
		zap.Int("total_records", s.TotalRecords),
		zap.Int("papers", s.Papers),
		zap.Int("anomalies", s.Anomalies),
		zap.Int("succeeded_chunks", s.SucceededChunks),
		zap.Int("failed_chunks", s.FailedChunks),
		zap.Bool("quality_passed", s.Verdict.Passed),
		zap.Duration("duration", s.Duration),
	}
	for _, b := range s.Verdict.Breaches {
		d.logger.Warn("quality threshold breached",
			zap.String("field", b.Field),
			zap.Float64("rate", b.Rate),
			zap.Float64("threshold", b.Threshold),
		)
	}
	if state == domain.StageFailed {
		d.logger.Error("run failed", append(fields, zap.String("error", s.Error))...)
	} else {
		d.logger.Info("run finished", fields...)
	}
	return s
}
