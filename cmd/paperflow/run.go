package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paperflow/internal/config"
	"paperflow/internal/domain"
	"paperflow/internal/handler"
	"paperflow/internal/logging"
	"paperflow/internal/pipeline"
	"paperflow/internal/port"
	"paperflow/internal/reconcile"
	"paperflow/internal/repository/memory"
	"paperflow/internal/repository/postgres"
	"paperflow/internal/repository/sqlite"
	"paperflow/internal/repository/sqlrepo"
	"paperflow/internal/retry"
	"paperflow/internal/router"
	"paperflow/internal/sink"
	"paperflow/internal/source"
	"paperflow/internal/storage/localfs"
	"paperflow/internal/storage/s3"
	"paperflow/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// stateStore is the prior-state backend and, for SQL backends, the lookup
// table repository sharing its connection.
type stateStore struct {
	state  port.PriorStateRepository
	papers port.PaperRepository
	db     *sqlx.DB
}

func (s *stateStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// runPipeline wires the configured stores and runs one pipeline pass. The
// summary is printed whenever the driver ran, including failed runs.
func runPipeline(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	src, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := openState(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	out, err := openSink(ctx, cfg, store)
	if err != nil {
		return err
	}

	var (
		prom    *telemetry.Prometheus
		metrics port.MetricsSink = telemetry.Nop{}
	)
	if cfg.Metrics.ListenAddr != "" || cfg.Metrics.PushgatewayURL != "" {
		prom = telemetry.NewPrometheus()
		metrics = prom
	}

	driver := pipeline.New(
		pipeline.OptionsFromConfig(cfg),
		src,
		store.state,
		out,
		metrics,
		reconcile.NewEngine(logger),
		retry.FromConfig(cfg.Retry),
		logger,
	)

	if cfg.Metrics.ListenAddr != "" {
		stop := serveStatus(cfg.Metrics.ListenAddr, driver, store, prom, logger)
		defer stop()
	}

	summary, runErr := driver.Run(ctx)

	if prom != nil && cfg.Metrics.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		if err := prom.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
			logger.Warn("pushing metrics failed", zap.Error(err))
		}
		cancel()
	}

	if err := writeJSON(cmd, summary); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// openSource resolves the input objects. In local history mode the input
// path names a file; its directory becomes the store root.
func openSource(ctx context.Context, cfg *config.Config) (port.RecordSource, error) {
	switch cfg.Pipeline.Mode {
	case domain.RunModeHistory:
		if cfg.Input.Locality == domain.LocalityLocal {
			path := filepath.Clean(cfg.Input.Path)
			return source.History(ctx, localfs.New(filepath.Dir(path)), "", filepath.Base(path))
		}
		store, err := s3.NewS3Client(ctx, &cfg.S3)
		if err != nil {
			return nil, err
		}
		return source.History(ctx, store, cfg.Input.Bucket, cfg.Input.Path)

	case domain.RunModeDaily:
		from, err := domain.ParseDate(cfg.Input.FromDate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
		to, err := domain.ParseDate(cfg.Input.ToDate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
		if cfg.Input.Locality == domain.LocalityLocal {
			return source.Daily(ctx, localfs.New(cfg.Input.Path), "", "", from, to)
		}
		store, err := s3.NewS3Client(ctx, &cfg.S3)
		if err != nil {
			return nil, err
		}
		return source.Daily(ctx, store, cfg.Input.Bucket, cfg.Input.Path, from, to)
	}
	return nil, fmt.Errorf("%w: unknown pipeline.mode %q", domain.ErrInvalidConfig, cfg.Pipeline.Mode)
}

func openState(cfg *config.Config) (*stateStore, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.State.Backend {
	case domain.StateBackendMemory:
		return &stateStore{state: memory.NewPriorStateRepo(), papers: memory.NewPaperRepo()}, nil
	case domain.StateBackendSQLite:
		db, err = sqlite.Open(cfg.State.SQLitePath)
	case domain.StateBackendPostgres:
		db, err = postgres.NewDB(&cfg.DB)
	default:
		return nil, fmt.Errorf("%w: unknown state.backend %q", domain.ErrInvalidConfig, cfg.State.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s state store: %v", domain.ErrStateUpdate, cfg.State.Backend, err)
	}
	return &stateStore{state: sqlrepo.NewPriorStateRepo(db), papers: sqlrepo.NewPaperRepo(db), db: db}, nil
}

func openSink(ctx context.Context, cfg *config.Config, store *stateStore) (port.OutputSink, error) {
	enc, err := sink.NewEncoder(cfg.Output.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	var obj *sink.ObjectSink
	if cfg.Output.Locality == domain.LocalityLocal {
		obj = sink.NewObjectSink(localfs.New(cfg.Output.Path), "", "", enc)
	} else {
		client, err := s3.NewS3Client(ctx, &cfg.S3)
		if err != nil {
			return nil, err
		}
		obj = sink.NewObjectSink(client, cfg.Output.Bucket, cfg.Output.Path, enc)
	}

	if !cfg.Output.LookupTable {
		return obj, nil
	}
	return sink.Fanout{obj, sink.NewLookupSink(store.papers)}, nil
}

// serveStatus starts the status server in the background and returns a
// function that shuts it down.
func serveStatus(addr string, driver *pipeline.Driver, store *stateStore, prom *telemetry.Prometheus, logger *zap.Logger) func() {
	var pinger handler.Pinger
	if store.db != nil {
		pinger = store.db
	}
	r := router.Setup(
		handler.NewHealthHandler(pinger),
		handler.NewRunHandler(driver),
		handler.NewPaperHandler(store.papers, logger),
		prom.Handler(),
		logger,
	)

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("status server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("status server shutdown", zap.Error(err))
		}
	}
}
