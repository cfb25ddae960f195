// Package telemetry publishes run metrics to Prometheus.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"paperflow/internal/port"
	"paperflow/internal/quality"
)

// Prometheus implements port.MetricsSink over a private registry.
type Prometheus struct {
	reg *prometheus.Registry

	chunksTotal      *prometheus.CounterVec
	chunkRecords     *prometheus.CounterVec
	chunkDuration    *prometheus.HistogramVec
	partitionWrites  *prometheus.CounterVec
	partitionRecords *prometheus.CounterVec
	partitionErrors  *prometheus.CounterVec
	missingRate      *prometheus.GaugeVec
	anomalies        *prometheus.GaugeVec
	qualityPassed    prometheus.Gauge
}

var _ port.MetricsSink = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them on a new registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Prometheus{
		reg: reg,
		chunksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperflow_chunks_total",
				Help: "Chunks processed by outcome",
			},
			[]string{"outcome"}, // succeeded, failed
		),
		chunkRecords: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperflow_chunk_records_total",
				Help: "Raw records read by chunk outcome",
			},
			[]string{"outcome"},
		),
		chunkDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paperflow_chunk_duration_seconds",
				Help:    "Wall time of one chunk from reconcile to write",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~163s
			},
			[]string{"outcome"},
		),
		partitionWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperflow_partition_writes_total",
				Help: "Partition batch deliveries by status",
			},
			[]string{"status"}, // success, failure
		),
		partitionRecords: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperflow_partition_records_total",
				Help: "Records delivered to partitions by status",
			},
			[]string{"status"},
		),
		// Failures only, labeled by partition.
		partitionErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperflow_partition_write_failures_total",
				Help: "Failed partition batch deliveries by partition",
			},
			[]string{"partition"},
		),
		missingRate: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "paperflow_quality_missing_rate_percent",
				Help: "Share of papers missing a field in the latest quality report",
			},
			[]string{"field"},
		),
		anomalies: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "paperflow_quality_anomalies",
				Help: "Anomaly counters of the latest quality report",
			},
			[]string{"kind"},
		),
		qualityPassed: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "paperflow_quality_passed",
				Help: "1 when the latest quality report is within all thresholds",
			},
		),
	}
}

// Registry exposes the registry for HTTP handlers and pushes.
func (p *Prometheus) Registry() *prometheus.Registry { return p.reg }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func (p *Prometheus) ObserveChunk(outcome string, records int, elapsed time.Duration) {
	p.chunksTotal.WithLabelValues(outcome).Inc()
	p.chunkRecords.WithLabelValues(outcome).Add(float64(records))
	p.chunkDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (p *Prometheus) ObservePartitionWrite(partition string, records int, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
		p.partitionErrors.WithLabelValues(partition).Inc()
	}
	p.partitionWrites.WithLabelValues(status).Inc()
	p.partitionRecords.WithLabelValues(status).Add(float64(records))
}

func (p *Prometheus) ObserveQuality(report quality.Report, verdict quality.Verdict) {
	for _, field := range []string{
		quality.FieldTitle, quality.FieldAbstract, quality.FieldCategories,
		quality.FieldAuthors, quality.FieldInstitutions,
	} {
		p.missingRate.WithLabelValues(field).Set(report.MissingRate(field))
	}

	p.anomalies.WithLabelValues("any").Set(float64(report.Anomalies))
	p.anomalies.WithLabelValues("negative_delta").Set(float64(report.NegativeDelta))
	p.anomalies.WithLabelValues("empty_categories").Set(float64(report.EmptyCategories))
	p.anomalies.WithLabelValues("empty_authors").Set(float64(report.EmptyAuthors))
	p.anomalies.WithLabelValues("future_submitted").Set(float64(report.FutureSubmitted))
	p.anomalies.WithLabelValues("early_submitted").Set(float64(report.EarlySubmitted))
	p.anomalies.WithLabelValues("long_titles").Set(float64(report.LongTitles))
	p.anomalies.WithLabelValues("rejected_records").Set(float64(report.RejectedRecords))
	p.anomalies.WithLabelValues("merge_conflicts").Set(float64(report.MergeConflicts))

	if verdict.Passed {
		p.qualityPassed.Set(1)
	} else {
		p.qualityPassed.Set(0)
	}
}

// Push sends the current values to a Pushgateway under job.
func (p *Prometheus) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(p.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}

// Nop discards all observations.
type Nop struct{}

var _ port.MetricsSink = Nop{}

func (Nop) ObserveQuality(quality.Report, quality.Verdict) {}
func (Nop) ObserveChunk(string, int, time.Duration)        {}
func (Nop) ObservePartitionWrite(string, int, bool)        {}
