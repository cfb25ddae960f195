package port

import (
	"time"

	"paperflow/internal/quality"
)

// MetricsSink receives run telemetry. Calls never block the pipeline and
// never fail it.
type MetricsSink interface {
	ObserveQuality(report quality.Report, verdict quality.Verdict)
	ObserveChunk(outcome string, records int, elapsed time.Duration)
	ObservePartitionWrite(partition string, records int, ok bool)
}
