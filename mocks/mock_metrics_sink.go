package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"paperflow/internal/quality"
)

// MockMetricsSink is a mock implementation of port.MetricsSink.
type MockMetricsSink struct {
	mock.Mock
}

func (m *MockMetricsSink) ObserveQuality(report quality.Report, verdict quality.Verdict) {
	m.Called(report, verdict)
}

func (m *MockMetricsSink) ObserveChunk(outcome string, records int, elapsed time.Duration) {
	m.Called(outcome, records, elapsed)
}

func (m *MockMetricsSink) ObservePartitionWrite(partition string, records int, ok bool) {
	m.Called(partition, records, ok)
}
