package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"paperflow/internal/domain"
)

// MockOutputSink is a mock implementation of port.OutputSink.
type MockOutputSink struct {
	mock.Mock
}

func (m *MockOutputSink) WriteBatch(ctx context.Context, key domain.PartitionKey, papers []*domain.CanonicalPaper) error {
	args := m.Called(ctx, key, papers)
	return args.Error(0)
}
