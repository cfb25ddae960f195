package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"paperflow/internal/domain"
)

// MockPriorStateRepo is a mock implementation of port.PriorStateRepository.
type MockPriorStateRepo struct {
	mock.Mock
}

func (m *MockPriorStateRepo) GetMany(ctx context.Context, ids []string) (map[string]domain.PriorState, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.PriorState), args.Error(1)
}

func (m *MockPriorStateRepo) Put(ctx context.Context, state domain.PriorState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}
