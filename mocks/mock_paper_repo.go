package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"paperflow/internal/domain"
)

// MockPaperRepo is a mock implementation of port.PaperRepository.
type MockPaperRepo struct {
	mock.Mock
}

func (m *MockPaperRepo) UpsertMany(ctx context.Context, papers []*domain.CanonicalPaper) error {
	args := m.Called(ctx, papers)
	return args.Error(0)
}

func (m *MockPaperRepo) GetByID(ctx context.Context, paperID string) (*domain.CanonicalPaper, error) {
	args := m.Called(ctx, paperID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CanonicalPaper), args.Error(1)
}
