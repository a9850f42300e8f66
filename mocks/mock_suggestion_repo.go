package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"facturio/internal/domain"
	"facturio/internal/port"
)

// MockSuggestionRepo is a mock implementation of port.SuggestionRepository.
type MockSuggestionRepo struct {
	mock.Mock
}

func (m *MockSuggestionRepo) Create(ctx context.Context, s *domain.Suggestion) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSuggestionRepo) GetByID(ctx context.Context, tenantID, suggestionID uuid.UUID) (*domain.Suggestion, error) {
	args := m.Called(ctx, tenantID, suggestionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Suggestion), args.Error(1)
}

func (m *MockSuggestionRepo) List(ctx context.Context, tenantID uuid.UUID, filter port.SuggestionFilter, offset, limit int) ([]domain.Suggestion, int, error) {
	args := m.Called(ctx, tenantID, filter, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Suggestion), args.Int(1), args.Error(2)
}

func (m *MockSuggestionRepo) Update(ctx context.Context, s *domain.Suggestion) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSuggestionRepo) CountByState(ctx context.Context, tenantID uuid.UUID) (*domain.SuggestionStats, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SuggestionStats), args.Error(1)
}

func (m *MockSuggestionRepo) FindPending(ctx context.Context, tenantID, documentID uuid.UUID, fieldTarget string) (*domain.Suggestion, error) {
	args := m.Called(ctx, tenantID, documentID, fieldTarget)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Suggestion), args.Error(1)
}
