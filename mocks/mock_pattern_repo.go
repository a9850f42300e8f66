package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"facturio/internal/domain"
)

// MockPatternRepo is a mock implementation of port.PatternRepository.
type MockPatternRepo struct {
	mock.Mock
}

func (m *MockPatternRepo) Create(ctx context.Context, p *domain.Pattern) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPatternRepo) GetByID(ctx context.Context, tenantID, patternID uuid.UUID) (*domain.Pattern, error) {
	args := m.Called(ctx, tenantID, patternID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Pattern), args.Error(1)
}

func (m *MockPatternRepo) GetBySignature(ctx context.Context, tenantID uuid.UUID, kind domain.PatternKind, signature string) (*domain.Pattern, error) {
	args := m.Called(ctx, tenantID, kind, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Pattern), args.Error(1)
}

func (m *MockPatternRepo) Update(ctx context.Context, p *domain.Pattern, expectedHitCount int) error {
	args := m.Called(ctx, p, expectedHitCount)
	return args.Error(0)
}

func (m *MockPatternRepo) Deactivate(ctx context.Context, tenantID, patternID uuid.UUID) error {
	args := m.Called(ctx, tenantID, patternID)
	return args.Error(0)
}

func (m *MockPatternRepo) TopByHits(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.Pattern, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Pattern), args.Error(1)
}

func (m *MockPatternRepo) SumHits(ctx context.Context, tenantID uuid.UUID, kind domain.PatternKind, since time.Time) (int, error) {
	args := m.Called(ctx, tenantID, kind, since)
	return args.Int(0), args.Error(1)
}
