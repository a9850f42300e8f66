package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"facturio/internal/domain"
)

// MockDocumentRepo is a mock implementation of port.DocumentRepository.
type MockDocumentRepo struct {
	mock.Mock
}

func (m *MockDocumentRepo) Create(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentRepo) GetByID(ctx context.Context, tenantID, docID uuid.UUID) (*domain.Document, error) {
	args := m.Called(ctx, tenantID, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepo) GetByContentHash(ctx context.Context, tenantID uuid.UUID, hash string) (*domain.Document, error) {
	args := m.Called(ctx, tenantID, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepo) Transition(ctx context.Context, tenantID, docID uuid.UUID, from, to domain.DocumentState) error {
	args := m.Called(ctx, tenantID, docID, from, to)
	return args.Error(0)
}

func (m *MockDocumentRepo) UpdateClassification(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentRepo) SaveResult(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentRepo) MarkFailed(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentRepo) ListByState(ctx context.Context, tenantID uuid.UUID, state domain.DocumentState, offset, limit int) ([]domain.Document, int, error) {
	args := m.Called(ctx, tenantID, state, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Document), args.Int(1), args.Error(2)
}

func (m *MockDocumentRepo) ClaimReceived(ctx context.Context, limit int) ([]domain.Document, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Document), args.Error(1)
}

func (m *MockDocumentRepo) CountBySource(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[domain.ExtractionSource]int, error) {
	args := m.Called(ctx, tenantID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.ExtractionSource]int), args.Error(1)
}

func (m *MockDocumentRepo) UpdateFields(ctx context.Context, tenantID, docID uuid.UUID, fields json.RawMessage) error {
	args := m.Called(ctx, tenantID, docID, fields)
	return args.Error(0)
}

func (m *MockDocumentRepo) RequeueStale(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)
	return args.Int(0), args.Error(1)
}
