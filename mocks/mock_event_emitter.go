package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"facturio/internal/domain"
)

// MockEventEmitter is a mock implementation of port.EventEmitter.
type MockEventEmitter struct {
	mock.Mock
}

func (m *MockEventEmitter) DocumentCompleted(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockEventEmitter) DocumentFailed(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockEventEmitter) Close() {
	m.Called()
}
