package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of port.Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// MockProviderGateway is a mock implementation of port.ProviderGateway.
type MockProviderGateway struct {
	mock.Mock
}

func (m *MockProviderGateway) Call(ctx context.Context, providerID, prompt string) (string, error) {
	args := m.Called(ctx, providerID, prompt)
	return args.String(0), args.Error(1)
}
