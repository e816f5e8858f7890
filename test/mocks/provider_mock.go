package mocks

import (
	"context"

	"github.com/gilby125/flight-radius/flights"
	"github.com/stretchr/testify/mock"
)

// MockProvider is a testify mock of flights.Provider.
type MockProvider struct {
	mock.Mock
}

// Name is fixed so wrappers can build cache keys without an expectation.
func (m *MockProvider) Name() string {
	return "mock-provider"
}

// Search mocks flights.Provider.Search.
func (m *MockProvider) Search(ctx context.Context, from, to, date string) (*flights.SearchResult, error) {
	args := m.Called(ctx, from, to, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flights.SearchResult), args.Error(1)
}

// MockRefresher adds cache invalidation to MockProvider.
type MockRefresher struct {
	MockProvider
}

// Invalidate mocks dropping the cached answer of one query.
func (m *MockRefresher) Invalidate(ctx context.Context, from, to, date string) error {
	args := m.Called(ctx, from, to, date)
	return args.Error(0)
}
