package mocks

import (
	"context"

	"github.com/gilby125/flight-radius/history"
	"github.com/stretchr/testify/mock"
)

// MockHistoryStore is a testify mock of history.Store.
type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) Add(ctx context.Context, e history.Entry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockHistoryStore) List(ctx context.Context) ([]history.Entry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]history.Entry), args.Error(1)
}

func (m *MockHistoryStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
