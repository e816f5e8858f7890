package mocks

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/mock"
)

// MockCronner is a mock implementation of the worker.Cronner interface
type MockCronner struct {
	mock.Mock
}

// Start mocks the Start method
func (m *MockCronner) Start() {
	m.Called()
}

// Stop mocks the Stop method
func (m *MockCronner) Stop() context.Context {
	args := m.Called()
	if args.Get(0) == nil {
		return context.Background()
	}
	return args.Get(0).(context.Context)
}

// AddFunc mocks the AddFunc method. Expectations usually match the
// function with mock.AnythingOfType("func()").
func (m *MockCronner) AddFunc(spec string, cmd func()) (cron.EntryID, error) {
	args := m.Called(spec, cmd)
	return args.Get(0).(cron.EntryID), args.Error(1)
}
