package ocr

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockEngine is a mock implementation of Engine using testify/mock.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Name() string { return "mock" }

func (m *MockEngine) Detect(ctx context.Context, input Input) (Result, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(Result), args.Error(1)
}
