package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/flowplane/flowplane/pkg/runner"
)

// MockStepRunner is a mock implementation of runner.StepRunner interface.
type MockStepRunner struct {
	mock.Mock
}

func (m *MockStepRunner) Run(ctx context.Context, req runner.StepRequest) (*runner.StepResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*runner.StepResult), args.Error(1)
}
