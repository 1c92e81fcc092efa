package backend

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	a := m.Called(ctx, name, args, stdin)
	stdout, _ := a.Get(0).([]byte)
	stderr, _ := a.Get(1).([]byte)
	return stdout, stderr, a.Error(2)
}

func TestExecutor_Execute(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, "/bin/engine", []string{"-f", "a.wav"}, nil).
		Return([]byte("ok"), []byte(nil), nil)

	e := NewExecutorWithRunner("/bin/engine", 0, runner)
	stdout, _, err := e.Execute(context.Background(), []string{"-f", "a.wav"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(stdout))

	runner.AssertExpectations(t)
}

func TestExecutor_ErrorIncludesStderr(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, "/bin/engine", mock.Anything, nil).
		Return([]byte(nil), []byte("error: failed to read audio\n"), errors.New("exit status 2"))

	e := NewExecutorWithRunner("/bin/engine", 0, runner)
	_, _, err := e.Execute(context.Background(), nil, nil)
	assert.EqualError(t, err, "exit status 2: error: failed to read audio")
}

func TestExecutor_TimeoutAppliesDeadline(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything, mock.Anything, mock.Anything).Return([]byte(nil), []byte(nil), nil).Once()
	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return !ok
	}), mock.Anything, mock.Anything, mock.Anything).Return([]byte(nil), []byte(nil), nil).Once()

	_, _, err := NewExecutorWithRunner("x", time.Minute, runner).Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	_, _, err = NewExecutorWithRunner("x", 0, runner).Execute(context.Background(), nil, nil)
	require.NoError(t, err)

	runner.AssertExpectations(t)
}
