package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mock types ---

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Provider() Provider {
	args := m.Called()
	return args.Get(0).(Provider)
}

func (m *MockBackend) Transcribe(ctx context.Context, req *Request) (*Response, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*Response); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Tests ---

func TestRegistry_RegisterAndNew(t *testing.T) {
	reg := NewRegistry()
	mockBackend := new(MockBackend)

	require.NoError(t, reg.Register(ProviderStub, func(context.Context) (Backend, error) {
		return mockBackend, nil
	}))

	got, err := reg.New(context.Background(), ProviderStub)
	require.NoError(t, err)
	assert.Equal(t, mockBackend, got)

	_, err = reg.New(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegistry_RegisterTwice(t *testing.T) {
	reg := NewRegistry()
	f := func(context.Context) (Backend, error) { return new(MockBackend), nil }

	require.NoError(t, reg.Register(ProviderStub, f))
	assert.ErrorIs(t, reg.Register(ProviderStub, f), ErrAlreadyRegistered)
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(ProviderWhisperServer, func(context.Context) (Backend, error) {
		return nil, errors.New("model missing")
	}))

	_, err := reg.New(context.Background(), ProviderWhisperServer)
	assert.EqualError(t, err, "failed to initialize whisper.cpp backend: model missing")
}

func TestRegistry_Providers(t *testing.T) {
	reg := NewRegistry()
	f := func(context.Context) (Backend, error) { return new(MockBackend), nil }

	require.NoError(t, reg.Register(ProviderWhisperServer, f))
	require.NoError(t, reg.Register(ProviderOpenAI, f))
	require.NoError(t, reg.Register(ProviderStub, f))

	assert.Equal(t, []Provider{ProviderOpenAI, ProviderStub, ProviderWhisperServer}, reg.Providers())
}
