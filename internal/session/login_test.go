package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/internal/domain"
)

type mockAuthenticator struct {
	mock.Mock
}

func (m *mockAuthenticator) IsSessionAlive(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockAuthenticator) InteractiveLogin(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestLogin_AliveSessionIsKept(t *testing.T) {
	a := &mockAuthenticator{}
	a.On("IsSessionAlive", mock.Anything).Return(true, nil).Once()

	performed, err := Login(context.Background(), a, false, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, performed)
	a.AssertNotCalled(t, "InteractiveLogin", mock.Anything)
	a.AssertExpectations(t)
}

func TestLogin_ForceAlwaysRunsInteractiveFlow(t *testing.T) {
	a := &mockAuthenticator{}
	a.On("InteractiveLogin", mock.Anything).Return(nil).Once()
	a.On("IsSessionAlive", mock.Anything).Return(true, nil).Once()

	performed, err := Login(context.Background(), a, true, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, performed)
	a.AssertExpectations(t)
}

func TestLogin_DeadSessionAfterLoginIsHardError(t *testing.T) {
	a := &mockAuthenticator{}
	a.On("IsSessionAlive", mock.Anything).Return(false, nil).Twice()
	a.On("InteractiveLogin", mock.Anything).Return(nil).Once()

	performed, err := Login(context.Background(), a, false, zap.NewNop())
	require.Error(t, err)
	assert.False(t, performed)
	assert.ErrorIs(t, err, domain.ErrLoginFailed)
	a.AssertNumberOfCalls(t, "InteractiveLogin", 1)
}

func TestLogin_InteractiveFailurePropagates(t *testing.T) {
	a := &mockAuthenticator{}
	a.On("IsSessionAlive", mock.Anything).Return(false, nil).Once()
	a.On("InteractiveLogin", mock.Anything).Return(errors.New("captcha")).Once()

	_, err := Login(context.Background(), a, false, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "captcha")
}
