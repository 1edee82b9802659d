package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAuthenticator struct {
	calls int
	users map[string]string
}

func (a *countingAuthenticator) Authenticate(ctx context.Context, token, provider string) (string, error) {
	a.calls++
	if userId, ok := a.users[token]; ok {
		return userId, nil
	}
	return "", errors.New("token verification failed")
}

func TestCachedAuthenticatorMemoizes(t *testing.T) {
	inner := &countingAuthenticator{users: map[string]string{"tok1": "u1"}}
	cached := NewCachedAuthenticator(inner)

	for i := 0; i < 3; i++ {
		userId, err := cached.Authenticate(context.Background(), "tok1", "example")
		require.NoError(t, err)
		assert.Equal(t, "u1", userId)
	}
	assert.Equal(t, 1, inner.calls)
}

func TestCachedAuthenticatorKeysByProvider(t *testing.T) {
	inner := &countingAuthenticator{users: map[string]string{"tok1": "u1"}}
	cached := NewCachedAuthenticator(inner)

	_, err := cached.Authenticate(context.Background(), "tok1", "a")
	require.NoError(t, err)
	_, err = cached.Authenticate(context.Background(), "tok1", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedAuthenticatorDoesNotCacheFailures(t *testing.T) {
	inner := &countingAuthenticator{}
	cached := NewCachedAuthenticator(inner)

	_, err := cached.Authenticate(context.Background(), "bad", "example")
	require.Error(t, err)
	_, err = cached.Authenticate(context.Background(), "bad", "example")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedAuthenticatorEmptyTokenShortCircuits(t *testing.T) {
	inner := &countingAuthenticator{}
	cached := NewCachedAuthenticator(inner)

	userId, err := cached.Authenticate(context.Background(), "", "example")
	require.NoError(t, err)
	assert.Empty(t, userId)
	assert.Equal(t, 0, inner.calls)
}
