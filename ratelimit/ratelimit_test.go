package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckGlobalBoundary(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(30, 60*time.Second)
	l.now = func() time.Time { return now }

	for i := 0; i < 30; i++ {
		res := l.CheckGlobal("conn-1")
		require.True(t, res.Allowed, "request %d should be allowed", i+1)
	}
	res := l.CheckGlobal("conn-1")
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.Greater(t, RetryAfterSeconds(res.RetryAfter), 0)

	// a different connection has its own window
	assert.True(t, l.CheckGlobal("conn-2").Allowed)

	// after the window elapses a new event succeeds
	now = now.Add(61 * time.Second)
	assert.True(t, l.CheckGlobal("conn-1").Allowed)
}

func TestCheckEventIndependentWindows(t *testing.T) {
	l := NewLimiter(1000, time.Minute)

	for i := 0; i < 5; i++ {
		require.True(t, l.CheckEvent("conn-1", "send_message", 5, time.Minute).Allowed)
	}
	assert.False(t, l.CheckEvent("conn-1", "send_message", 5, time.Minute).Allowed)

	// a flood on send_message does not exhaust the join_room quota
	assert.True(t, l.CheckEvent("conn-1", "join_room", 5, time.Minute).Allowed)
}

func TestRemoveConn(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	require.True(t, l.CheckGlobal("conn-1").Allowed)
	require.False(t, l.CheckGlobal("conn-1").Allowed)
	require.False(t, l.CheckEvent("conn-1", "ping", 0, time.Minute).Allowed)

	l.RemoveConn("conn-1")
	assert.True(t, l.CheckGlobal("conn-1").Allowed)
	assert.Empty(t, l.events)
}
