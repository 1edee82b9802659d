package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-presence/config"
	"github.com/tcriess/lightspeed-presence/types"
)

func newRedisBackend(t *testing.T, mr *miniredis.Miniredis) *RedisBackend {
	t.Helper()
	backend, err := NewRedisBackend(&config.BackendConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestRedisBackendRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	backend := newRedisBackend(t, mr)

	type received struct {
		channel string
		payload []byte
	}
	got := make(chan received, 1)
	require.NoError(t, backend.Subscribe(func(channel string, payload []byte) {
		got <- received{channel: channel, payload: payload}
	}))

	require.NoError(t, backend.Publish(context.Background(), "presence.room.r1", []byte(`{"event":"room_message"}`)))

	select {
	case r := <-got:
		assert.Equal(t, "presence.room.r1", r.channel)
		assert.JSONEq(t, `{"event":"room_message"}`, string(r.payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received from pubsub")
	}
}

// Two managers sharing one Redis stand in for two nodes of a horizontally
// scaled deployment: a room broadcast published on one node must reach
// members whose connections live on the other.
func TestRedisBackendCrossNodeRoomBroadcast(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	mgrA, err := NewManager(newRedisBackend(t, mr), nil)
	require.NoError(t, err)
	mgrB, err := NewManager(newRedisBackend(t, mr), nil)
	require.NoError(t, err)

	fcB := newFakeConn("remote")
	mgrB.Connections.Register(fcB, "")
	cB, err := mgrB.Connections.Authenticate("remote", &types.User{Id: "u1"})
	require.NoError(t, err)
	// joining broadcasts via redis too, wait for the membership to settle
	require.True(t, mgrB.Rooms.Join(cB, "r1", ""))

	mgrA.Rooms.Broadcast(context.Background(), "r1", types.WireEventRoomMessage, map[string]string{"content": "hello"}, "")

	assert.Eventually(t, func() bool {
		return fcB.countEvent(types.WireEventRoomMessage) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLocalBackendSubscribeBeforePublish(t *testing.T) {
	backend := NewLocalBackend()
	var mu sync.Mutex
	delivered := 0
	// a publish before any subscriber must not panic
	require.NoError(t, backend.Publish(context.Background(), channelAll, []byte(`{}`)))
	require.NoError(t, backend.Subscribe(func(channel string, payload []byte) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}))
	require.NoError(t, backend.Publish(context.Background(), channelAll, []byte(`{}`)))
	mu.Lock()
	assert.Equal(t, 1, delivered)
	mu.Unlock()
}
