package persistence

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-presence/config"
	"github.com/tcriess/lightspeed-presence/types"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{PersistenceConfig: config.PersistenceConfig{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "presence.db"),
	}}
}

func buntConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{PersistenceConfig: config.PersistenceConfig{
		Type: "buntdb",
		DSN:  ":memory:",
	}}
}

func eachPersister(t *testing.T, fn func(t *testing.T, p Persister)) {
	t.Helper()
	for name, cfg := range map[string]*config.Config{
		"sqlite": sqliteConfig(t),
		"buntdb": buntConfig(t),
	} {
		t.Run(name, func(t *testing.T) {
			p, err := NewPersister(cfg)
			require.NoError(t, err)
			require.NotNil(t, p)
			t.Cleanup(func() { _ = p.Close() })
			fn(t, p)
		})
	}
}

func makeMessage(t *testing.T, roomId, content string, ts time.Time) types.Message {
	t.Helper()
	m := types.Message{
		RoomId:    roomId,
		UserId:    "u1",
		Nick:      "alice",
		Content:   content,
		Timestamp: ts,
	}
	require.NoError(t, m.CreateId())
	return m
}

func TestNewPersisterSelection(t *testing.T) {
	p, err := NewPersister(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, p, "empty DSN disables persistence")

	_, err = NewPersister(&config.Config{PersistenceConfig: config.PersistenceConfig{Type: "etcd", DSN: "x"}})
	assert.Error(t, err)
}

func TestMessageHistoryOrderAndLimit(t *testing.T) {
	eachPersister(t, func(t *testing.T, p Persister) {
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 5; i++ {
			m := makeMessage(t, "r1", fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Second))
			require.NoError(t, p.StoreMessage(m))
		}
		require.NoError(t, p.StoreMessage(makeMessage(t, "r2", "other room", base)))

		history, err := p.GetMessageHistory("r1", 3)
		require.NoError(t, err)
		require.Len(t, history, 3)
		// the newest 3, oldest first
		assert.Equal(t, "message 2", history[0].Content)
		assert.Equal(t, "message 3", history[1].Content)
		assert.Equal(t, "message 4", history[2].Content)

		history, err = p.GetMessageHistory("r2", 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "other room", history[0].Content)

		history, err = p.GetMessageHistory("empty", 10)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestStoreMessageIdempotent(t *testing.T) {
	eachPersister(t, func(t *testing.T, p Persister) {
		m := makeMessage(t, "r1", "hello", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
		require.NoError(t, p.StoreMessage(m))
		require.NoError(t, p.StoreMessage(m))

		history, err := p.GetMessageHistory("r1", 10)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})
}

func TestPurgeMessages(t *testing.T) {
	eachPersister(t, func(t *testing.T, p Persister) {
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 4; i++ {
			m := makeMessage(t, "r1", fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Hour))
			require.NoError(t, p.StoreMessage(m))
		}

		purged, err := p.PurgeMessages("r1", base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), purged)

		history, err := p.GetMessageHistory("r1", 10)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "message 2", history[0].Content)
	})
}

func TestStoreAndGetUser(t *testing.T) {
	eachPersister(t, func(t *testing.T, p Persister) {
		lastOnline := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		user := types.User{Id: "u1", Nick: "alice", Status: types.StatusOnline, LastOnline: lastOnline}
		require.NoError(t, p.StoreUser(user))

		got := types.User{Id: "u1"}
		require.NoError(t, p.GetUser(&got))
		assert.Equal(t, "alice", got.Nick)
		assert.True(t, got.LastOnline.Equal(lastOnline))

		// upsert overwrites
		user.Nick = "alice2"
		require.NoError(t, p.StoreUser(user))
		got = types.User{Id: "u1"}
		require.NoError(t, p.GetUser(&got))
		assert.Equal(t, "alice2", got.Nick)

		missing := types.User{Id: "nope"}
		assert.Error(t, p.GetUser(&missing))
	})
}

func TestGetUsers(t *testing.T) {
	eachPersister(t, func(t *testing.T, p Persister) {
		require.NoError(t, p.StoreUser(types.User{Id: "u1", Nick: "alice"}))
		require.NoError(t, p.StoreUser(types.User{Id: "u2", Nick: "bob"}))

		users, err := p.GetUsers()
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})
}
