package registry

import (
	"context"
	"encoding/json"
	"sync"
)

// Broadcast channel names. With the Redis backend these are pub/sub
// channels shared by all nodes; with the local backend they are purely
// in-process routing keys.
const (
	channelAll        = "presence.all"
	channelUserPrefix = "presence.user."
	channelRoomPrefix = "presence.room."
)

func userChannel(userId string) string { return channelUserPrefix + userId }
func roomChannel(roomId string) string { return channelRoomPrefix + roomId }

// frame is the unit published on a broadcast channel. Exclusions travel
// inside the frame so that every node applies them locally during fan-out.
type frame struct {
	Event       string          `json:"event"`
	Data        json.RawMessage `json:"data,omitempty"`
	ExcludeConn string          `json:"exclude_conn,omitempty"`
	ExcludeUser string          `json:"exclude_user,omitempty"`
	Filter      string          `json:"filter,omitempty"`
}

// Backend is the pluggable broadcast transport between registries. The
// registries call only this interface; whether a publish stays in-process
// or crosses nodes is the backend's business.
type Backend interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe installs the single delivery handler. It must be called
	// exactly once, before the first Publish.
	Subscribe(handler func(channel string, payload []byte)) error
	Close() error
}

// LocalBackend short-circuits publishes back into the local delivery
// handler. This is the single-node default.
type LocalBackend struct {
	mu      sync.RWMutex
	handler func(channel string, payload []byte)
}

func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

func (b *LocalBackend) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	handler := b.handler
	b.mu.RUnlock()
	if handler != nil {
		handler(channel, payload)
	}
	return nil
}

func (b *LocalBackend) Subscribe(handler func(channel string, payload []byte)) error {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()
	return nil
}

func (b *LocalBackend) Close() error { return nil }
