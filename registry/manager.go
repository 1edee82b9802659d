package registry

import (
	"encoding/json"
	"strings"

	"github.com/tcriess/lightspeed-presence/globals"
)

// Manager owns the connection and room registries and their shared
// broadcast backend. It is constructed once at process start and passed by
// reference to every component that needs registry access; there are no
// package-level registry singletons, so tests can run several isolated
// instances side by side.
type Manager struct {
	Connections *Connections
	Rooms       *Rooms

	backend Backend
}

func NewManager(backend Backend, reservedPrefixes []string) (*Manager, error) {
	conns := NewConnections(backend)
	rooms := NewRooms(conns, reservedPrefixes)
	m := &Manager{
		Connections: conns,
		Rooms:       rooms,
		backend:     backend,
	}
	if err := backend.Subscribe(m.deliver); err != nil {
		return nil, err
	}
	return m, nil
}

// deliver routes a received broadcast frame to the registry that owns the
// channel's scope.
func (m *Manager) deliver(channel string, payload []byte) {
	f := &frame{}
	if err := json.Unmarshal(payload, f); err != nil {
		globals.AppLogger.Error("could not unmarshal broadcast frame", "channel", channel, "error", err)
		return
	}
	switch {
	case channel == channelAll:
		m.Connections.deliverAll(f)
	case strings.HasPrefix(channel, channelUserPrefix):
		m.Connections.deliverUser(channel[len(channelUserPrefix):], f)
	case strings.HasPrefix(channel, channelRoomPrefix):
		m.Rooms.deliverRoom(channel[len(channelRoomPrefix):], f)
	default:
		globals.AppLogger.Warn("frame on unknown channel", "channel", channel)
	}
}

// Disconnect runs the full teardown for one connection: leave every room,
// then deregister. Terminal; no further events are processed for this
// connection id. Safe to call twice (the janitor and the transport close
// handler may both get here).
func (m *Manager) Disconnect(connId string) {
	c := m.Connections.Get(connId)
	if c == nil {
		return
	}
	m.Rooms.LeaveAll(c)
	m.Connections.Deregister(connId)
}

func (m *Manager) Close() error {
	return m.backend.Close()
}
