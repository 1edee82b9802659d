package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/antonmedv/expr/vm"
	"github.com/tcriess/lightspeed-presence/filter"
	"github.com/tcriess/lightspeed-presence/globals"
	"github.com/tcriess/lightspeed-presence/types"
)

// Connections maps live transport sessions to user identity and answers
// presence queries. It is the sole owner of Connection lifecycles; the room
// registry only holds back-references.
type Connections struct {
	backend Backend

	mu     sync.RWMutex
	conns  map[string]*Connection
	byUser map[string]map[string]*Connection
}

func NewConnections(backend Backend) *Connections {
	return &Connections{
		backend: backend,
		conns:   make(map[string]*Connection),
		byUser:  make(map[string]map[string]*Connection),
	}
}

// Register adds a new live connection in the anonymous state. A duplicate
// connection id is a programming error, not a recoverable condition.
func (r *Connections) Register(conn Conn, guestNick string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID()]; ok {
		panic(fmt.Sprintf("registry: duplicate connection id %q", conn.ID()))
	}
	c := &Connection{
		Conn:         conn,
		guestNick:    guestNick,
		createdAt:    time.Now(),
		lastActivity: time.Now(),
	}
	r.conns[conn.ID()] = c
	globals.AppLogger.Debug("connection registered", "conn", conn.ID(), "total", len(r.conns))
	return c
}

// Authenticate attaches an identity to a registered connection and indexes
// it under the user id. If this is the user's first live connection, a
// user_online presence broadcast goes out exactly once, excluding the
// user's own connections.
func (r *Connections) Authenticate(connId string, user *types.User) (*Connection, error) {
	r.mu.Lock()
	c, ok := r.conns[connId]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("unknown connection %q", connId)
	}
	if user.Status == "" {
		user.Status = types.StatusOnline
	}
	c.attachUser(user)
	byConn, ok := r.byUser[user.Id]
	if !ok {
		byConn = make(map[string]*Connection)
		r.byUser[user.Id] = byConn
	}
	wasOffline := len(byConn) == 0
	byConn[connId] = c
	r.mu.Unlock()

	if wasOffline {
		r.BroadcastAll(context.Background(), types.WireEventUserOnline, types.PresencePayload{
			UserId:    user.Id,
			Timestamp: time.Now().UTC(),
		}, user.Id)
	}
	return c, nil
}

// Deregister removes the connection. If it was the user's last live
// connection, a user_offline presence broadcast goes out exactly once.
// Unknown ids are a no-op (the janitor and the disconnect handler may
// race).
func (r *Connections) Deregister(connId string) {
	r.mu.Lock()
	c, ok := r.conns[connId]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connId)
	userId := c.UserId()
	wentOffline := false
	if userId != "" {
		if byConn, ok := r.byUser[userId]; ok {
			delete(byConn, connId)
			if len(byConn) == 0 {
				delete(r.byUser, userId)
				wentOffline = true
			}
		}
	}
	r.mu.Unlock()

	if wentOffline {
		r.BroadcastAll(context.Background(), types.WireEventUserOffline, types.PresencePayload{
			UserId:    userId,
			Timestamp: time.Now().UTC(),
		}, userId)
	}
}

// Get returns the tracked connection for an id, or nil.
func (r *Connections) Get(connId string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[connId]
}

func (r *Connections) IsOnline(userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userId]) > 0
}

func (r *Connections) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.byUser))
	for userId := range r.byUser {
		users = append(users, userId)
	}
	return users
}

// NoConnections returns the number of live connections on this node.
func (r *Connections) NoConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns all tracked connections, for the cleanup sweep.
func (r *Connections) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// SetStatus updates the status on every live connection of the user.
func (r *Connections) SetStatus(userId, status string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byUser[userId] {
		c.setStatus(status)
	}
}

// SendToUser delivers one event to every live connection of the user. The
// return value reports whether the user had any connection on this node;
// the caller decides whether offline is a failure. With a distributed
// backend the publish still goes out, so connections on other nodes are
// reached either way.
func (r *Connections) SendToUser(ctx context.Context, userId, event string, data interface{}) bool {
	online := r.IsOnline(userId)
	if err := r.publish(ctx, userChannel(userId), event, data, "", "", ""); err != nil {
		globals.AppLogger.Error("could not publish to user channel", "user", userId, "error", err)
		return false
	}
	return online
}

// BroadcastAll delivers one event to every connection, except those owned
// by excludeUserId (used to avoid echoing a user's own presence update back
// to themselves).
func (r *Connections) BroadcastAll(ctx context.Context, event string, data interface{}, excludeUserId string) {
	if err := r.publish(ctx, channelAll, event, data, "", excludeUserId, ""); err != nil {
		globals.AppLogger.Error("could not publish broadcast", "event", event, "error", err)
	}
}

// BroadcastAllFiltered additionally carries a target filter expression that
// each node evaluates per recipient at delivery time.
func (r *Connections) BroadcastAllFiltered(ctx context.Context, event string, data interface{}, excludeUserId, targetFilter string) {
	if err := r.publish(ctx, channelAll, event, data, "", excludeUserId, targetFilter); err != nil {
		globals.AppLogger.Error("could not publish broadcast", "event", event, "error", err)
	}
}

func (r *Connections) publish(ctx context.Context, channel, event string, data interface{}, excludeConn, excludeUser, targetFilter string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(frame{
		Event:       event,
		Data:        raw,
		ExcludeConn: excludeConn,
		ExcludeUser: excludeUser,
		Filter:      targetFilter,
	})
	if err != nil {
		return err
	}
	return r.backend.Publish(ctx, channel, payload)
}

// deliverAll fans a received frame out to every local connection.
func (r *Connections) deliverAll(f *frame) {
	prog := compileFrameFilter(f)
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	for _, c := range conns {
		r.deliverConn(c, f, prog)
	}
}

// deliverUser fans a received frame out to the user's local connections.
func (r *Connections) deliverUser(userId string, f *frame) {
	prog := compileFrameFilter(f)
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byUser[userId]))
	for _, c := range r.byUser[userId] {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	for _, c := range conns {
		r.deliverConn(c, f, prog)
	}
}

func (r *Connections) deliverConn(c *Connection, f *frame, prog frameFilter) {
	if f.ExcludeConn != "" && c.ID() == f.ExcludeConn {
		return
	}
	if f.ExcludeUser != "" && c.UserId() == f.ExcludeUser {
		return
	}
	if !prog.match(c) {
		return
	}
	if err := c.Send(f.Event, f.Data); err != nil {
		globals.AppLogger.Debug("could not deliver event", "conn", c.ID(), "event", f.Event, "error", err)
	}
}

// frameFilter is the compiled per-broadcast target filter, evaluated
// against each candidate recipient at delivery time.
type frameFilter struct {
	prog         *vm.Program
	broken       bool
	notification *types.Notification
}

func compileFrameFilter(f *frame) frameFilter {
	if f.Filter == "" {
		return frameFilter{}
	}
	prog, err := filter.Compile(f.Filter)
	if err != nil || prog == nil {
		globals.AppLogger.Error("could not compile target filter", "filter", f.Filter, "error", err)
		// a broken filter matches nobody rather than everybody
		return frameFilter{broken: true}
	}
	notification := &types.Notification{}
	if err := json.Unmarshal(f.Data, notification); err != nil {
		notification = &types.Notification{}
	}
	return frameFilter{prog: prog, notification: notification}
}

func (ff frameFilter) match(c *Connection) bool {
	if ff.broken {
		return false
	}
	if ff.prog == nil {
		return true
	}
	user := c.User()
	if user == nil {
		// anonymous connections are never filter targets
		return false
	}
	return filter.Match(ff.prog, user, ff.notification)
}
