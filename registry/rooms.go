package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tcriess/lightspeed-presence/globals"
	"github.com/tcriess/lightspeed-presence/types"
)

type roomState struct {
	room    types.Room
	members map[string]*types.Membership // keyed by connection id
}

// Rooms maps room ids to member records and performs room-scoped fan-out.
// Rooms are created implicitly on first join and deleted when they become
// empty, unless their id carries one of the reserved prefixes.
type Rooms struct {
	conns    *Connections
	reserved []string

	mu        sync.RWMutex
	rooms     map[string]*roomState
	userRooms map[string]map[string]int      // userId -> roomId -> membership count, keeps IsMember O(1)
	connRooms map[string]map[string]struct{} // connId -> roomIds
}

func NewRooms(conns *Connections, reservedPrefixes []string) *Rooms {
	return &Rooms{
		conns:     conns,
		reserved:  reservedPrefixes,
		rooms:     make(map[string]*roomState),
		userRooms: make(map[string]map[string]int),
		connRooms: make(map[string]map[string]struct{}),
	}
}

func (r *Rooms) isReserved(roomId string) bool {
	for _, prefix := range r.reserved {
		if strings.HasPrefix(roomId, prefix) {
			return true
		}
	}
	return false
}

func roomKind(roomId string) string {
	if strings.HasPrefix(roomId, "direct:") {
		return types.RoomKindDirect
	}
	return types.RoomKindPublic
}

// Join adds the connection to the room, creating the room if absent. A
// connection already in the room is refused with false, which is not an
// error (idempotent-refusal). Existing members get a room_joined broadcast,
// excluding the joining connection.
func (r *Rooms) Join(c *Connection, roomId, role string) bool {
	if role == "" {
		role = types.RoleMember
	}
	userId := c.UserId()
	now := time.Now()

	r.mu.Lock()
	state, ok := r.rooms[roomId]
	if !ok {
		state = &roomState{
			room: types.Room{
				Id:        roomId,
				Name:      roomId,
				Kind:      roomKind(roomId),
				CreatedAt: now,
			},
			members: make(map[string]*types.Membership),
		}
		r.rooms[roomId] = state
	}
	if _, member := state.members[c.ID()]; member {
		r.mu.Unlock()
		return false
	}
	state.members[c.ID()] = &types.Membership{
		UserId:   userId,
		ConnId:   c.ID(),
		JoinedAt: now,
		Role:     role,
	}
	byRoom, ok := r.userRooms[userId]
	if !ok {
		byRoom = make(map[string]int)
		r.userRooms[userId] = byRoom
	}
	byRoom[roomId]++
	byConn, ok := r.connRooms[c.ID()]
	if !ok {
		byConn = make(map[string]struct{})
		r.connRooms[c.ID()] = byConn
	}
	byConn[roomId] = struct{}{}
	memberCount := len(state.members)
	r.mu.Unlock()

	globals.AppLogger.Debug("joined room", "room", roomId, "user", userId, "conn", c.ID(), "members", memberCount)
	r.Broadcast(context.Background(), roomId, types.WireEventRoomJoined, types.RoomEventPayload{
		RoomId:      roomId,
		UserId:      userId,
		MemberCount: memberCount,
		Timestamp:   now.UTC(),
	}, c.ID())
	return true
}

// Leave removes the connection from the room, deleting the room when it
// becomes empty and is not reserved. Remaining members get a room_left
// broadcast. Returns false if the connection was not a member.
func (r *Rooms) Leave(c *Connection, roomId string) bool {
	userId := c.UserId()

	r.mu.Lock()
	state, ok := r.rooms[roomId]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, member := state.members[c.ID()]; !member {
		r.mu.Unlock()
		return false
	}
	delete(state.members, c.ID())
	r.dropIndexes(userId, c.ID(), roomId)
	memberCount := len(state.members)
	if memberCount == 0 && !r.isReserved(roomId) {
		delete(r.rooms, roomId)
	}
	r.mu.Unlock()

	globals.AppLogger.Debug("left room", "room", roomId, "user", userId, "conn", c.ID(), "members", memberCount)
	if memberCount > 0 {
		r.Broadcast(context.Background(), roomId, types.WireEventRoomLeft, types.RoomEventPayload{
			RoomId:      roomId,
			UserId:      userId,
			MemberCount: memberCount,
			Timestamp:   time.Now().UTC(),
		}, c.ID())
	}
	return true
}

// LeaveAll removes the connection from every room it joined. Convenience
// for the disconnect path; a connection in zero rooms is a no-op.
func (r *Rooms) LeaveAll(c *Connection) {
	r.mu.RLock()
	roomIds := make([]string, 0, len(r.connRooms[c.ID()]))
	for roomId := range r.connRooms[c.ID()] {
		roomIds = append(roomIds, roomId)
	}
	r.mu.RUnlock()
	for _, roomId := range roomIds {
		r.Leave(c, roomId)
	}
}

// dropIndexes must be called with the write lock held.
func (r *Rooms) dropIndexes(userId, connId, roomId string) {
	if byRoom, ok := r.userRooms[userId]; ok {
		byRoom[roomId]--
		if byRoom[roomId] <= 0 {
			delete(byRoom, roomId)
		}
		if len(byRoom) == 0 {
			delete(r.userRooms, userId)
		}
	}
	if byConn, ok := r.connRooms[connId]; ok {
		delete(byConn, roomId)
		if len(byConn) == 0 {
			delete(r.connRooms, connId)
		}
	}
}

// Members returns the membership records of a room.
func (r *Rooms) Members(roomId string) []types.Membership {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.rooms[roomId]
	if !ok {
		return nil
	}
	members := make([]types.Membership, 0, len(state.members))
	for _, m := range state.members {
		members = append(members, *m)
	}
	return members
}

// Info returns the room and its live member count, or nil if absent.
func (r *Rooms) Info(roomId string) (*types.Room, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.rooms[roomId]
	if !ok {
		return nil, 0
	}
	room := state.room
	return &room, len(state.members)
}

// IsMember evaluates membership by user id: any one of the user's
// connections being in the room counts, which is what authorization checks
// need.
func (r *Rooms) IsMember(userId, roomId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userRooms[userId][roomId] > 0
}

// NoRooms returns the number of rooms currently tracked on this node.
func (r *Rooms) NoRooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Broadcast delivers one event to every member connection of the room,
// optionally excluding one connection id (usually the sender). Fan-out is
// best-effort, not transactional: members joining or leaving during
// delivery may or may not see the event.
func (r *Rooms) Broadcast(ctx context.Context, roomId, event string, data interface{}, excludeConnId string) {
	if err := r.conns.publish(ctx, roomChannel(roomId), event, data, excludeConnId, "", ""); err != nil {
		globals.AppLogger.Error("could not publish to room channel", "room", roomId, "event", event, "error", err)
	}
}

// BroadcastFiltered additionally carries a target filter evaluated per
// recipient at delivery time.
func (r *Rooms) BroadcastFiltered(ctx context.Context, roomId, event string, data interface{}, excludeConnId, targetFilter string) {
	if err := r.conns.publish(ctx, roomChannel(roomId), event, data, excludeConnId, "", targetFilter); err != nil {
		globals.AppLogger.Error("could not publish to room channel", "room", roomId, "event", event, "error", err)
	}
}

// deliverRoom fans a received frame out to the room's local members.
func (r *Rooms) deliverRoom(roomId string, f *frame) {
	prog := compileFrameFilter(f)
	r.mu.RLock()
	state, ok := r.rooms[roomId]
	if !ok {
		r.mu.RUnlock()
		return
	}
	connIds := make([]string, 0, len(state.members))
	for connId := range state.members {
		connIds = append(connIds, connId)
	}
	r.mu.RUnlock()
	for _, connId := range connIds {
		if c := r.conns.Get(connId); c != nil {
			r.conns.deliverConn(c, f, prog)
		}
	}
}

// SweepEmpty deletes empty, non-reserved rooms older than the retention
// threshold. Emptied-but-young rooms are left alone; the regular leave path
// already removes rooms the moment they empty out.
func (r *Rooms) SweepEmpty(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)
	removed := 0
	r.mu.Lock()
	for roomId, state := range r.rooms {
		if len(state.members) > 0 || r.isReserved(roomId) {
			continue
		}
		if state.room.CreatedAt.Before(cutoff) {
			delete(r.rooms, roomId)
			removed++
		}
	}
	r.mu.Unlock()
	if removed > 0 {
		globals.AppLogger.Info("removed stale rooms", "count", removed)
	}
	return removed
}
