package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tcriess/lightspeed-presence/auth"
	"github.com/tcriess/lightspeed-presence/config"
	"github.com/tcriess/lightspeed-presence/globals"
	"github.com/tcriess/lightspeed-presence/persistence"
	"github.com/tcriess/lightspeed-presence/ratelimit"
	"github.com/tcriess/lightspeed-presence/registry"
	"github.com/tcriess/lightspeed-presence/types"
)

const (
	maxRoomIdLength    = 100
	maxContentLength   = 5000
	defaultHistorySize = 50
	maxHistorySize     = 500
)

// Per-event rate windows applied on top of the global window, so a flood on
// send_message does not exhaust the quota for join_room. Config may
// override any of these.
var defaultEventLimits = map[string]config.EventLimit{
	types.EventSendMessage:  {MaxRequests: 30, WindowMs: 60000},
	types.EventJoinRoom:     {MaxRequests: 20, WindowMs: 60000},
	types.EventTypingStart:  {MaxRequests: 60, WindowMs: 60000},
	types.EventTypingStop:   {MaxRequests: 60, WindowMs: 60000},
	types.EventUpdateStatus: {MaxRequests: 20, WindowMs: 60000},
}

// Router validates, authorizes and executes inbound events against the
// registries. Handlers compute an AckResult; the transport binding decides
// how to deliver it back (the gorilla binding turns it into an ack
// envelope). Nothing in here may throw past HandleEvent: every failure is
// converted into the wire error taxonomy.
type Router struct {
	mgr           *registry.Manager
	limiter       *ratelimit.Limiter
	authenticator auth.Authenticator
	persister     persistence.Persister
	rateCfg       config.RateLimitConfig
}

func NewRouter(mgr *registry.Manager, limiter *ratelimit.Limiter, authenticator auth.Authenticator, persister persistence.Persister, rateCfg config.RateLimitConfig) *Router {
	return &Router{
		mgr:           mgr,
		limiter:       limiter,
		authenticator: authenticator,
		persister:     persister,
		rateCfg:       rateCfg,
	}
}

// HandleEvent runs the full per-event pipeline: rate limits first (cheapest
// check), then authorization, then payload validation, then the domain
// action. The returned AckResult is nil when the event produced nothing the
// sender needs to hear about.
func (rt *Router) HandleEvent(ctx context.Context, c *registry.Connection, msg types.WebsocketMessage) (res *types.AckResult) {
	defer func() {
		if r := recover(); r != nil {
			globals.AppLogger.Error("event handler panicked", "conn", c.ID(), "event", msg.Event, "panic", fmt.Sprint(r))
			rt.sendError(c, types.ErrCodeInternal, "internal error", nil)
			res = &types.AckResult{Success: false, Error: "internal error"}
		}
	}()

	if !types.KnownInboundEvent(msg.Event) {
		rt.sendError(c, types.ErrCodeValidation, fmt.Sprintf("unknown event %q", msg.Event), nil)
		return nil
	}

	if rl := rt.limiter.CheckGlobal(c.ID()); !rl.Allowed {
		rt.sendRateLimit(c, "", rl)
		return nil
	}
	if limit, ok := rt.eventLimit(msg.Event); ok {
		if rl := rt.limiter.CheckEvent(c.ID(), msg.Event, limit.MaxRequests, time.Duration(limit.WindowMs)*time.Millisecond); !rl.Allowed {
			rt.sendRateLimit(c, msg.Event, rl)
			return nil
		}
	}

	// ping is public, authenticate is how identity arrives; everything
	// else needs an authenticated connection
	if msg.Event != types.EventPing && msg.Event != types.EventAuthenticate && !c.Authenticated() {
		rt.sendError(c, types.ErrCodeUnauthorized, "authentication required", map[string]string{"event": msg.Event})
		return nil
	}

	payload, err := types.DecodeInbound(msg.Event, msg.Data)
	if err != nil {
		rt.sendError(c, types.ErrCodeValidation, err.Error(), nil)
		return nil
	}

	c.Touch()
	switch p := payload.(type) {
	case *types.AuthenticatePayload:
		return rt.handleAuthenticate(ctx, c, p)
	case *types.JoinRoomPayload:
		return rt.handleJoinRoom(c, p)
	case *types.LeaveRoomPayload:
		return rt.handleLeaveRoom(c, p)
	case *types.SendMessagePayload:
		return rt.handleSendMessage(c, p)
	case *types.TypingPayloadIn:
		return rt.handleTyping(c, p)
	case *types.UpdateStatusPayload:
		return rt.handleUpdateStatus(c, p)
	case *types.PingPayload:
		return &types.AckResult{Success: true, Data: map[string]interface{}{"timestamp": time.Now().UTC()}}
	case *types.GetMessageHistoryPayload:
		return rt.handleGetMessageHistory(c, p)
	}
	return nil
}

func (rt *Router) eventLimit(event string) (config.EventLimit, bool) {
	if limit, ok := rt.rateCfg.EventLimits[event]; ok {
		return limit, true
	}
	limit, ok := defaultEventLimits[event]
	return limit, ok
}

// Authenticate resolves the identity and flips the connection into the
// authenticated state. The identity is attached once and not re-validated
// mid-session.
func (rt *Router) handleAuthenticate(ctx context.Context, c *registry.Connection, p *types.AuthenticatePayload) *types.AckResult {
	if c.Authenticated() {
		return &types.AckResult{Success: false, Error: "already authenticated"}
	}
	if p.Token == "" {
		rt.sendError(c, types.ErrCodeValidation, "token is required", nil)
		return nil
	}
	userId, err := rt.authenticator.Authenticate(ctx, p.Token, p.Provider)
	if err != nil || userId == "" {
		if err != nil {
			globals.AppLogger.Debug("authentication failed", "conn", c.ID(), "error", err)
		}
		return &types.AckResult{Success: false, Error: "authentication failed"}
	}
	// the identity lookup suspended us, the connection may be gone by now
	user := rt.lookupUser(userId)
	if _, err := rt.mgr.Connections.Authenticate(c.ID(), user); err != nil {
		return &types.AckResult{Success: false, Error: "connection no longer registered"}
	}
	globals.AppLogger.Info("connection authenticated", "conn", c.ID(), "user", userId)
	return &types.AckResult{Success: true, Data: map[string]interface{}{"user": c.User()}}
}

// lookupUser enriches the identity from the persistence boundary when one
// is configured; a missing record is a fresh user, not an error.
func (rt *Router) lookupUser(userId string) *types.User {
	user := &types.User{Id: userId, Nick: userId, Status: types.StatusOnline}
	if rt.persister != nil {
		stored := &types.User{Id: userId}
		if err := rt.persister.GetUser(stored); err == nil {
			if stored.Nick != "" {
				user.Nick = stored.Nick
			}
			user.Tags = stored.Tags
			user.LastOnline = stored.LastOnline
		}
	}
	return user
}

func (rt *Router) handleJoinRoom(c *registry.Connection, p *types.JoinRoomPayload) *types.AckResult {
	if !validRoomId(p.RoomId) {
		rt.sendError(c, types.ErrCodeValidation, "roomId must be 1-100 characters", nil)
		return nil
	}
	if !rt.mgr.Rooms.Join(c, p.RoomId, "") {
		return &types.AckResult{Success: false, Error: "already a member of this room"}
	}
	room, memberCount := rt.mgr.Rooms.Info(p.RoomId)
	return &types.AckResult{Success: true, Data: map[string]interface{}{
		"room":        room,
		"memberCount": memberCount,
	}}
}

func (rt *Router) handleLeaveRoom(c *registry.Connection, p *types.LeaveRoomPayload) *types.AckResult {
	if !validRoomId(p.RoomId) {
		rt.sendError(c, types.ErrCodeValidation, "roomId must be 1-100 characters", nil)
		return nil
	}
	if !rt.mgr.Rooms.Leave(c, p.RoomId) {
		return &types.AckResult{Success: false, Error: "You are not a member of this room"}
	}
	return &types.AckResult{Success: true}
}

func (rt *Router) handleSendMessage(c *registry.Connection, p *types.SendMessagePayload) *types.AckResult {
	if !validRoomId(p.RoomId) {
		rt.sendError(c, types.ErrCodeValidation, "roomId must be 1-100 characters", nil)
		return nil
	}
	if utf8.RuneCountInString(p.Content) > maxContentLength {
		rt.sendError(c, types.ErrCodeValidation, fmt.Sprintf("content must be at most %d characters", maxContentLength), nil)
		return nil
	}
	content := strings.TrimSpace(p.Content)
	if content == "" {
		rt.sendError(c, types.ErrCodeValidation, "content must not be empty", nil)
		return nil
	}
	user := c.User()
	if !rt.mgr.Rooms.IsMember(user.Id, p.RoomId) {
		return &types.AckResult{Success: false, Error: "You are not a member of this room"}
	}
	message := types.Message{
		RoomId:    p.RoomId,
		UserId:    user.Id,
		Nick:      user.Nick,
		Content:   content,
		Kind:      p.Kind,
		Timestamp: time.Now().UTC(),
	}
	if len(p.Metadata) > 0 {
		if raw, err := json.Marshal(p.Metadata); err == nil {
			message.Metadata = raw
		}
	}
	if err := message.CreateId(); err != nil {
		globals.AppLogger.Error("could not hash message", "error", err)
		rt.sendError(c, types.ErrCodeInternal, "internal error", nil)
		return &types.AckResult{Success: false, Error: "internal error"}
	}
	if rt.persister != nil {
		if err := rt.persister.StoreMessage(message); err != nil {
			globals.AppLogger.Error("could not persist message", "error", err)
		}
	}
	rt.mgr.Rooms.Broadcast(context.Background(), p.RoomId, types.WireEventRoomMessage, message, c.ID())
	return &types.AckResult{Success: true, Data: map[string]interface{}{"message": message}}
}

// Typing indicators silently no-op for non-members: they are advisory, the
// sender gets no error to react to.
func (rt *Router) handleTyping(c *registry.Connection, p *types.TypingPayloadIn) *types.AckResult {
	if !validRoomId(p.RoomId) {
		rt.sendError(c, types.ErrCodeValidation, "roomId must be 1-100 characters", nil)
		return nil
	}
	user := c.User()
	if !rt.mgr.Rooms.IsMember(user.Id, p.RoomId) {
		return nil
	}
	rt.mgr.Rooms.Broadcast(context.Background(), p.RoomId, p.EventName(), types.TypingPayload{
		RoomId:    p.RoomId,
		UserId:    user.Id,
		Timestamp: time.Now().UTC(),
	}, c.ID())
	return &types.AckResult{Success: true}
}

func (rt *Router) handleUpdateStatus(c *registry.Connection, p *types.UpdateStatusPayload) *types.AckResult {
	if !types.ValidStatus(p.Status) {
		rt.sendError(c, types.ErrCodeValidation, "status must be one of online, away, busy, offline", nil)
		return nil
	}
	userId := c.UserId()
	rt.mgr.Connections.SetStatus(userId, p.Status)
	rt.mgr.Connections.BroadcastAll(context.Background(), types.WireEventUserUpdated, types.UserUpdatedPayload{
		UserId:    userId,
		Status:    p.Status,
		Timestamp: time.Now().UTC(),
	}, userId)
	return &types.AckResult{Success: true}
}

// handleGetMessageHistory is the placeholder boundary towards persistence:
// without a configured store it acks an empty history.
func (rt *Router) handleGetMessageHistory(c *registry.Connection, p *types.GetMessageHistoryPayload) *types.AckResult {
	if !validRoomId(p.RoomId) {
		rt.sendError(c, types.ErrCodeValidation, "roomId must be 1-100 characters", nil)
		return nil
	}
	if !rt.mgr.Rooms.IsMember(c.UserId(), p.RoomId) {
		return &types.AckResult{Success: false, Error: "You are not a member of this room"}
	}
	limit := p.Limit
	if limit <= 0 {
		limit = defaultHistorySize
	}
	if limit > maxHistorySize {
		limit = maxHistorySize
	}
	messages := make([]*types.Message, 0)
	if rt.persister != nil {
		var err error
		messages, err = rt.persister.GetMessageHistory(p.RoomId, limit)
		if err != nil {
			globals.AppLogger.Error("could not load message history", "room", p.RoomId, "error", err)
			return &types.AckResult{Success: false, Error: "could not load history"}
		}
	}
	return &types.AckResult{Success: true, Data: map[string]interface{}{"messages": messages}}
}

// Bounds count characters, not bytes, so multi-byte content is not
// penalized.
func validRoomId(roomId string) bool {
	n := utf8.RuneCountInString(roomId)
	return n >= 1 && n <= maxRoomIdLength
}

// sendError surfaces a validation/authorization failure to the sender only.
// Delivery is best-effort.
func (rt *Router) sendError(c *registry.Connection, code, message string, details interface{}) {
	if err := c.Send(types.WireEventError, types.NewErrorPayload(code, message, details)); err != nil {
		globals.AppLogger.Debug("could not deliver error event", "conn", c.ID(), "error", err)
	}
}

// sendRateLimit signals an expected, recoverable condition; a transport
// error while delivering the notice is swallowed.
func (rt *Router) sendRateLimit(c *registry.Connection, event string, rl ratelimit.Result) {
	_ = c.Send(types.WireEventRateLimit, types.RateLimitPayload{
		Event:      event,
		RetryAfter: ratelimit.RetryAfterSeconds(rl.RetryAfter),
		Timestamp:  time.Now().UTC(),
	})
}
