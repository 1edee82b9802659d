package types

import (
	"encoding/json"
	"time"
)

// Outbound wire event names. These are part of the client protocol and must
// not change.
const (
	WireEventConnected    = "connected"
	WireEventUserOnline   = "user_online"
	WireEventUserOffline  = "user_offline"
	WireEventUserUpdated  = "user_updated"
	WireEventRoomJoined   = "room_joined"
	WireEventRoomLeft     = "room_left"
	WireEventRoomMessage  = "room_message"
	WireEventNotification = "notification"
	WireEventError        = "error"
	WireEventRateLimit    = "rate_limit_exceeded"
	WireEventTypingStart  = "typing_start"
	WireEventTypingStop   = "typing_stop"
	WireEventAck          = "ack"
)

// Error codes carried in the error event payload.
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// JSON-serialized WebsocketMessage is what is actually sent via the
// Websocket connection, in both directions. AckId, if set on an inbound
// message, asks the server to correlate an ack envelope with the result of
// the operation.
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckId string          `json:"ackId,omitempty"`
}

// ErrorPayload is the data of an outbound error event.
type ErrorPayload struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
	Details   interface{} `json:"details,omitempty"`
}

// RateLimitPayload is the data of a rate_limit_exceeded event.
type RateLimitPayload struct {
	Event      string    `json:"event,omitempty"`
	RetryAfter int       `json:"retryAfter"` // seconds
	Timestamp  time.Time `json:"timestamp"`
}

// AckResult is the request/response half of the protocol: handlers compute
// one of these and the transport binding turns it into an ack envelope for
// the requesting client.
type AckResult struct {
	AckId   string      `json:"ackId,omitempty"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ConnectedPayload greets a freshly upgraded connection.
type ConnectedPayload struct {
	ConnId    string    `json:"connId"`
	UserId    string    `json:"userId,omitempty"`
	GuestNick string    `json:"guestNick,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PresencePayload is the data of user_online / user_offline broadcasts.
type PresencePayload struct {
	UserId    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// UserUpdatedPayload is the data of a user_updated broadcast.
type UserUpdatedPayload struct {
	UserId    string    `json:"userId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomEventPayload is the data of room_joined / room_left broadcasts.
type RoomEventPayload struct {
	RoomId      string    `json:"roomId"`
	UserId      string    `json:"userId"`
	MemberCount int       `json:"memberCount"`
	Timestamp   time.Time `json:"timestamp"`
}

// TypingPayload is the data of typing_start / typing_stop broadcasts.
type TypingPayload struct {
	RoomId    string    `json:"roomId"`
	UserId    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorPayload is a convenience constructor stamping the current time.
func NewErrorPayload(code, message string, details interface{}) ErrorPayload {
	return ErrorPayload{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
}
