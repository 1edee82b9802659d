package types

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Inbound wire event names.
const (
	EventAuthenticate      = "authenticate"
	EventJoinRoom          = "join_room"
	EventLeaveRoom         = "leave_room"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventUpdateStatus      = "update_status"
	EventPing              = "ping"
	EventGetMessageHistory = "get_message_history"
)

// InboundEvent is the tagged union of all client-to-server payloads. Each
// variant corresponds to exactly one wire event name; the router dispatches
// over the concrete type.
type InboundEvent interface {
	EventName() string
}

type AuthenticatePayload struct {
	Token    string `mapstructure:"token"`
	Provider string `mapstructure:"provider"`
}

type JoinRoomPayload struct {
	RoomId string `mapstructure:"roomId"`
}

type LeaveRoomPayload struct {
	RoomId string `mapstructure:"roomId"`
}

type SendMessagePayload struct {
	RoomId   string                 `mapstructure:"roomId"`
	Content  string                 `mapstructure:"content"`
	Kind     string                 `mapstructure:"type"`
	Metadata map[string]interface{} `mapstructure:"metadata"`
}

type TypingPayloadIn struct {
	RoomId string `mapstructure:"roomId"`
	Stop   bool   `mapstructure:"-"`
}

type UpdateStatusPayload struct {
	Status string `mapstructure:"status"`
}

type PingPayload struct{}

type GetMessageHistoryPayload struct {
	RoomId string `mapstructure:"roomId"`
	Limit  int    `mapstructure:"limit"`
}

func (AuthenticatePayload) EventName() string      { return EventAuthenticate }
func (JoinRoomPayload) EventName() string          { return EventJoinRoom }
func (LeaveRoomPayload) EventName() string         { return EventLeaveRoom }
func (SendMessagePayload) EventName() string       { return EventSendMessage }
func (UpdateStatusPayload) EventName() string      { return EventUpdateStatus }
func (PingPayload) EventName() string              { return EventPing }
func (GetMessageHistoryPayload) EventName() string { return EventGetMessageHistory }

func (p TypingPayloadIn) EventName() string {
	if p.Stop {
		return EventTypingStop
	}
	return EventTypingStart
}

// KnownInboundEvent reports whether name is part of the inbound catalogue.
func KnownInboundEvent(name string) bool {
	switch name {
	case EventAuthenticate, EventJoinRoom, EventLeaveRoom, EventSendMessage,
		EventTypingStart, EventTypingStop, EventUpdateStatus, EventPing,
		EventGetMessageHistory:
		return true
	}
	return false
}

// DecodeInbound turns the raw data of a WebsocketMessage into the typed
// payload for the given event name. Unknown event names and malformed
// payloads are validation errors for the caller to surface.
func DecodeInbound(event string, raw json.RawMessage) (InboundEvent, error) {
	payloadMap := make(map[string]interface{})
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payloadMap); err != nil {
			return nil, fmt.Errorf("could not unmarshal %s payload: %w", event, err)
		}
	}
	decode := func(out InboundEvent) (InboundEvent, error) {
		if err := mapstructure.WeakDecode(payloadMap, out); err != nil {
			return nil, fmt.Errorf("could not decode %s payload: %w", event, err)
		}
		return out, nil
	}
	switch event {
	case EventAuthenticate:
		return decode(&AuthenticatePayload{})
	case EventJoinRoom:
		return decode(&JoinRoomPayload{})
	case EventLeaveRoom:
		return decode(&LeaveRoomPayload{})
	case EventSendMessage:
		return decode(&SendMessagePayload{})
	case EventTypingStart:
		return decode(&TypingPayloadIn{})
	case EventTypingStop:
		return decode(&TypingPayloadIn{Stop: true})
	case EventUpdateStatus:
		return decode(&UpdateStatusPayload{})
	case EventPing:
		return &PingPayload{}, nil
	case EventGetMessageHistory:
		return decode(&GetMessageHistoryPayload{})
	}
	return nil, fmt.Errorf("unknown event %q", event)
}
