package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationInfo    = "info"
	NotificationSuccess = "success"
	NotificationWarning = "warning"
	NotificationError   = "error"
)

// Notification is an at-most-once outbound payload pushed to connected
// clients. It is constructed immediately before dispatch and never
// persisted; offline targets are reported to the caller, not queued.
type Notification struct {
	Id        string                 `json:"id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	UserId    string                 `json:"userId,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewNotification fills in the generated id and the dispatch timestamp.
func NewNotification(kind, title, message string, data map[string]interface{}) *Notification {
	return &Notification{
		Id:        uuid.NewString(),
		Type:      kind,
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
