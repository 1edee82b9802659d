package types

import (
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"gorm.io/datatypes"
)

// Message is a room-scoped chat message as broadcast via room_message and
// returned in the sender's ack.
type Message struct {
	Id        string         `json:"id" gorm:"primaryKey"`
	RoomId    string         `json:"roomId" gorm:"index"`
	UserId    string         `json:"userId"`
	Nick      string         `json:"nick"`
	Content   string         `json:"content"`
	Kind      string         `json:"type,omitempty"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp" gorm:"index"`
}

// CreateId derives the message id from a hash over the message contents.
// Timestamp is part of the hash, so it must be set first.
func (m *Message) CreateId() error {
	hash, err := hashstructure.Hash(m, hashstructure.FormatV2, nil)
	if err != nil {
		return err
	}
	m.Id = fmt.Sprintf("%016x", hash)
	return nil
}
