package persistence

import (
	"fmt"
	"time"

	"github.com/tcriess/lightspeed-presence/config"
	"github.com/tcriess/lightspeed-presence/types"
)

// Persister is the external persistence boundary. The realtime layer works
// without one: a nil Persister means message history requests are answered
// with an empty list and nothing is stored.
type Persister interface {
	StoreMessage(types.Message) error
	GetMessageHistory(roomId string, limit int) ([]*types.Message, error)
	PurgeMessages(roomId string, before time.Time) (int64, error)
	StoreUser(types.User) error
	GetUser(*types.User) error
	GetUsers() ([]*types.User, error)
	Close() error
}

// NewPersister selects the backend from the configuration. An empty DSN
// yields a nil persister, which is a valid deployment.
func NewPersister(cfg *config.Config) (Persister, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	switch cfg.PersistenceConfig.Type {
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	case "buntdb":
		return NewBuntPersister(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}
