package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tcriess/lightspeed-presence/config"
	"github.com/tcriess/lightspeed-presence/types"
	"github.com/tidwall/buntdb"
)

type BuntDBPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	db, err := buntdb.Open(cfg.PersistenceConfig.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.CreateIndex("messagets", "message:*", buntdb.IndexJSON("timestamp")); err != nil && err != buntdb.ErrIndexExists {
		db.Close()
		return nil, err
	}
	return &BuntDBPersist{db: db}, nil
}

func messageKey(roomId string, ts time.Time, id string) string {
	return fmt.Sprintf("message:%s:%020d:%s", roomId, ts.UnixNano(), id)
}

func (p *BuntDBPersist) StoreMessage(message types.Message) error {
	m, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(messageKey(message.RoomId, message.Timestamp, message.Id), string(m), nil)
		return err
	})
}

func (p *BuntDBPersist) GetMessageHistory(roomId string, limit int) ([]*types.Message, error) {
	messages := make([]*types.Message, 0, limit)
	err := p.db.View(func(tx *buntdb.Tx) error {
		count := 0
		return tx.DescendKeys("message:"+roomId+":*", func(key, value string) bool {
			if count >= limit {
				return false
			}
			message := &types.Message{}
			if err := json.Unmarshal([]byte(value), message); err != nil {
				return true // skip corrupt entries
			}
			messages = append(messages, message)
			count++
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	// oldest first on the wire
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (p *BuntDBPersist) PurgeMessages(roomId string, before time.Time) (int64, error) {
	var purged int64
	err := p.db.Update(func(tx *buntdb.Tx) error {
		keys := make([]string, 0)
		err := tx.AscendKeys("message:"+roomId+":*", func(key, value string) bool {
			message := types.Message{}
			if err := json.Unmarshal([]byte(value), &message); err != nil {
				return true
			}
			if message.Timestamp.Before(before) {
				keys = append(keys, key)
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil && err != buntdb.ErrNotFound {
				return err
			}
			purged++
		}
		return nil
	})
	return purged, err
}

func (p *BuntDBPersist) StoreUser(user types.User) error {
	u, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("user:"+user.Id, string(u), nil)
		return err
	})
}

func (p *BuntDBPersist) GetUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return p.db.View(func(tx *buntdb.Tx) error {
		u, err := tx.Get("user:" + user.Id)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(u), user)
	})
}

func (p *BuntDBPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("user:*", func(key, value string) bool {
			user := &types.User{}
			if err := json.Unmarshal([]byte(value), user); err != nil {
				return true
			}
			users = append(users, user)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (p *BuntDBPersist) Close() error {
	return p.db.Close()
}
