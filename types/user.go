package types

import "time"

const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// ValidStatus reports whether s is one of the user status values accepted
// via update_status.
func ValidStatus(s string) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

type User struct {
	Id         string            `json:"id" gorm:"primaryKey"` // e-mail, unique!
	Nick       string            `json:"nick"`
	Status     string            `json:"status"`
	Tags       map[string]string `json:"tags" gorm:"-"`
	LastOnline time.Time         `json:"lastOnline"` // last seen online
}
