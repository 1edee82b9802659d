package types

import "time"

const (
	RoomKindPublic = "public"
	RoomKindDirect = "direct"
)

const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Room is a named broadcast scope. Rooms are created implicitly on first
// join and live only as long as they have members (reserved rooms excepted,
// see registry).
type Room struct {
	Id        string            `json:"id"`
	Name      string            `json:"name"`
	Kind      string            `json:"kind"`
	CreatedAt time.Time         `json:"createdAt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Membership ties one connection of a user to a room. A user with several
// simultaneous connections holds one membership per connection.
type Membership struct {
	UserId   string    `json:"userId"`
	ConnId   string    `json:"connId"`
	JoinedAt time.Time `json:"joinedAt"`
	Role     string    `json:"role"`
}
