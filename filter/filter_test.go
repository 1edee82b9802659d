package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-presence/types"
)

func TestCompileEmptyExpression(t *testing.T) {
	prog, err := Compile("")
	require.NoError(t, err)
	assert.Nil(t, prog)
}

func TestCompileRejectsUnknownFields(t *testing.T) {
	_, err := Compile(`Target.User.Password == "x"`)
	assert.Error(t, err)
}

func TestMatchOnStatusAndTags(t *testing.T) {
	prog, err := Compile(`Target.User.Status == "online" and Target.User.Tags["tier"] == "beta"`)
	require.NoError(t, err)

	n := &types.Notification{Type: "info", Timestamp: time.Now()}
	online := &types.User{Id: "u1", Status: types.StatusOnline, Tags: map[string]string{"tier": "beta"}}
	away := &types.User{Id: "u2", Status: types.StatusAway, Tags: map[string]string{"tier": "beta"}}
	noTag := &types.User{Id: "u3", Status: types.StatusOnline}

	assert.True(t, Match(prog, online, n))
	assert.False(t, Match(prog, away, n))
	assert.False(t, Match(prog, noTag, n))
}

func TestMatchOnNotificationFields(t *testing.T) {
	prog, err := Compile(`Type == "warning" and Target.User.Id != "u2"`)
	require.NoError(t, err)

	warning := &types.Notification{Type: "warning", Timestamp: time.Now()}
	info := &types.Notification{Type: "info", Timestamp: time.Now()}
	u1 := &types.User{Id: "u1", Status: types.StatusOnline}
	u2 := &types.User{Id: "u2", Status: types.StatusOnline}

	assert.True(t, Match(prog, u1, warning))
	assert.False(t, Match(prog, u2, warning))
	assert.False(t, Match(prog, u1, info))
}

func TestMatchNilProgramMatchesEveryone(t *testing.T) {
	u := &types.User{Id: "u1"}
	n := &types.Notification{Timestamp: time.Now()}
	assert.True(t, Match(nil, u, n))
}

func TestMatchNonBooleanResultDoesNotMatch(t *testing.T) {
	prog, err := Compile(`Target.User.Nick`)
	require.NoError(t, err)
	u := &types.User{Id: "u1", Nick: "alice"}
	n := &types.Notification{Timestamp: time.Now()}
	assert.False(t, Match(prog, u, n))
}
