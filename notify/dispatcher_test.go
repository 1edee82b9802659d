package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-presence/registry"
	"github.com/tcriess/lightspeed-presence/types"
)

type fakeConn struct {
	id string

	mu          sync.Mutex
	events      []types.Notification
	panicOnSend bool
}

func (f *fakeConn) ID() string  { return f.id }
func (f *fakeConn) Alive() bool { return true }
func (f *fakeConn) Close()      {}

func (f *fakeConn) Send(event string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnSend {
		panic("transport exploded")
	}
	if event != types.WireEventNotification {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	n := types.Notification{}
	if err := json.Unmarshal(raw, &n); err != nil {
		return err
	}
	f.events = append(f.events, n)
	return nil
}

func (f *fakeConn) notifications() []types.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Notification(nil), f.events...)
}

func setup(t *testing.T) (*registry.Manager, *Dispatcher) {
	t.Helper()
	mgr, err := registry.NewManager(registry.NewLocalBackend(), nil)
	require.NoError(t, err)
	return mgr, NewDispatcher(mgr)
}

func connect(t *testing.T, mgr *registry.Manager, connId, userId string) *fakeConn {
	t.Helper()
	fc := &fakeConn{id: connId}
	mgr.Connections.Register(fc, "")
	_, err := mgr.Connections.Authenticate(connId, &types.User{Id: userId, Nick: userId})
	require.NoError(t, err)
	return fc
}

func TestSendToUserInjectsIdAndTimestamp(t *testing.T) {
	mgr, d := setup(t)
	fc := connect(t, mgr, "c1", "u1")

	ok := d.SendSuccess(context.Background(), "u1", "saved", "profile updated", map[string]interface{}{"field": "nick"})
	require.True(t, ok)

	got := fc.notifications()
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].Id)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.Equal(t, types.NotificationSuccess, got[0].Type)
	assert.Equal(t, "saved", got[0].Title)
	assert.Equal(t, "u1", got[0].UserId)
}

func TestSendToUserOfflineIsFalseNotError(t *testing.T) {
	_, d := setup(t)
	assert.False(t, d.SendInfo(context.Background(), "ghost", "hello", "anyone there", nil))
}

func TestSeverityHelpers(t *testing.T) {
	mgr, d := setup(t)
	fc := connect(t, mgr, "c1", "u1")

	d.SendError(context.Background(), "u1", "t", "m", nil)
	d.SendWarning(context.Background(), "u1", "t", "m", nil)
	d.SendInfo(context.Background(), "u1", "t", "m", nil)

	got := fc.notifications()
	require.Len(t, got, 3)
	assert.Equal(t, types.NotificationError, got[0].Type)
	assert.Equal(t, types.NotificationWarning, got[1].Type)
	assert.Equal(t, types.NotificationInfo, got[2].Type)
}

func TestSendToRoom(t *testing.T) {
	mgr, d := setup(t)
	fcIn := connect(t, mgr, "c1", "u1")
	fcOut := connect(t, mgr, "c2", "u2")
	c := mgr.Connections.Get("c1")
	require.True(t, mgr.Rooms.Join(c, "r1", ""))

	d.SendToRoom(context.Background(), "r1", types.NewNotification(types.NotificationInfo, "hi", "room news", nil), "")
	assert.Len(t, fcIn.notifications(), 1)
	assert.Empty(t, fcOut.notifications())
}

func TestSendToUsersAggregatesOutcome(t *testing.T) {
	mgr, d := setup(t)
	connect(t, mgr, "c1", "u1")
	connect(t, mgr, "c2", "u2")

	res := d.SendToUsers(context.Background(), []string{"u1", "u2", "ghost"}, types.NotificationInfo, "t", "m", nil)
	assert.Equal(t, map[string]bool{"u1": true, "u2": true, "ghost": false}, res)
}

func TestSendBulkPartialFailure(t *testing.T) {
	mgr, d := setup(t)
	items := make([]BulkItem, 0, 120)
	for i := 1; i <= 120; i++ {
		userId := fmt.Sprintf("u%d", i)
		fc := connect(t, mgr, fmt.Sprintf("c%d", i), userId)
		if i == 75 {
			fc.panicOnSend = true
		}
		items = append(items, BulkItem{UserId: userId, Kind: types.NotificationInfo, Title: "t", Message: "m"})
	}

	res := d.SendBulk(context.Background(), items, 50, time.Millisecond)
	assert.Equal(t, BulkResult{Success: 119, Failed: 1}, res)

	// all other recipients still got theirs
	ok := mgr.Connections.Get("c1")
	require.NotNil(t, ok)
	fc74 := mgr.Connections.Get("c74").Conn.(*fakeConn)
	fc76 := mgr.Connections.Get("c76").Conn.(*fakeConn)
	assert.Len(t, fc74.notifications(), 1)
	assert.Len(t, fc76.notifications(), 1)
}

func TestSendBulkCancelledContext(t *testing.T) {
	mgr, d := setup(t)
	for i := 1; i <= 4; i++ {
		connect(t, mgr, fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i))
	}
	items := make([]BulkItem, 0, 4)
	for i := 1; i <= 4; i++ {
		items = append(items, BulkItem{UserId: fmt.Sprintf("u%d", i), Kind: types.NotificationInfo, Title: "t", Message: "m"})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := d.SendBulk(ctx, items, 2, time.Hour)
	assert.Equal(t, 4, res.Success+res.Failed, "all items are accounted for")
	assert.Equal(t, 2, res.Failed, "the second batch is abandoned on cancellation")
}
