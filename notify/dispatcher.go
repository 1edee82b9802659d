// Package notify is the higher-level push API used by business services:
// typed notifications to a user, a room or everybody, without the caller
// needing to know the recipient's connection topology.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tcriess/lightspeed-presence/globals"
	"github.com/tcriess/lightspeed-presence/registry"
	"github.com/tcriess/lightspeed-presence/types"
)

const (
	defaultBatchSize = 50
	defaultBatchWait = 100 * time.Millisecond
)

// Dispatcher constructs full notifications (id and timestamp injected at
// send time) and hands them to the registry broadcast primitives. Delivery
// is best-effort and fire-and-forget: an offline target is a false return,
// never an error, and nothing is queued for later.
type Dispatcher struct {
	mgr *registry.Manager
}

func NewDispatcher(mgr *registry.Manager) *Dispatcher {
	return &Dispatcher{mgr: mgr}
}

// SendToUser pushes one notification to every live connection of the user.
// Returns false if the user has no connection on this node.
func (d *Dispatcher) SendToUser(ctx context.Context, userId string, n *types.Notification) bool {
	n.UserId = userId
	return d.mgr.Connections.SendToUser(ctx, userId, types.WireEventNotification, n)
}

// SendToRoom pushes one notification to every member of the room.
// targetFilter, when non-empty, is an expr expression evaluated against
// each recipient at delivery time.
func (d *Dispatcher) SendToRoom(ctx context.Context, roomId string, n *types.Notification, targetFilter string) {
	d.mgr.Rooms.BroadcastFiltered(ctx, roomId, types.WireEventNotification, n, "", targetFilter)
}

// SendToAll pushes one notification to every connection.
func (d *Dispatcher) SendToAll(ctx context.Context, n *types.Notification, targetFilter string) {
	d.mgr.Connections.BroadcastAllFiltered(ctx, types.WireEventNotification, n, "", targetFilter)
}

// SendToUsers pushes the same notification content to a list of users,
// returning the per-user delivery outcome. Each recipient gets their own
// notification id.
func (d *Dispatcher) SendToUsers(ctx context.Context, userIds []string, kind, title, message string, data map[string]interface{}) map[string]bool {
	res := make(map[string]bool, len(userIds))
	for _, userId := range userIds {
		res[userId] = d.SendToUser(ctx, userId, types.NewNotification(kind, title, message, data))
	}
	return res
}

// BulkItem is one entry of a SendBulk call.
type BulkItem struct {
	UserId  string
	Kind    string
	Title   string
	Message string
	Data    map[string]interface{}
}

// BulkResult aggregates per-item outcomes of a bulk send.
type BulkResult struct {
	Success int
	Failed  int
}

// SendBulk partitions items into batches of batchSize, sends each batch
// concurrently and waits delay between batches as backpressure against the
// downstream transport. A panic or offline target on one item is counted as
// failed and never aborts the batch. batchSize and delay fall back to
// defaults when non-positive.
func (d *Dispatcher) SendBulk(ctx context.Context, items []BulkItem, batchSize int, delay time.Duration) BulkResult {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if delay <= 0 {
		delay = defaultBatchWait
	}
	res := BulkResult{}
	var resMu sync.Mutex
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		var wg sync.WaitGroup
		for _, item := range items[start:end] {
			wg.Add(1)
			go func(item BulkItem) {
				defer wg.Done()
				ok := d.sendBulkItem(ctx, item)
				resMu.Lock()
				if ok {
					res.Success++
				} else {
					res.Failed++
				}
				resMu.Unlock()
			}(item)
		}
		wg.Wait()
		if end < len(items) {
			select {
			case <-ctx.Done():
				resMu.Lock()
				res.Failed += len(items) - end
				resMu.Unlock()
				return res
			case <-time.After(delay):
			}
		}
	}
	return res
}

// sendBulkItem isolates one delivery: transport-level panics are converted
// into a failed count so one bad recipient never aborts the batch.
func (d *Dispatcher) sendBulkItem(ctx context.Context, item BulkItem) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			globals.AppLogger.Error("bulk notification delivery panicked", "user", item.UserId, "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	return d.SendToUser(ctx, item.UserId, types.NewNotification(item.Kind, item.Title, item.Message, item.Data))
}

// Severity helpers, fixed-kind convenience wrappers over SendToUser.

func (d *Dispatcher) SendSuccess(ctx context.Context, userId, title, message string, data map[string]interface{}) bool {
	return d.SendToUser(ctx, userId, types.NewNotification(types.NotificationSuccess, title, message, data))
}

func (d *Dispatcher) SendError(ctx context.Context, userId, title, message string, data map[string]interface{}) bool {
	return d.SendToUser(ctx, userId, types.NewNotification(types.NotificationError, title, message, data))
}

func (d *Dispatcher) SendWarning(ctx context.Context, userId, title, message string, data map[string]interface{}) bool {
	return d.SendToUser(ctx, userId, types.NewNotification(types.NotificationWarning, title, message, data))
}

func (d *Dispatcher) SendInfo(ctx context.Context, userId, title, message string, data map[string]interface{}) bool {
	return d.SendToUser(ctx, userId, types.NewNotification(types.NotificationInfo, title, message, data))
}
