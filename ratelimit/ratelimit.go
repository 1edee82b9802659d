// Package ratelimit implements the fixed-window request limiter gating
// inbound events, one global window per connection plus independent windows
// per (connection, event kind).
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Result of a limiter check. RetryAfter is only meaningful when Allowed is
// false.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

type window struct {
	count     int
	resetTime time.Time
}

// Limiter tracks fixed windows keyed by connection id and by
// (connection id, event kind). Reaching a limit is an expected condition,
// the caller signals the client and drops the event.
type Limiter struct {
	globalMax    int
	globalWindow time.Duration

	mu     sync.Mutex
	global map[string]*window
	events map[string]*window // key: connId + "\x00" + eventKind

	now func() time.Time // overridable for tests
}

func NewLimiter(globalMax int, globalWindow time.Duration) *Limiter {
	return &Limiter{
		globalMax:    globalMax,
		globalWindow: globalWindow,
		global:       make(map[string]*window),
		events:       make(map[string]*window),
		now:          time.Now,
	}
}

// CheckGlobal counts one request against the connection's global window.
func (l *Limiter) CheckGlobal(connId string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.check(l.global, connId, l.globalMax, l.globalWindow)
}

// CheckEvent counts one request against the window for the given event
// kind, independently of the global window, so a flood on one event kind
// does not exhaust the quota of another.
func (l *Limiter) CheckEvent(connId, eventKind string, max int, windowDur time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.check(l.events, connId+"\x00"+eventKind, max, windowDur)
}

func (l *Limiter) check(windows map[string]*window, key string, max int, windowDur time.Duration) Result {
	now := l.now()
	w, ok := windows[key]
	if !ok || now.After(w.resetTime) {
		// the window resets exactly at its reset timestamp
		w = &window{resetTime: now.Add(windowDur)}
		windows[key] = w
	}
	if w.count >= max {
		retry := w.resetTime.Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Result{Allowed: false, RetryAfter: retry}
	}
	w.count++
	return Result{Allowed: true}
}

// RemoveConn drops all windows belonging to a closed connection.
func (l *Limiter) RemoveConn(connId string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.global, connId)
	prefix := connId + "\x00"
	for key := range l.events {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(l.events, key)
		}
	}
}

// RetryAfterSeconds rounds a retry hint up to whole seconds for the wire.
func RetryAfterSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
