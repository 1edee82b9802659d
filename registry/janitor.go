package registry

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tcriess/lightspeed-presence/globals"
)

// Janitor periodically reconciles the registries against the transport
// layer's authoritative live-connection state and evicts aged empty rooms.
// Sweeps are idempotent and only remove entries confirmed dead or empty at
// scan time, so running concurrently with live traffic is safe.
type Janitor struct {
	mgr       *Manager
	retention time.Duration
	onEvict   func(connId string)
	runner    *cron.Cron
}

// NewJanitor schedules Sweep on the given cron spec (f.e. "@every 5m").
// onEvict, if non-nil, is called for every purged connection id so the
// caller can release per-connection state such as rate-limit windows.
func NewJanitor(mgr *Manager, spec string, retention time.Duration, onEvict func(connId string)) (*Janitor, error) {
	j := &Janitor{
		mgr:       mgr,
		retention: retention,
		onEvict:   onEvict,
	}
	j.runner = cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := j.runner.AddFunc(spec, j.Sweep); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.runner.Start()
}

func (j *Janitor) Stop() {
	j.runner.Stop()
}

// Sweep purges connections whose transport session is gone, then deletes
// empty non-reserved rooms older than the retention threshold.
func (j *Janitor) Sweep() {
	purged := 0
	for _, c := range j.mgr.Connections.Snapshot() {
		if c.Alive() {
			continue
		}
		j.mgr.Disconnect(c.ID())
		if j.onEvict != nil {
			j.onEvict(c.ID())
		}
		purged++
	}
	removed := j.mgr.Rooms.SweepEmpty(j.retention)
	globals.AppLogger.Debug("cleanup sweep done", "purged_connections", purged, "removed_rooms", removed)
}
