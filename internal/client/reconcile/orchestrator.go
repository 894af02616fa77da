package reconcile

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Source is the connectivity signal the orchestrator subscribes to.
type Source interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) func()
}

// Mirror is the flag the reconciler reads. Only the orchestrator sets it.
type Mirror interface {
	Connectivity
	Set(online bool)
}

// Status is the coarse state shown to the user.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusSyncing Status = "syncing"
)

// Orchestrator connects a Source to a Reconciler: it keeps the mirror in
// step, tells the user about transitions and drains on reconnect.
type Orchestrator struct {
	source Source
	mirror Mirror
	rec    *Reconciler
	notify Notifier
	log    *zap.Logger

	ctx         context.Context
	unsubscribe func()
	syncing     atomic.Int32
	wg          sync.WaitGroup
}

// NewOrchestrator wires source to rec. notify and log may be nil.
func NewOrchestrator(source Source, mirror Mirror, rec *Reconciler, notify Notifier, log *zap.Logger) *Orchestrator {
	if notify == nil {
		notify = NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{source: source, mirror: mirror, rec: rec, notify: notify, log: log}
}

// Start subscribes to the source. Drains started by transitions use ctx.
// If the source is already online, a drain starts right away.
func (o *Orchestrator) Start(ctx context.Context) {
	o.ctx = ctx
	online := o.source.IsOnline()
	o.mirror.Set(online)
	o.unsubscribe = o.source.Subscribe(o.handle)
	if online {
		o.drainAsync()
	}
}

// Stop unsubscribes and waits for running drains.
func (o *Orchestrator) Stop() {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	o.wg.Wait()
}

func (o *Orchestrator) handle(online bool) {
	o.mirror.Set(online)
	if !online {
		o.notify.Offline()
		return
	}
	o.notify.Online()
	o.drainAsync()
}

func (o *Orchestrator) drainAsync() {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.RequestSync(o.ctx); err != nil {
			o.log.Error("drain failed", zap.Error(err))
		}
	}()
}

// RequestSync drains now and waits for the result.
func (o *Orchestrator) RequestSync(ctx context.Context) (DrainResult, error) {
	o.syncing.Add(1)
	defer o.syncing.Add(-1)
	return o.rec.Drain(ctx)
}

// Status reports syncing while a drain runs, else the mirrored state.
func (o *Orchestrator) Status() Status {
	if o.syncing.Load() > 0 {
		return StatusSyncing
	}
	if o.mirror.IsOnline() {
		return StatusOnline
	}
	return StatusOffline
}
