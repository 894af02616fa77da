// Package reconcile is the only path by which client writes reach the
// remote store. Writes go straight through while online; otherwise, or when
// the remote call fails, they are queued in the local store and replayed by
// Drain once connectivity returns.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/atinyakov/SiteKeeper/internal/models"
	"go.uber.org/zap"
)

// Remote is the subset of the remote store client used for writes.
type Remote interface {
	Upsert(ctx context.Context, table models.Table, row json.RawMessage) (json.RawMessage, error)
	Insert(ctx context.Context, table models.Table, row json.RawMessage) (json.RawMessage, error)
	Delete(ctx context.Context, table models.Table, key string) error
}

// Queue is the durable pending-operation list.
type Queue interface {
	Append(ctx context.Context, op models.PendingOperation) error
	RemoveByID(ctx context.Context, id string) error
	All(ctx context.Context) ([]models.PendingOperation, error)
}

// Connectivity is read at call time to pick the online or offline branch.
type Connectivity interface {
	IsOnline() bool
}

// Notifier receives the user-facing notices.
type Notifier interface {
	Online()
	Offline()
	SyncStarting(n int)
	SyncCompleted()
}

// DrainResult summarizes a Drain call. Passes counts the queue snapshots
// read, including follow-up passes requested while one was running; a
// drain that found the client offline reads none.
type DrainResult struct {
	Attempted int
	Succeeded int
	Remaining int
	Passes    int
	// Deferred is set when another drain was already running; the request
	// is served by that drain's follow-up pass.
	Deferred bool
}

// Reconciler routes writes and drains the queue.
type Reconciler struct {
	remote Remote
	queue  Queue
	conn   Connectivity
	notify Notifier
	log    *zap.Logger

	// OnQueued is called after an operation was appended to the queue with
	// the status the write reported to its caller.
	OnQueued func(ctx context.Context, op models.PendingOperation, status models.SyncStatus)
	// OnApplied is called after a queued operation was replayed and removed.
	OnApplied func(ctx context.Context, op models.PendingOperation)

	mu      sync.Mutex
	running bool
	again   bool
}

// New creates a Reconciler. notify and log may be nil.
func New(remote Remote, queue Queue, conn Connectivity, notify Notifier, log *zap.Logger) *Reconciler {
	if notify == nil {
		notify = NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{remote: remote, queue: queue, conn: conn, notify: notify, log: log}
}

// IsOnline reports the connectivity state the reconciler currently sees.
func (r *Reconciler) IsOnline() bool {
	return r.conn.IsOnline()
}

// SyncRecord writes rec as an upsert by primary key.
//
// Offline, the write is queued and rec comes back tagged pending. Online,
// the server's copy is returned; if the remote call fails the original rec
// is queued and comes back tagged error. Only local store failures are
// returned as errors.
func SyncRecord[T models.Syncable[T]](ctx context.Context, r *Reconciler, rec T) (T, error) {
	return write(ctx, r, models.OpUpsert, rec)
}

// InsertRecord is SyncRecord with insert semantics, for records that are
// created once and never updated through this path.
func InsertRecord[T models.Syncable[T]](ctx context.Context, r *Reconciler, rec T) (T, error) {
	return write(ctx, r, models.OpInsert, rec)
}

func write[T models.Syncable[T]](ctx context.Context, r *Reconciler, kind models.OpKind, rec T) (T, error) {
	var zero T
	if !r.conn.IsOnline() {
		if err := r.enqueueRecord(ctx, kind, rec, models.StatusPending); err != nil {
			return zero, err
		}
		return rec.WithSyncStatus(models.StatusPending), nil
	}

	confirmed, err := push(ctx, r.remote, kind, rec)
	if err == nil {
		return confirmed, nil
	}
	r.log.Warn("remote write failed, queued for retry",
		zap.String("table", string(rec.TableName())),
		zap.String("op", string(kind)),
		zap.String("id", rec.PrimaryKey()),
		zap.Error(err))

	if err := r.enqueueRecord(ctx, kind, rec, models.StatusError); err != nil {
		return zero, err
	}
	return rec.WithSyncStatus(models.StatusError), nil
}

func push[T models.Syncable[T]](ctx context.Context, remote Remote, kind models.OpKind, rec T) (T, error) {
	var confirmed T
	payload, err := json.Marshal(rec.WithSyncStatus(models.StatusSynced))
	if err != nil {
		return confirmed, fmt.Errorf("marshal %s: %w", rec.TableName(), err)
	}

	var row json.RawMessage
	if kind == models.OpInsert {
		row, err = remote.Insert(ctx, rec.TableName(), payload)
	} else {
		row, err = remote.Upsert(ctx, rec.TableName(), payload)
	}
	if err != nil {
		return confirmed, err
	}
	if err := json.Unmarshal(row, &confirmed); err != nil {
		return confirmed, fmt.Errorf("decode %s row: %w", rec.TableName(), err)
	}
	return confirmed, nil
}

// DeleteRecord hard-deletes key from table, queueing the delete when
// offline or when the remote call fails. The returned status tells which.
func DeleteRecord(ctx context.Context, r *Reconciler, table models.Table, key string) (models.SyncStatus, error) {
	op := models.NewDelete(table, key)
	if !r.conn.IsOnline() {
		if err := r.enqueue(ctx, op, models.StatusPending); err != nil {
			return "", err
		}
		return models.StatusPending, nil
	}

	err := r.remote.Delete(ctx, table, key)
	if err == nil {
		return models.StatusSynced, nil
	}
	r.log.Warn("remote delete failed, queued for retry",
		zap.String("table", string(table)), zap.String("id", key), zap.Error(err))
	if err := r.enqueue(ctx, op, models.StatusError); err != nil {
		return "", err
	}
	return models.StatusError, nil
}

func (r *Reconciler) enqueueRecord(ctx context.Context, kind models.OpKind, rec models.Record, status models.SyncStatus) error {
	var (
		op  models.PendingOperation
		err error
	)
	if kind == models.OpInsert {
		op, err = models.NewInsert(rec)
	} else {
		op, err = models.NewUpsert(rec)
	}
	if err != nil {
		return err
	}
	return r.enqueue(ctx, op, status)
}

func (r *Reconciler) enqueue(ctx context.Context, op models.PendingOperation, status models.SyncStatus) error {
	if err := r.queue.Append(ctx, op); err != nil {
		return fmt.Errorf("queue %s %s: %w", op.Operation, op.Table, err)
	}
	if r.OnQueued != nil {
		r.OnQueued(ctx, op, status)
	}
	return nil
}

// Drain replays the queue against the remote store, oldest first.
//
// It does nothing while offline. Every operation that succeeds is removed
// at once; failures are logged and stay queued for the next drain. Only one
// drain runs at a time: a call made while one is running returns with
// Deferred set and causes a single follow-up pass once the current one
// finishes.
func (r *Reconciler) Drain(ctx context.Context) (DrainResult, error) {
	r.mu.Lock()
	if r.running {
		r.again = true
		r.mu.Unlock()
		return DrainResult{Deferred: true}, nil
	}
	r.running = true
	r.mu.Unlock()

	var total DrainResult
	for {
		res, err := r.drainPass(ctx)
		total.Attempted += res.Attempted
		total.Succeeded += res.Succeeded
		total.Remaining = res.Remaining
		total.Passes += res.Passes

		r.mu.Lock()
		if err != nil || !r.again {
			r.running = false
			r.again = false
			r.mu.Unlock()
			return total, err
		}
		r.again = false
		r.mu.Unlock()
	}
}

func (r *Reconciler) drainPass(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	if !r.conn.IsOnline() {
		return res, nil
	}

	ops, err := r.queue.All(ctx)
	if err != nil {
		return res, fmt.Errorf("read queue: %w", err)
	}
	res.Passes = 1
	if len(ops) == 0 {
		return res, nil
	}

	r.notify.SyncStarting(len(ops))
	defer r.notify.SyncCompleted()

	for _, op := range ops {
		res.Attempted++
		if err := r.replay(ctx, op); err != nil {
			if op.Operation != models.OpInsert || !errors.Is(err, models.ErrDuplicate) {
				r.log.Warn("pending operation failed, kept in queue",
					zap.String("table", string(op.Table)),
					zap.String("op", string(op.Operation)),
					zap.String("id", op.ID),
					zap.Error(err))
				continue
			}
			r.log.Info("pending insert already applied",
				zap.String("table", string(op.Table)), zap.String("key", op.Key))
		}

		if err := r.queue.RemoveByID(ctx, op.ID); err != nil {
			res.Remaining = len(ops) - res.Succeeded
			return res, fmt.Errorf("remove pending operation %s: %w", op.ID, err)
		}
		res.Succeeded++
		if r.OnApplied != nil {
			r.OnApplied(ctx, op)
		}
	}
	res.Remaining = len(ops) - res.Succeeded
	return res, nil
}

func (r *Reconciler) replay(ctx context.Context, op models.PendingOperation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	switch op.Operation {
	case models.OpDelete:
		return r.remote.Delete(ctx, op.Table, op.Key)
	case models.OpInsert:
		payload, err := markSynced(op.Data)
		if err != nil {
			return err
		}
		_, err = r.remote.Insert(ctx, op.Table, payload)
		return err
	default:
		payload, err := markSynced(op.Data)
		if err != nil {
			return err
		}
		_, err = r.remote.Upsert(ctx, op.Table, payload)
		return err
	}
}

// markSynced sets sync_status in a queued row to synced. Numbers are kept
// verbatim.
func markSynced(data json.RawMessage) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	row := map[string]any{}
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidOperation, err)
	}
	row["sync_status"] = models.StatusSynced
	return json.Marshal(row)
}

// NopNotifier ignores every notice.
type NopNotifier struct{}

func (NopNotifier) Online()          {}
func (NopNotifier) Offline()         {}
func (NopNotifier) SyncStarting(int) {}
func (NopNotifier) SyncCompleted()   {}
