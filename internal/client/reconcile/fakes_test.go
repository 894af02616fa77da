package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/atinyakov/SiteKeeper/internal/models"
)

type call struct {
	Op    models.OpKind
	Table models.Table
	Key   string
	Row   map[string]any
}

// fakeRemote is an in-memory store with upsert-by-key semantics.
type fakeRemote struct {
	mu    sync.Mutex
	rows  map[models.Table]map[string]map[string]any
	calls []call

	// fail, when set, decides per call whether it errors.
	fail func(n int, c call) error
	// entered and release, when set, make the first call block.
	entered chan struct{}
	release chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{rows: map[models.Table]map[string]map[string]any{}}
}

func decodeRow(raw json.RawMessage) map[string]any {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	row := map[string]any{}
	if err := dec.Decode(&row); err != nil {
		panic(err)
	}
	return row
}

func (f *fakeRemote) record(c call) error {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, c)
	fail := f.fail
	f.mu.Unlock()

	if n == 0 && f.entered != nil {
		close(f.entered)
		<-f.release
	}
	if fail != nil {
		return fail(n, c)
	}
	return nil
}

func (f *fakeRemote) Upsert(_ context.Context, table models.Table, raw json.RawMessage) (json.RawMessage, error) {
	row := decodeRow(raw)
	key, _ := row["id"].(string)
	if err := f.record(call{Op: models.OpUpsert, Table: table, Key: key, Row: row}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[table] == nil {
		f.rows[table] = map[string]map[string]any{}
	}
	f.rows[table][key] = row
	return json.Marshal(row)
}

func (f *fakeRemote) Insert(_ context.Context, table models.Table, raw json.RawMessage) (json.RawMessage, error) {
	row := decodeRow(raw)
	key, _ := row["id"].(string)
	if err := f.record(call{Op: models.OpInsert, Table: table, Key: key, Row: row}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[table][key]; ok {
		return nil, fmt.Errorf("insert %s: %w", table, models.ErrDuplicate)
	}
	if f.rows[table] == nil {
		f.rows[table] = map[string]map[string]any{}
	}
	f.rows[table][key] = row
	return json.Marshal(row)
}

func (f *fakeRemote) Delete(_ context.Context, table models.Table, key string) error {
	if err := f.record(call{Op: models.OpDelete, Table: table, Key: key}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows[table], key)
	return nil
}

func (f *fakeRemote) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call{}, f.calls...)
}

func (f *fakeRemote) Row(table models.Table, key string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[table][key]
}

type memQueue struct {
	mu        sync.Mutex
	ops       []models.PendingOperation
	appendErr error
	removeErr error
}

func (q *memQueue) Append(_ context.Context, op models.PendingOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.appendErr != nil {
		return q.appendErr
	}
	q.ops = append(q.ops, op)
	return nil
}

func (q *memQueue) RemoveByID(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.removeErr != nil {
		return q.removeErr
	}
	for i, op := range q.ops {
		if op.ID == id {
			q.ops = append(q.ops[:i:i], q.ops[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *memQueue) All(context.Context) ([]models.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.PendingOperation{}, q.ops...), nil
}

func (q *memQueue) Snapshot() []models.PendingOperation {
	ops, _ := q.All(context.Background())
	return ops
}

type flag struct {
	mu     sync.Mutex
	online bool
}

func (f *flag) IsOnline() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *flag) Set(online bool) {
	f.mu.Lock()
	f.online = online
	f.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) add(e string) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) Online()            { n.add("online") }
func (n *recordingNotifier) Offline()           { n.add("offline") }
func (n *recordingNotifier) SyncStarting(c int) { n.add(fmt.Sprintf("starting %d", c)) }
func (n *recordingNotifier) SyncCompleted()     { n.add("completed") }

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string{}, n.events...)
}

var errNetwork = errors.New("network unreachable")

type harness struct {
	remote *fakeRemote
	queue  *memQueue
	conn   *flag
	notify *recordingNotifier
	rec    *Reconciler
}

func newHarness(online bool) *harness {
	h := &harness{
		remote: newFakeRemote(),
		queue:  &memQueue{},
		conn:   &flag{online: online},
		notify: &recordingNotifier{},
	}
	h.rec = New(h.remote, h.queue, h.conn, h.notify, nil)
	return h
}
