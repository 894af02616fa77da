package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atinyakov/SiteKeeper/internal/models"
)

const nsOverlay = "overlay"

type overlayEntry struct {
	OpID    string          `json:"op_id"`
	Row     json.RawMessage `json:"row,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
	// Seq is the order in which records entered the overlay.
	Seq int64 `json:"seq,omitempty"`
}

// Overlay remembers the latest queued change per record so reads show
// local writes that have not reached the server yet. An entry is dropped
// once the operation that produced it has been replayed.
type Overlay struct {
	store KV
	mu    sync.Mutex
}

func NewOverlay(store KV) *Overlay {
	return &Overlay{store: store}
}

func (o *Overlay) load(ctx context.Context, table models.Table) (map[string]overlayEntry, error) {
	entries := map[string]overlayEntry{}
	if _, err := o.store.Get(ctx, nsOverlay, string(table), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Queued records op, tagging its row with status.
func (o *Overlay) Queued(ctx context.Context, op models.PendingOperation, status models.SyncStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries, err := o.load(ctx, op.Table)
	if err != nil {
		return err
	}
	entry := overlayEntry{OpID: op.ID, Deleted: op.Operation == models.OpDelete}
	if prev, ok := entries[op.Key]; ok {
		entry.Seq = prev.Seq
	} else {
		for _, e := range entries {
			entry.Seq = max(entry.Seq, e.Seq)
		}
		entry.Seq++
	}
	if !entry.Deleted {
		row, err := decodeObject(op.Data)
		if err != nil {
			return err
		}
		row["sync_status"] = status
		if entry.Row, err = json.Marshal(row); err != nil {
			return err
		}
	}
	entries[op.Key] = entry
	return o.store.Set(ctx, nsOverlay, string(op.Table), entries)
}

// Applied drops the entry for op unless a later change replaced it.
func (o *Overlay) Applied(ctx context.Context, op models.PendingOperation) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries, err := o.load(ctx, op.Table)
	if err != nil {
		return err
	}
	if e, ok := entries[op.Key]; !ok || e.OpID != op.ID {
		return nil
	}
	delete(entries, op.Key)
	return o.store.Set(ctx, nsOverlay, string(op.Table), entries)
}

// Merge applies the pending entries of table to rows. Rows changed locally
// are replaced or dropped; locally created rows matching filter are
// appended ordered by the table's sort column, then in the order they were
// queued.
func (o *Overlay) Merge(ctx context.Context, table models.Table, filter models.Filter, rows []json.RawMessage) ([]json.RawMessage, error) {
	o.mu.Lock()
	entries, err := o.load(ctx, table)
	o.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("load %s overlay: %w", table, err)
	}
	if len(entries) == 0 {
		return rows, nil
	}
	schema, err := models.SchemaOf(table)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	out := make([]json.RawMessage, 0, len(rows))
	for _, raw := range rows {
		row, err := decodeObject(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}
		key := fmt.Sprint(row[schema.PrimaryKey])
		entry, ok := entries[key]
		if !ok {
			out = append(out, raw)
			continue
		}
		seen[key] = true
		if keep, err := entryMatches(entry, filter); err != nil {
			return nil, err
		} else if keep {
			out = append(out, entry.Row)
		}
	}

	type created struct {
		key   string
		seq   int64
		order any
		row   json.RawMessage
	}
	var added []created
	for k, entry := range entries {
		if seen[k] || entry.Deleted {
			continue
		}
		row, err := decodeObject(entry.Row)
		if err != nil {
			return nil, err
		}
		if !filter.Matches(row) {
			continue
		}
		added = append(added, created{key: k, seq: entry.Seq, order: row[schema.OrderBy], row: entry.Row})
	}
	sort.Slice(added, func(i, j int) bool {
		a, b := added[i], added[j]
		if c := compareValues(a.order, b.order); c != 0 {
			return c < 0
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.key < b.key
	})
	for _, c := range added {
		out = append(out, c.row)
	}
	return out, nil
}

// compareValues orders two decoded column values. Nil sorts first, numbers
// numerically and RFC 3339 timestamps chronologically.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if x, ok := a.(json.Number); ok {
		if y, ok := b.(json.Number); ok {
			xf, errX := x.Float64()
			yf, errY := y.Float64()
			if errX == nil && errY == nil {
				switch {
				case xf < yf:
					return -1
				case xf > yf:
					return 1
				}
				return 0
			}
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			tx, errX := time.Parse(time.RFC3339Nano, x)
			ty, errY := time.Parse(time.RFC3339Nano, y)
			if errX == nil && errY == nil {
				return tx.Compare(ty)
			}
			return strings.Compare(x, y)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func entryMatches(e overlayEntry, filter models.Filter) (bool, error) {
	if e.Deleted {
		return false, nil
	}
	row, err := decodeObject(e.Row)
	if err != nil {
		return false, err
	}
	return filter.Matches(row), nil
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	row := map[string]any{}
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}
