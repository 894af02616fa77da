package data

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atinyakov/SiteKeeper/internal/client/reconcile"
	"github.com/atinyakov/SiteKeeper/internal/models"
	"go.uber.org/zap"
)

const nsSnapshot = "snapshot"

// Collection reads and writes the rows of one table.
type Collection[T models.Syncable[T]] struct {
	env   *Env
	table models.Table
}

// NewCollection returns the collection for T's table.
func NewCollection[T models.Syncable[T]](env *Env) *Collection[T] {
	var zero T
	return &Collection[T]{env: env, table: zero.TableName()}
}

// Table returns the table the collection works on.
func (c *Collection[T]) Table() models.Table { return c.table }

func snapshotKey(table models.Table, filter models.Filter) string {
	return string(table) + "/" + filter.Key()
}

// List returns the rows matching filter with queued local changes applied.
//
// Online, the remote result replaces the cached snapshot for this filter.
// Offline, or when the remote read fails, the snapshot is used.
func (c *Collection[T]) List(ctx context.Context, filter models.Filter) ([]T, error) {
	rows, err := c.fetch(ctx, filter)
	if err != nil {
		return nil, err
	}
	rows, err = c.env.Overlay.Merge(ctx, c.table, filter, rows)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(rows))
	for _, raw := range rows {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", c.table, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Collection[T]) fetch(ctx context.Context, filter models.Filter) ([]json.RawMessage, error) {
	key := snapshotKey(c.table, filter)
	if c.env.Rec.IsOnline() {
		raw, err := c.env.Remote.Select(ctx, c.table, filter)
		if err == nil {
			rows := []json.RawMessage{}
			if err := json.Unmarshal(raw, &rows); err != nil {
				return nil, fmt.Errorf("decode %s rows: %w", c.table, err)
			}
			if err := c.env.Store.Set(ctx, nsSnapshot, key, rows); err != nil {
				return nil, fmt.Errorf("save %s snapshot: %w", c.table, err)
			}
			return rows, nil
		}
		c.env.Log.Warn("remote read failed, using cached snapshot",
			zap.String("table", string(c.table)), zap.Error(err))
	}

	rows := []json.RawMessage{}
	if _, err := c.env.Store.Get(ctx, nsSnapshot, key, &rows); err != nil {
		return nil, fmt.Errorf("load %s snapshot: %w", c.table, err)
	}
	return rows, nil
}

// Save writes rec as an upsert and returns it with its sync status.
func (c *Collection[T]) Save(ctx context.Context, rec T) (T, error) {
	out, err := reconcile.SyncRecord(ctx, c.env.Rec, rec)
	if err != nil {
		return out, err
	}
	c.env.Bus.Invalidate(c.table)
	return out, nil
}

// Insert writes rec with insert semantics.
func (c *Collection[T]) Insert(ctx context.Context, rec T) (T, error) {
	out, err := reconcile.InsertRecord(ctx, c.env.Rec, rec)
	if err != nil {
		return out, err
	}
	c.env.Bus.Invalidate(c.table)
	return out, nil
}

// Remove hard-deletes the row with the given primary key.
func (c *Collection[T]) Remove(ctx context.Context, key string) (models.SyncStatus, error) {
	status, err := reconcile.DeleteRecord(ctx, c.env.Rec, c.table, key)
	if err != nil {
		return status, err
	}
	c.env.Bus.Invalidate(c.table)
	return status, nil
}
