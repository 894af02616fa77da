// Package localstore is the client's durable key-value store: cached
// table snapshots plus the ordered queue of writes waiting for the server.
package localstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/atinyakov/SiteKeeper/internal/models"
)

// Store is implemented by every backend.
//
// Get decodes the value stored under namespace/key into dst and reports
// whether it existed; a missing value leaves dst untouched. Set overwrites
// the whole value. The queue methods keep PendingOperations in insertion
// order.
type Store interface {
	Get(ctx context.Context, namespace, key string, dst any) (bool, error)
	Set(ctx context.Context, namespace, key string, value any) error
	Append(ctx context.Context, op models.PendingOperation) error
	RemoveByID(ctx context.Context, id string) error
	All(ctx context.Context) ([]models.PendingOperation, error)
	Close() error
}

// Open opens the backend named kind ("sqlite" or "file") inside dir.
func Open(kind, dir string) (Store, error) {
	switch kind {
	case "sqlite":
		return OpenSQLite(filepath.Join(dir, "sitekeeper.db"))
	case "file":
		return OpenFile(filepath.Join(dir, "storage.json"))
	}
	return nil, fmt.Errorf("unknown local store %q", kind)
}
