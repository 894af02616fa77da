// Package data is the client's per-entity access layer. Reads come from the
// remote store while online and from the last cached snapshot otherwise;
// writes go through the reconciler and then invalidate the affected table.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/atinyakov/SiteKeeper/internal/client/reconcile"
	"github.com/atinyakov/SiteKeeper/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrOffline is returned by operations that cannot be deferred.
	ErrOffline = errors.New("not available offline")
	// ErrNotSoftDeleted is returned when permanently deleting a record
	// that is not in the trash.
	ErrNotSoftDeleted = errors.New("record is not in the trash")
)

// Remote is the part of the remote store collections call directly. Row
// writes go through the reconciler instead.
type Remote interface {
	Select(ctx context.Context, table models.Table, filter models.Filter) (json.RawMessage, error)
	Subscribe(ctx context.Context, table models.Table, filter models.Filter, fn func(models.Change)) error
	UploadObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	DownloadObject(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, key string) error
}

// KV is the part of the local store used for snapshots.
type KV interface {
	Get(ctx context.Context, namespace, key string, dst any) (bool, error)
	Set(ctx context.Context, namespace, key string, value any) error
}

// Env bundles what every collection needs.
type Env struct {
	Remote  Remote
	Store   KV
	Rec     *reconcile.Reconciler
	Bus     *Invalidator
	Overlay *Overlay
	// UserID scopes owned tables to the signed-in user.
	UserID string
	Log    *zap.Logger
}

// NewEnv creates an Env and installs the reconciler hooks that keep the
// pending overlay and the invalidation bus current.
func NewEnv(remote Remote, store KV, rec *reconcile.Reconciler, userID string, log *zap.Logger) *Env {
	if log == nil {
		log = zap.NewNop()
	}
	env := &Env{
		Remote:  remote,
		Store:   store,
		Rec:     rec,
		Bus:     NewInvalidator(),
		Overlay: NewOverlay(store),
		UserID:  userID,
		Log:     log,
	}

	rec.OnQueued = func(ctx context.Context, op models.PendingOperation, status models.SyncStatus) {
		if err := env.Overlay.Queued(ctx, op, status); err != nil {
			log.Warn("failed to record pending change", zap.String("table", string(op.Table)), zap.Error(err))
		}
		env.Bus.Invalidate(op.Table)
	}
	rec.OnApplied = func(ctx context.Context, op models.PendingOperation) {
		if err := env.Overlay.Applied(ctx, op); err != nil {
			log.Warn("failed to clear pending change", zap.String("table", string(op.Table)), zap.Error(err))
		}
		env.Bus.Invalidate(op.Table)
	}
	return env
}

// Hooks holds one accessor per table.
type Hooks struct {
	Folders     *Folders
	Projects    *Projects
	Messages    *Messages
	Files       *Files
	Directories *Collection[models.Directory]
	Details     *Collection[models.ProjectDetail]
	Notes       *Collection[models.Note]
	Contacts    *Collection[models.Contact]
	Members     *Collection[models.Member]
}

// NewHooks builds the accessors over env.
func NewHooks(env *Env) *Hooks {
	return &Hooks{
		Folders:     &Folders{NewCollection[models.Folder](env)},
		Projects:    &Projects{NewCollection[models.Project](env)},
		Messages:    &Messages{NewCollection[models.Message](env)},
		Files:       &Files{NewCollection[models.File](env)},
		Directories: NewCollection[models.Directory](env),
		Details:     NewCollection[models.ProjectDetail](env),
		Notes:       NewCollection[models.Note](env),
		Contacts:    NewCollection[models.Contact](env),
		Members:     NewCollection[models.Member](env),
	}
}
