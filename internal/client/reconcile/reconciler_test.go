package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/atinyakov/SiteKeeper/internal/client/localstore"
	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/stretchr/testify/require"
)

func TestSyncRecord_OfflineQueuesPending(t *testing.T) {
	h := newHarness(false)
	folder := models.Folder{ID: "f1", Name: "Südbau", UserID: "anna"}

	got, err := SyncRecord(context.Background(), h.rec, folder)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, got.SyncStatus)
	require.Equal(t, "Südbau", got.Name)
	require.Empty(t, h.remote.Calls())

	ops := h.queue.Snapshot()
	require.Len(t, ops, 1)
	require.Equal(t, models.OpUpsert, ops[0].Operation)
	require.Equal(t, models.TableFolders, ops[0].Table)
	require.Equal(t, "f1", ops[0].Key)
	require.Equal(t, "f1", decodeRow(ops[0].Data)["id"])
}

func TestSyncRecord_OfflineOneEntryPerMutation(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	p := models.Project{ID: "p1", Title: "Halle 3"}
	for i := 0; i < 3; i++ {
		p.Title += "!"
		got, err := SyncRecord(ctx, h.rec, p)
		require.NoError(t, err)
		require.Equal(t, models.StatusPending, got.SyncStatus)
	}
	require.Len(t, h.queue.Snapshot(), 3)
}

func TestSyncRecord_OnlineReturnsServerRow(t *testing.T) {
	h := newHarness(true)
	folder := models.Folder{ID: "f1", Name: "Südbau", SyncStatus: models.StatusPending}

	got, err := SyncRecord(context.Background(), h.rec, folder)
	require.NoError(t, err)
	require.Equal(t, models.StatusSynced, got.SyncStatus)
	require.Empty(t, h.queue.Snapshot())

	calls := h.remote.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, models.OpUpsert, calls[0].Op)
	require.Equal(t, "synced", calls[0].Row["sync_status"])
}

func TestSyncRecord_OnlineFailureConvergesWithOffline(t *testing.T) {
	ctx := context.Background()
	folder := models.Folder{ID: "f1", Name: "Südbau", SyncStatus: models.StatusPending}

	offline := newHarness(false)
	_, err := SyncRecord(ctx, offline.rec, folder)
	require.NoError(t, err)

	failing := newHarness(true)
	failing.remote.fail = func(int, call) error { return errNetwork }
	got, err := SyncRecord(ctx, failing.rec, folder)
	require.NoError(t, err)
	require.Equal(t, models.StatusError, got.SyncStatus)

	want, have := offline.queue.Snapshot(), failing.queue.Snapshot()
	require.Len(t, have, 1)
	require.Equal(t, want[0].Operation, have[0].Operation)
	require.Equal(t, want[0].Table, have[0].Table)
	require.Equal(t, want[0].Key, have[0].Key)
	require.JSONEq(t, string(want[0].Data), string(have[0].Data))
	require.Equal(t, "pending", decodeRow(have[0].Data)["sync_status"])
}

func TestSyncRecord_LocalStoreFailure(t *testing.T) {
	h := newHarness(false)
	h.queue.appendErr = errors.New("disk full")

	_, err := SyncRecord(context.Background(), h.rec, models.Folder{ID: "f1"})
	require.ErrorContains(t, err, "disk full")
}

func TestInsertRecord_UsesInsert(t *testing.T) {
	h := newHarness(true)
	msg := models.Message{ID: "m1", ProjectID: "p1", Type: models.MessageText, Content: json.RawMessage(`{"text":"hi"}`)}

	got, err := InsertRecord(context.Background(), h.rec, msg)
	require.NoError(t, err)
	require.Equal(t, models.StatusSynced, got.SyncStatus)
	require.JSONEq(t, `{"text":"hi"}`, string(got.Content))
	require.Equal(t, models.OpInsert, h.remote.Calls()[0].Op)
}

func TestDeleteRecord(t *testing.T) {
	tests := []struct {
		name   string
		online bool
		fail   error
		want   models.SyncStatus
		queued int
		calls  int
	}{
		{"offline", false, nil, models.StatusPending, 1, 0},
		{"online", true, nil, models.StatusSynced, 0, 1},
		{"online failure", true, errNetwork, models.StatusError, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.online)
			if tt.fail != nil {
				h.remote.fail = func(int, call) error { return tt.fail }
			}
			status, err := DeleteRecord(context.Background(), h.rec, models.TableFolders, "f1")
			require.NoError(t, err)
			require.Equal(t, tt.want, status)
			require.Len(t, h.queue.Snapshot(), tt.queued)
			require.Len(t, h.remote.Calls(), tt.calls)
			if tt.queued > 0 {
				op := h.queue.Snapshot()[0]
				require.Equal(t, models.OpDelete, op.Operation)
				require.Equal(t, "f1", op.Key)
			}
		})
	}
}

func TestDrain_CreatedOfflineThenSynced(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	_, err := SyncRecord(ctx, h.rec, models.Folder{ID: "f1", Name: "Südbau"})
	require.NoError(t, err)

	h.conn.Set(true)
	res, err := h.rec.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, DrainResult{Attempted: 1, Succeeded: 1, Passes: 1}, res)
	require.Empty(t, h.queue.Snapshot())
	require.Equal(t, []string{"starting 1", "completed"}, h.notify.Events())
	require.Equal(t, "synced", h.remote.Row(models.TableFolders, "f1")["sync_status"])
}

func TestDrain_FirstMessageFailsSecondSucceeds(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	for _, id := range []string{"m1", "m2"} {
		_, err := InsertRecord(ctx, h.rec, models.Message{ID: id, ProjectID: "P", Type: models.MessageText})
		require.NoError(t, err)
	}
	first := h.queue.Snapshot()[0]

	h.conn.Set(true)
	h.remote.fail = func(n int, _ call) error {
		if n == 0 {
			return errNetwork
		}
		return nil
	}
	res, err := h.rec.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Attempted)
	require.Equal(t, 1, res.Succeeded)
	require.Equal(t, 1, res.Remaining)

	left := h.queue.Snapshot()
	require.Len(t, left, 1)
	require.Equal(t, first.ID, left[0].ID)
	require.Equal(t, models.OpInsert, left[0].Operation)
	require.Equal(t, []string{"starting 2", "completed"}, h.notify.Events())
}

func TestDrain_ArchiveToggledTwiceIsNetNoop(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	x := models.Project{ID: "x", Title: "Brücke", Archived: false}
	for i := 0; i < 2; i++ {
		x.Archived = !x.Archived
		_, err := SyncRecord(ctx, h.rec, x)
		require.NoError(t, err)
	}
	ops := h.queue.Snapshot()
	require.Len(t, ops, 2)
	require.Equal(t, "x", ops[0].Key)
	require.Equal(t, "x", ops[1].Key)

	h.conn.Set(true)
	_, err := h.rec.Drain(ctx)
	require.NoError(t, err)

	calls := h.remote.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, true, calls[0].Row["archived"])
	require.Equal(t, false, calls[1].Row["archived"])
	require.Equal(t, false, h.remote.Row(models.TableProjects, "x")["archived"])
}

func TestDrain_EmptyQueueIsSilent(t *testing.T) {
	h := newHarness(true)

	res, err := h.rec.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, DrainResult{Passes: 1}, res)
	require.Empty(t, h.remote.Calls())
	require.Empty(t, h.notify.Events())
}

func TestDrain_OfflineIsNoop(t *testing.T) {
	h := newHarness(false)
	_, err := SyncRecord(context.Background(), h.rec, models.Folder{ID: "f1"})
	require.NoError(t, err)

	res, err := h.rec.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, DrainResult{}, res)
	require.Len(t, h.queue.Snapshot(), 1)
	require.Empty(t, h.notify.Events())
}

func TestDrain_FailureDoesNotAbortPass(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := SyncRecord(ctx, h.rec, models.Note{ID: id, ProjectID: "p1"})
		require.NoError(t, err)
	}
	failed := h.queue.Snapshot()[1]

	h.conn.Set(true)
	h.remote.fail = func(_ int, c call) error {
		if c.Key == "b" {
			return errNetwork
		}
		return nil
	}
	res, err := h.rec.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, res.Attempted)
	require.Len(t, h.remote.Calls(), 4)

	left := h.queue.Snapshot()
	require.Len(t, left, 1)
	require.Equal(t, failed.ID, left[0].ID)

	// The failed item is retried on the next trigger, not within the pass.
	h.remote.fail = nil
	res, err = h.rec.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Attempted)
	require.Empty(t, h.queue.Snapshot())
}

func TestDrain_EachOperationProcessedOnce(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := SyncRecord(ctx, h.rec, models.Contact{ID: id, Name: id})
		require.NoError(t, err)
	}

	h.conn.Set(true)
	_, err := h.rec.Drain(ctx)
	require.NoError(t, err)
	_, err = h.rec.Drain(ctx)
	require.NoError(t, err)

	require.Len(t, h.remote.Calls(), 3)
	require.Empty(t, h.queue.Snapshot())
}

func TestDrain_ReplayingUpsertTwiceIsIdempotent(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	_, err := SyncRecord(ctx, h.rec, models.Folder{ID: "f1", Name: "Südbau", Archived: true})
	require.NoError(t, err)
	op := h.queue.Snapshot()[0]

	h.conn.Set(true)
	_, err = h.rec.Drain(ctx)
	require.NoError(t, err)
	once := h.remote.Row(models.TableFolders, "f1")

	// Crash between the remote write and the queue removal.
	require.NoError(t, h.queue.Append(ctx, op))
	_, err = h.rec.Drain(ctx)
	require.NoError(t, err)

	require.Equal(t, once, h.remote.Row(models.TableFolders, "f1"))
	require.Empty(t, h.queue.Snapshot())
}

func TestDrain_ReplaysInEnqueueOrder(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	_, err := SyncRecord(ctx, h.rec, models.Project{ID: "p1", Title: "Halle"})
	require.NoError(t, err)
	_, err = SyncRecord(ctx, h.rec, models.Folder{ID: "f1", Name: "Südbau"})
	require.NoError(t, err)
	_, err = SyncRecord(ctx, h.rec, models.ProjectDetail{ID: "d1", ProjectID: "p1", Key: "Bauherr", Value: "Stadt"})
	require.NoError(t, err)

	h.conn.Set(true)
	_, err = h.rec.Drain(ctx)
	require.NoError(t, err)

	var tables []models.Table
	for _, c := range h.remote.Calls() {
		tables = append(tables, c.Table)
	}
	require.Equal(t, []models.Table{models.TableProjects, models.TableFolders, models.TableProjectDetails}, tables)
}

func TestDrain_DuplicateInsertCountsAsApplied(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	_, err := InsertRecord(ctx, h.rec, models.Message{ID: "m1", ProjectID: "p1"})
	require.NoError(t, err)
	op := h.queue.Snapshot()[0]

	h.conn.Set(true)
	_, err = h.rec.Drain(ctx)
	require.NoError(t, err)

	require.NoError(t, h.queue.Append(ctx, op))
	res, err := h.rec.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Succeeded)
	require.Empty(t, h.queue.Snapshot())
}

func TestDrain_InvalidOperationStaysQueued(t *testing.T) {
	h := newHarness(true)
	ctx := context.Background()
	require.NoError(t, h.queue.Append(ctx, models.PendingOperation{ID: "bad", Operation: "merge", Table: models.TableFolders}))
	require.NoError(t, h.queue.Append(ctx, models.NewDelete(models.TableFolders, "f1")))

	res, err := h.rec.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Attempted)
	require.Equal(t, 1, res.Succeeded)
	require.Len(t, h.remote.Calls(), 1)
	require.Equal(t, "bad", h.queue.Snapshot()[0].ID)
}

func TestDrain_ReplayForcesSyncedAndKeepsNumbers(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	_, err := SyncRecord(ctx, h.rec, models.File{ID: "file1", ProjectID: "p1", Size: 9007199254740993, SyncStatus: models.StatusError})
	require.NoError(t, err)

	h.conn.Set(true)
	_, err = h.rec.Drain(ctx)
	require.NoError(t, err)

	row := h.remote.Row(models.TableFiles, "file1")
	require.Equal(t, "synced", row["sync_status"])
	require.Equal(t, json.Number("9007199254740993"), row["size"])
}

func TestDrain_RemoveFailureStopsPass(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()
	_, err := SyncRecord(ctx, h.rec, models.Folder{ID: "f1"})
	require.NoError(t, err)
	_, err = SyncRecord(ctx, h.rec, models.Folder{ID: "f2"})
	require.NoError(t, err)

	h.conn.Set(true)
	h.queue.removeErr = errors.New("database is locked")
	res, err := h.rec.Drain(ctx)
	require.ErrorContains(t, err, "database is locked")
	require.Equal(t, 1, res.Attempted)
	require.Equal(t, []string{"starting 2", "completed"}, h.notify.Events())

	// The guard is released after a failed drain.
	h.queue.removeErr = nil
	_, err = h.rec.Drain(ctx)
	require.NoError(t, err)
	require.Empty(t, h.queue.Snapshot())
}

func TestDrain_OverlappingRequestsCollapseIntoOneFollowUp(t *testing.T) {
	h := newHarness(true)
	ctx := context.Background()
	h.remote.entered = make(chan struct{})
	h.remote.release = make(chan struct{})

	require.NoError(t, h.queue.Append(ctx, models.NewDelete(models.TableFolders, "f1")))

	type outcome struct {
		res DrainResult
		err error
	}
	done := make(chan outcome)
	go func() {
		res, err := h.rec.Drain(ctx)
		done <- outcome{res, err}
	}()
	<-h.remote.entered

	// Queued during the running pass; not part of its snapshot.
	require.NoError(t, h.queue.Append(ctx, models.NewDelete(models.TableFolders, "f2")))
	for i := 0; i < 3; i++ {
		res, err := h.rec.Drain(ctx)
		require.NoError(t, err)
		require.True(t, res.Deferred)
	}
	close(h.remote.release)

	out := <-done
	require.NoError(t, out.err)
	res := out.res
	require.Equal(t, 2, res.Passes)
	require.Equal(t, 2, res.Attempted)
	require.Equal(t, 2, res.Succeeded)
	require.Empty(t, h.queue.Snapshot())
	require.Equal(t, []string{"starting 1", "completed", "starting 1", "completed"}, h.notify.Events())
}

func TestHooks(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	var queued, applied []string
	h.rec.OnQueued = func(_ context.Context, op models.PendingOperation, _ models.SyncStatus) { queued = append(queued, op.Key) }
	h.rec.OnApplied = func(_ context.Context, op models.PendingOperation) { applied = append(applied, op.Key) }

	_, err := SyncRecord(ctx, h.rec, models.Folder{ID: "f1"})
	require.NoError(t, err)
	h.conn.Set(true)
	_, err = h.rec.Drain(ctx)
	require.NoError(t, err)

	require.Equal(t, []string{"f1"}, queued)
	require.Equal(t, []string{"f1"}, applied)
}

func TestHooks_QueuedStatusMatchesResult(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		write func(h *harness) (models.SyncStatus, error)
	}{
		{"upsert", func(h *harness) (models.SyncStatus, error) {
			got, err := SyncRecord(ctx, h.rec, models.Folder{ID: "f1"})
			return got.SyncStatus, err
		}},
		{"insert", func(h *harness) (models.SyncStatus, error) {
			got, err := InsertRecord(ctx, h.rec, models.Message{ID: "m1", ProjectID: "p1", Type: models.MessageText})
			return got.SyncStatus, err
		}},
		{"delete", func(h *harness) (models.SyncStatus, error) {
			return DeleteRecord(ctx, h.rec, models.TableFolders, "f1")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The prober flips the mirror offline while the remote call fails.
			h := newHarness(true)
			h.remote.fail = func(int, call) error {
				h.conn.Set(false)
				return errNetwork
			}
			var hooked []models.SyncStatus
			h.rec.OnQueued = func(_ context.Context, _ models.PendingOperation, status models.SyncStatus) {
				hooked = append(hooked, status)
			}

			got, err := tt.write(h)
			require.NoError(t, err)
			require.Equal(t, models.StatusError, got)
			require.Equal(t, []models.SyncStatus{models.StatusError}, hooked)
		})
	}
}

func TestReconciler_WithSQLiteQueue(t *testing.T) {
	store, err := localstore.Open("sqlite", t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	remote := newFakeRemote()
	conn := &flag{}
	rec := New(remote, store, conn, nil, nil)

	got, err := SyncRecord(ctx, rec, models.Folder{ID: "f1", Name: "Südbau"})
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, got.SyncStatus)

	conn.Set(true)
	res, err := rec.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Succeeded)

	ops, err := store.All(ctx)
	require.NoError(t, err)
	require.Empty(t, ops)
	require.Equal(t, "Südbau", remote.Row(models.TableFolders, "f1")["name"])
}
