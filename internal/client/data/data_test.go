package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/SiteKeeper/internal/client/connectivity"
	"github.com/atinyakov/SiteKeeper/internal/client/localstore"
	"github.com/atinyakov/SiteKeeper/internal/client/reconcile"
	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/stretchr/testify/require"
)

// memRemote is an in-memory remote store keyed by table and id.
type memRemote struct {
	mu      sync.Mutex
	rows    map[models.Table]map[string]json.RawMessage
	objects map[string][]byte
	selects int
	failAll error

	subscribe func(ctx context.Context, fn func(models.Change)) error
}

func newMemRemote() *memRemote {
	return &memRemote{rows: map[models.Table]map[string]json.RawMessage{}, objects: map[string][]byte{}}
}

func (m *memRemote) put(table models.Table, raw json.RawMessage) (json.RawMessage, error) {
	row, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	if m.rows[table] == nil {
		m.rows[table] = map[string]json.RawMessage{}
	}
	m.rows[table][row["id"].(string)] = raw
	return raw, nil
}

func (m *memRemote) Upsert(_ context.Context, table models.Table, raw json.RawMessage) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	return m.put(table, raw)
}

func (m *memRemote) Insert(_ context.Context, table models.Table, raw json.RawMessage) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	row, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	if _, ok := m.rows[table][row["id"].(string)]; ok {
		return nil, models.ErrDuplicate
	}
	return m.put(table, raw)
}

func (m *memRemote) Delete(_ context.Context, table models.Table, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	delete(m.rows[table], key)
	return nil
}

func (m *memRemote) Select(_ context.Context, table models.Table, filter models.Filter) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selects++
	if m.failAll != nil {
		return nil, m.failAll
	}
	keys := make([]string, 0, len(m.rows[table]))
	for k := range m.rows[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := []json.RawMessage{}
	for _, k := range keys {
		row, _ := decodeObject(m.rows[table][k])
		if filter.Matches(row) {
			out = append(out, m.rows[table][k])
		}
	}
	return json.Marshal(out)
}

func (m *memRemote) Subscribe(ctx context.Context, _ models.Table, _ models.Filter, fn func(models.Change)) error {
	if m.subscribe != nil {
		return m.subscribe(ctx, fn)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *memRemote) UploadObject(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = b
	m.mu.Unlock()
	return nil
}

func (m *memRemote) DownloadObject(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memRemote) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

type fixture struct {
	remote *memRemote
	store  localstore.Store
	conn   *connectivity.Mirror
	rec    *reconcile.Reconciler
	env    *Env
	hooks  *Hooks
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	store, err := localstore.Open("file", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{remote: newMemRemote(), store: store, conn: &connectivity.Mirror{}}
	f.conn.Set(online)
	f.rec = reconcile.New(f.remote, store, f.conn, nil, nil)
	f.env = NewEnv(f.remote, store, f.rec, "anna", nil)
	f.hooks = NewHooks(f.env)
	return f
}

func (f *fixture) goOnline(t *testing.T) {
	t.Helper()
	f.conn.Set(true)
	_, err := f.rec.Drain(context.Background())
	require.NoError(t, err)
}

func TestList_OnlineRefreshesSnapshot(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.hooks.Folders.Create(ctx, "Südbau")
	require.NoError(t, err)
	require.Equal(t, models.StatusSynced, created.SyncStatus)

	folders, err := f.hooks.Folders.Active(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 1)

	// Offline reads come from the snapshot taken by the online read.
	f.conn.Set(false)
	f.remote.mu.Lock()
	f.remote.rows = map[models.Table]map[string]json.RawMessage{}
	f.remote.mu.Unlock()

	folders, err = f.hooks.Folders.Active(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	require.Equal(t, "Südbau", folders[0].Name)
}

func TestList_RemoteFailureFallsBackToSnapshot(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.hooks.Contacts.Save(ctx, models.Contact{ID: "c1", Name: "Bauer GmbH"})
	require.NoError(t, err)
	_, err = f.hooks.Contacts.List(ctx, nil)
	require.NoError(t, err)

	f.remote.failAll = errors.New("timeout")
	contacts, err := f.hooks.Contacts.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	require.Equal(t, 2, f.remote.selects)
}

func TestList_OfflineWithoutSnapshot(t *testing.T) {
	f := newFixture(t, false)

	notes, err := f.hooks.Notes.List(context.Background(), models.Filter{"project_id": "p1"})
	require.NoError(t, err)
	require.NotNil(t, notes)
	require.Empty(t, notes)
	require.Zero(t, f.remote.selects)
}

func TestOverlay_OfflineWritesVisibleUntilSynced(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	folder, err := f.hooks.Folders.Create(ctx, "Südbau")
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, folder.SyncStatus)

	folders, err := f.hooks.Folders.Active(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	require.Equal(t, models.StatusPending, folders[0].SyncStatus)

	_, err = f.hooks.Folders.Rename(ctx, folders[0], "Südbau II")
	require.NoError(t, err)
	folders, err = f.hooks.Folders.Active(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	require.Equal(t, "Südbau II", folders[0].Name)

	f.goOnline(t)
	folders, err = f.hooks.Folders.Active(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	require.Equal(t, "Südbau II", folders[0].Name)
	require.Equal(t, models.StatusSynced, folders[0].SyncStatus)

	var entries map[string]overlayEntry
	_, err = f.store.Get(ctx, nsOverlay, string(models.TableFolders), &entries)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestOverlay_FailedOnlineWriteTaggedError(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.remote.failAll = errors.New("502 bad gateway")

	project, err := f.hooks.Projects.Create(ctx, "Halle 3", nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusError, project.SyncStatus)

	projects, err := f.hooks.Projects.Active(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.Equal(t, models.StatusError, projects[0].SyncStatus)
}

func TestOverlay_HidesRowsMovedOutOfFilter(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	folder, err := f.hooks.Folders.Create(ctx, "Alt")
	require.NoError(t, err)
	_, err = f.hooks.Folders.Active(ctx)
	require.NoError(t, err)

	f.conn.Set(false)
	_, err = f.hooks.Folders.SoftDelete(ctx, folder)
	require.NoError(t, err)

	active, err := f.hooks.Folders.Active(ctx)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestFolders_DeletePermanentlyRequiresTrash(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	folder, err := f.hooks.Folders.Create(ctx, "Alt")
	require.NoError(t, err)

	_, err = f.hooks.Folders.DeletePermanently(ctx, folder)
	require.ErrorIs(t, err, ErrNotSoftDeleted)

	folder, err = f.hooks.Folders.SoftDelete(ctx, folder)
	require.NoError(t, err)
	trash, err := f.hooks.Folders.Trash(ctx)
	require.NoError(t, err)
	require.Len(t, trash, 1)

	restored, err := f.hooks.Folders.Restore(ctx, trash[0])
	require.NoError(t, err)
	require.Nil(t, restored.DeletedAt)

	folder, err = f.hooks.Folders.SoftDelete(ctx, restored)
	require.NoError(t, err)
	status, err := f.hooks.Folders.DeletePermanently(ctx, folder)
	require.NoError(t, err)
	require.Equal(t, models.StatusSynced, status)

	all, err := f.hooks.Folders.List(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestOverlay_QueuedDeleteHidesRow(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	folder, err := f.hooks.Folders.Create(ctx, "Alt")
	require.NoError(t, err)
	folder, err = f.hooks.Folders.SoftDelete(ctx, folder)
	require.NoError(t, err)
	_, err = f.hooks.Folders.List(ctx, nil)
	require.NoError(t, err)

	f.conn.Set(false)
	status, err := f.hooks.Folders.DeletePermanently(ctx, folder)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, status)

	all, err := f.hooks.Folders.List(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestProjects_MoveAndInFolder(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	folder, err := f.hooks.Folders.Create(ctx, "Südbau")
	require.NoError(t, err)
	project, err := f.hooks.Projects.Create(ctx, "Halle 3", nil)
	require.NoError(t, err)

	unfiled, err := f.hooks.Projects.InFolder(ctx, nil)
	require.NoError(t, err)
	require.Len(t, unfiled, 1)

	_, err = f.hooks.Projects.Move(ctx, project, &folder.ID)
	require.NoError(t, err)

	inFolder, err := f.hooks.Projects.InFolder(ctx, &folder.ID)
	require.NoError(t, err)
	require.Len(t, inFolder, 1)
	require.Equal(t, "Halle 3", inFolder[0].Title)

	unfiled, err = f.hooks.Projects.InFolder(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, unfiled)
}

func TestMessages_SendOfflineThenDrain(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	msg, err := f.hooks.Messages.Send(ctx, "p1", models.MessageText, json.RawMessage(`{"text":"Beton kommt um 7"}`))
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, msg.SyncStatus)

	ops, err := f.store.All(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, models.OpInsert, ops[0].Operation)

	f.goOnline(t)
	msgs, err := f.hooks.Messages.ForProject(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.JSONEq(t, `{"text":"Beton kommt um 7"}`, string(msgs[0].Content))
}

func TestMessages_OfflineChatKeepsSendOrder(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	var sent []string
	for i := 0; i < 8; i++ {
		msg, err := f.hooks.Messages.Send(ctx, "p1", models.MessageText, json.RawMessage(fmt.Sprintf(`{"text":"n%d"}`, i)))
		require.NoError(t, err)
		sent = append(sent, msg.ID)
	}
	// Editing a queued message keeps its place in the chat.
	msgs, err := f.hooks.Messages.ForProject(ctx, "p1")
	require.NoError(t, err)
	msgs[2].Content = json.RawMessage(`{"text":"n2 edited"}`)
	_, err = f.hooks.Messages.Save(ctx, msgs[2])
	require.NoError(t, err)

	msgs, err = f.hooks.Messages.ForProject(ctx, "p1")
	require.NoError(t, err)
	got := make([]string, 0, len(msgs))
	for _, m := range msgs {
		got = append(got, m.ID)
	}
	require.Equal(t, sent, got)
	require.JSONEq(t, `{"text":"n2 edited"}`, string(msgs[2].Content))
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"nil first", nil, "a", -1},
		{"both nil", nil, nil, 0},
		{"numbers", json.Number("9"), json.Number("10"), -1},
		{"timestamps with trimmed fraction", "2024-05-01T10:00:00.1Z", "2024-05-01T10:00:00.05Z", 1},
		{"timestamps across zones", "2024-05-01T12:00:00+02:00", "2024-05-01T10:30:00Z", -1},
		{"names", "Bauer", "Aldi", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, compareValues(tt.a, tt.b))
		})
	}
}

func TestInvalidator(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	var got []models.Table
	cancel := f.env.Bus.Subscribe(func(table models.Table) { got = append(got, table) })

	_, err := f.hooks.Notes.Save(ctx, models.Note{ID: "n1", ProjectID: "p1", Body: "Gerüst prüfen"})
	require.NoError(t, err)
	cancel()
	_, err = f.hooks.Notes.Save(ctx, models.Note{ID: "n2", ProjectID: "p1"})
	require.NoError(t, err)

	require.Equal(t, []models.Table{models.TableNotes}, got)
}

func TestMessages_WatchInvalidatesAndResubscribes(t *testing.T) {
	f := newFixture(t, true)
	old := watchRetry
	watchRetry = time.Millisecond
	t.Cleanup(func() { watchRetry = old })

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	subscriptions := 0
	f.remote.subscribe = func(ctx context.Context, fn func(models.Change)) error {
		mu.Lock()
		subscriptions++
		n := subscriptions
		mu.Unlock()
		fn(models.Change{Table: models.TableMessages, Type: models.ChangeInsert})
		if n < 3 {
			return errors.New("feed closed")
		}
		<-ctx.Done()
		return ctx.Err()
	}

	invalidated := make(chan struct{}, 8)
	f.env.Bus.Subscribe(func(models.Table) { invalidated <- struct{}{} })

	done := make(chan struct{})
	go func() {
		f.hooks.Messages.Watch(ctx, "p1")
		close(done)
	}()
	for i := 0; i < 3; i++ {
		<-invalidated
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 3, subscriptions)
}

func TestFiles_Upload(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	content := []byte("%PDF-1.7")

	_, err := f.hooks.Files.Upload(ctx, "p1", nil, "plan.pdf", bytes.NewReader(content), int64(len(content)), "application/pdf")
	require.ErrorIs(t, err, ErrOffline)

	f.conn.Set(true)
	file, err := f.hooks.Files.Upload(ctx, "p1", nil, "../plan.pdf", bytes.NewReader(content), int64(len(content)), "application/pdf")
	require.NoError(t, err)
	require.Equal(t, models.StatusSynced, file.SyncStatus)
	require.Equal(t, "p1/"+file.ID+"/plan.pdf", file.ObjectKey)

	files, err := f.hooks.Files.InProject(ctx, "p1", nil)
	require.NoError(t, err)
	require.Len(t, files, 1)

	rc, err := f.hooks.Files.Open(ctx, files[0])
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestFiles_DeletePermanently(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	content := []byte("photo")

	file, err := f.hooks.Files.Upload(ctx, "p1", nil, "site.jpg", bytes.NewReader(content), int64(len(content)), "image/jpeg")
	require.NoError(t, err)

	_, err = f.hooks.Files.DeletePermanently(ctx, file)
	require.ErrorIs(t, err, ErrNotSoftDeleted)

	trashed, err := f.hooks.Files.SoftDelete(ctx, file)
	require.NoError(t, err)
	trash, err := f.hooks.Files.Trash(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, trash, 1)

	f.conn.Set(false)
	_, err = f.hooks.Files.DeletePermanently(ctx, trashed)
	require.ErrorIs(t, err, ErrOffline)
	f.conn.Set(true)

	status, err := f.hooks.Files.DeletePermanently(ctx, trashed)
	require.NoError(t, err)
	require.Equal(t, models.StatusSynced, status)

	f.remote.mu.Lock()
	require.NotContains(t, f.remote.objects, file.ObjectKey)
	f.remote.mu.Unlock()

	trash, err = f.hooks.Files.Trash(ctx, "p1")
	require.NoError(t, err)
	require.Empty(t, trash)
}
