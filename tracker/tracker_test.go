package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdel/torrent-telegram-bot/config"
	"github.com/verdel/torrent-telegram-bot/engine"
	"github.com/verdel/torrent-telegram-bot/store"
)

type fakeEngine struct {
	mu       sync.Mutex
	torrents map[string]engine.Snapshot
	nextID   string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{torrents: make(map[string]engine.Snapshot), nextID: "abc"}
}

func (f *fakeEngine) List(ctx context.Context) ([]engine.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]engine.Snapshot, 0, len(f.torrents))
	for _, s := range f.torrents {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeEngine) Get(ctx context.Context, id string) (engine.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.torrents[id]
	if !ok {
		return engine.Snapshot{}, engine.ErrNotFound
	}
	return s, nil
}

func (f *fakeEngine) Add(ctx context.Context, data []byte, downloadDir string) (engine.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := engine.Snapshot{ID: f.nextID, Name: "added-" + f.nextID, Status: engine.StatusDownloading}
	f.torrents[s.ID] = s
	return s, nil
}

func (f *fakeEngine) Remove(ctx context.Context, id string, deleteData bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.torrents, id)
	return nil
}

func (f *fakeEngine) put(s engine.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.torrents[s.ID] = s
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Completed(owner int64, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, name)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

var testPolicy = []*config.AllowChat{
	{TelegramID: 1, TorrentPermission: "personal"},
	{TelegramID: 2, TorrentPermission: "all"},
	{TelegramID: 3, TorrentPermission: "personal", AllowCategory: []string{"movies"}},
}

var testPaths = []*config.ClientPath{
	{Category: "movies", Dir: "/downloads/movies"},
	{Category: "music", Dir: "/downloads/music"},
}

func newTestTracker(t *testing.T) (*Tracker, *fakeEngine, *store.Store, *fakeNotifier) {
	t.Helper()

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	eng := newFakeEngine()
	n := &fakeNotifier{}
	return New(eng, st, testPolicy, testPaths, n), eng, st, n
}

func TestListDeniedWithoutPolicy(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)

	_, err := tr.List(context.Background(), 42, false)
	assert.ErrorIs(t, err, ErrDenied)
}

func TestListPersonalOnlyOwnTorrents(t *testing.T) {
	tr, eng, st, _ := newTestTracker(t)

	eng.put(engine.Snapshot{ID: "mine", Name: "mine"})
	eng.put(engine.Snapshot{ID: "theirs", Name: "theirs"})
	require.NoError(t, st.Record(1, "mine"))
	require.NoError(t, st.Record(9, "theirs"))

	torrents, err := tr.List(context.Background(), 1, false)
	require.NoError(t, err)
	require.Len(t, torrents, 1)
	assert.Equal(t, "mine", torrents[0].ID)
}

func TestListPersonalSkipsVanished(t *testing.T) {
	tr, eng, st, _ := newTestTracker(t)

	eng.put(engine.Snapshot{ID: "alive", Name: "alive"})
	require.NoError(t, st.Record(1, "alive"))
	require.NoError(t, st.Record(1, "gone"))

	torrents, err := tr.List(context.Background(), 1, false)
	require.NoError(t, err)
	require.Len(t, torrents, 1)
	assert.Equal(t, "alive", torrents[0].ID)
}

func TestListAllSeesEverything(t *testing.T) {
	tr, eng, _, _ := newTestTracker(t)

	eng.put(engine.Snapshot{ID: "a"})
	eng.put(engine.Snapshot{ID: "b"})

	torrents, err := tr.List(context.Background(), 2, false)
	require.NoError(t, err)
	assert.Len(t, torrents, 2, "all scope needs no ownership records")
}

func TestListDownloadingOnly(t *testing.T) {
	tr, eng, _, _ := newTestTracker(t)

	eng.put(engine.Snapshot{ID: "a", Status: engine.StatusDownloading})
	eng.put(engine.Snapshot{ID: "b", Status: "seeding"})

	torrents, err := tr.List(context.Background(), 2, true)
	require.NoError(t, err)
	require.Len(t, torrents, 1)
	assert.Equal(t, "a", torrents[0].ID)
}

func TestAddThenListRoundTrip(t *testing.T) {
	tr, _, st, _ := newTestTracker(t)

	snap, err := tr.Add(context.Background(), 1, []byte("payload"), "/downloads/movies")
	require.NoError(t, err)
	assert.Equal(t, "abc", snap.ID)

	records, err := st.ListByOwner(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "abc", records[0].TorrentID)
	assert.False(t, records[0].Complete)

	torrents, err := tr.List(context.Background(), 1, false)
	require.NoError(t, err)
	require.Len(t, torrents, 1)
	assert.Equal(t, "abc", torrents[0].ID)
}

func TestAddDenied(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)

	_, err := tr.Add(context.Background(), 42, []byte("payload"), "/downloads/movies")
	assert.ErrorIs(t, err, ErrDenied)
}

func TestAddCategoryRestriction(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)

	_, err := tr.Add(context.Background(), 3, []byte("payload"), "/downloads/music")
	assert.ErrorIs(t, err, ErrDenied)

	_, err = tr.Add(context.Background(), 3, []byte("payload"), "/downloads/movies")
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	tr, eng, st, _ := newTestTracker(t)

	eng.put(engine.Snapshot{ID: "abc", Name: "ubuntu.iso"})
	require.NoError(t, st.Record(1, "abc"))

	name, err := tr.Delete(context.Background(), 1, "abc")
	require.NoError(t, err)
	assert.Equal(t, "ubuntu.iso", name)

	_, err = eng.Get(context.Background(), "abc")
	assert.ErrorIs(t, err, engine.ErrNotFound)

	records, err := st.ListByOwner(1)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDeleteUnownedByAllScope(t *testing.T) {
	tr, eng, st, _ := newTestTracker(t)

	eng.put(engine.Snapshot{ID: "abc", Name: "ubuntu.iso"})
	require.NoError(t, st.Record(1, "abc"))

	// chat 2 has all scope and no ownership record for abc
	_, err := tr.Delete(context.Background(), 2, "abc")
	require.NoError(t, err)

	records, err := st.ListByOwner(1)
	require.NoError(t, err)
	assert.Empty(t, records, "store rows are removed even when the deleter is not the owner")
}

func TestReconcilePrunesVanished(t *testing.T) {
	tr, _, st, n := newTestTracker(t)

	require.NoError(t, st.Record(1, "gone"))

	tr.Reconcile(context.Background())

	records, err := st.ListIncomplete()
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, n.count(), "pruning never notifies")
}

func TestReconcileMarksComplete(t *testing.T) {
	tr, eng, st, n := newTestTracker(t)

	done := time.Unix(1700000000, 0)
	eng.put(engine.Snapshot{ID: "abc", Name: "ubuntu.iso", CompletedAt: &done})
	require.NoError(t, st.Record(1, "abc"))

	tr.Reconcile(context.Background())

	records, err := st.ListByOwner(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Complete)
	assert.Equal(t, 1, n.count())

	// a second sweep finds nothing incomplete and stays quiet
	tr.Reconcile(context.Background())
	assert.Equal(t, 1, n.count())
}

func TestReconcileLeavesIncompleteAlone(t *testing.T) {
	tr, eng, st, n := newTestTracker(t)

	eng.put(engine.Snapshot{ID: "abc", Status: engine.StatusDownloading})
	require.NoError(t, st.Record(1, "abc"))

	tr.Reconcile(context.Background())

	records, err := st.ListIncomplete()
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Zero(t, n.count())
}

func TestRunStopsOnCancel(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciliation loop did not stop")
	}
}
