package indexing

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/gupta2140/sensenet/internal/blob"
	"github.com/gupta2140/sensenet/internal/models"
	"github.com/gupta2140/sensenet/internal/search"
	"github.com/gupta2140/sensenet/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	dir := t.TempDir()
	blobs, err := blob.NewFSStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	st, err := sqlite.New(filepath.Join(dir, "repo.db"), blobs)
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })
	return st
}

func insertTestNode(t *testing.T, st *sqlite.Store, path string) (*models.NodeHeadData, *models.VersionData) {
	t.Helper()
	head := &models.NodeHeadData{TypeID: 1, Name: filepath.Base(path), Path: path}
	version := &models.VersionData{}
	dyn := &models.DynamicPropertyData{Dynamic: map[int64]models.PropertyValue{
		1: {Kind: models.KindString, Value: "content of " + path},
	}}
	require.NoError(t, st.InsertNode(context.Background(), head, version, dyn))
	return head, version
}

func testWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		BatchSize:    10,
		LeaseTimeout: time.Minute,
		PollInterval: time.Millisecond,
	}
}

func TestWorker_IndexesInsertedNodes(t *testing.T) {
	st := newTestStore(t)
	sink := search.NewMemorySink()
	ctx := context.Background()

	_, v1 := insertTestNode(t, st, "/Root")
	_, v2 := insertTestNode(t, st, "/Root/Doc")

	w := NewWorker(st, sink, nil, testWorkerConfig(), slog.Default())
	done, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, done)

	// Both documents reached the sink and were persisted by the engine.
	for _, versionID := range []int64{v1.VersionID, v2.VersionID} {
		doc := sink.Get(versionID)
		require.NotNil(t, doc)
		assert.NotEmpty(t, doc.Document)

		stored, err := st.LoadIndexDocuments(ctx, []int64{versionID})
		require.NoError(t, err)
		require.Len(t, stored, 1)
	}

	// The queue is drained.
	recs, err := st.LoadExecutableActivities(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, recs)

	done, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, done)
}

func TestWorker_RemoveTreeClearsSink(t *testing.T) {
	st := newTestStore(t)
	sink := search.NewMemorySink()
	ctx := context.Background()

	folder, _ := insertTestNode(t, st, "/Folder")
	_, docVer := insertTestNode(t, st, "/Folder/Doc")
	_, otherVer := insertTestNode(t, st, "/Other")

	w := NewWorker(st, sink, nil, testWorkerConfig(), nil)
	_, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, sink.Get(docVer.VersionID))

	require.NoError(t, st.DeleteNode(ctx, folder.NodeID, folder.Timestamp))
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)

	assert.Nil(t, sink.Get(docVer.VersionID))
	assert.NotNil(t, sink.Get(otherVer.VersionID))
}

func TestWorker_RebuildActivity(t *testing.T) {
	st := newTestStore(t)
	sink := search.NewMemorySink()
	ctx := context.Background()

	insertTestNode(t, st, "/Root")
	_, docVer := insertTestNode(t, st, "/Root/Doc")

	// Drain the insert activities, then wipe the sink to simulate a lost
	// index.
	w := NewWorker(st, sink, nil, testWorkerConfig(), nil)
	_, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.NoError(t, sink.DeleteTree(ctx, "/Root"))

	rebuild := &models.IndexingActivityRecord{Type: models.ActivityRebuild, Path: "/Root"}
	require.NoError(t, st.RegisterActivity(ctx, rebuild))

	done, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.NotNil(t, sink.Get(docVer.VersionID))
}

// failingSink rejects every put so activities bounce back to the queue.
type failingSink struct {
	*search.MemorySink
}

func (f *failingSink) Put(context.Context, *models.IndexDocument) error {
	return errors.New("backend unavailable")
}

func TestWorker_FailedActivityReturnsToQueue(t *testing.T) {
	st := newTestStore(t)
	sink := &failingSink{MemorySink: search.NewMemorySink()}
	ctx := context.Background()

	insertTestNode(t, st, "/Doc")

	w := NewWorker(st, sink, nil, testWorkerConfig(), nil)
	done, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, done)

	// The activity is Waiting again, immediately leasable.
	recs, err := st.LoadExecutableActivities(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.ActivityAddDocument, recs[0].Type)
}

func TestWorker_ReconcilesGapsFinishedElsewhere(t *testing.T) {
	st := newTestStore(t)
	sink := search.NewMemorySink()
	ctx := context.Background()

	first := &models.IndexingActivityRecord{Type: models.ActivityRemoveDocument, VersionID: 1, Path: "/a"}
	require.NoError(t, st.RegisterActivity(ctx, first))
	second := &models.IndexingActivityRecord{Type: models.ActivityRemoveDocument, VersionID: 2, Path: "/b"}
	require.NoError(t, st.RegisterActivity(ctx, second))

	// Another worker holds the first activity.
	other, err := st.LoadExecutableActivities(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, other, 1)
	require.Equal(t, first.ID, other[0].ID)

	w := NewWorker(st, sink, nil, testWorkerConfig(), nil)
	done, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	// The held id is now a tracked gap.
	assert.Equal(t, []int64{first.ID}, w.waitingIDs())

	// The other worker finishes; the next round reconciles the gap.
	require.NoError(t, st.UpdateActivityRunningState(ctx, first.ID, models.ActivityDone))
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, w.waitingIDs())
}

func TestFactory_UnknownType(t *testing.T) {
	f := NewFactory()
	_, err := f.FromRecord(&models.IndexingActivityRecord{ID: 1, Type: "Bogus"})
	require.Error(t, err)
}

func TestFactory_CustomRegistration(t *testing.T) {
	f := NewFactory()
	called := false
	f.Register("Custom", func(rec *models.IndexingActivityRecord) Activity {
		return activityFunc{rec: rec, fn: func(context.Context, *Dependencies) error {
			called = true
			return nil
		}}
	})

	act, err := f.FromRecord(&models.IndexingActivityRecord{ID: 1, Type: "Custom"})
	require.NoError(t, err)
	require.NoError(t, act.Execute(context.Background(), &Dependencies{}))
	assert.True(t, called)
}

type activityFunc struct {
	rec *models.IndexingActivityRecord
	fn  func(context.Context, *Dependencies) error
}

func (a activityFunc) Record() *models.IndexingActivityRecord { return a.rec }
func (a activityFunc) Execute(ctx context.Context, deps *Dependencies) error {
	return a.fn(ctx, deps)
}
