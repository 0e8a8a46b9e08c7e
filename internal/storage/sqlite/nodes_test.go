package sqlite

import (
	"context"
	"testing"

	"github.com/gupta2140/sensenet/internal/models"
	"github.com/gupta2140/sensenet/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertNode_WritesBackDescriptors(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	head := &models.NodeHeadData{ParentID: 0, TypeID: 7, Name: "Root", Path: "/Root"}
	version := &models.VersionData{}
	require.NoError(t, st.InsertNode(ctx, head, version, &models.DynamicPropertyData{}))

	assert.Positive(t, head.NodeID)
	assert.Positive(t, head.Timestamp)
	assert.Positive(t, version.VersionID)
	assert.Equal(t, head.NodeID, version.NodeID)
	assert.Greater(t, version.Timestamp, head.Timestamp)
	assert.False(t, head.CreatedAt.IsZero())

	// The first version defaults to V1.0.A, so it is both last major and
	// last minor.
	assert.Equal(t, models.VersionNumber{Major: 1, Minor: 0, Status: models.StatusApproved}, version.Version)
	assert.Equal(t, version.VersionID, head.LastMajorVersionID)
	assert.Equal(t, version.VersionID, head.LastMinorVersionID)
}

func TestInsertNode_DuplicatePath(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	insertTestNode(t, st, 0, 1, "Root", "/Root")

	head := &models.NodeHeadData{TypeID: 1, Name: "Root", Path: "/Root"}
	err := st.InsertNode(ctx, head, &models.VersionData{}, &models.DynamicPropertyData{})
	require.ErrorIs(t, err, storage.ErrNodeAlreadyExists)

	// Uniqueness is case-insensitive.
	head = &models.NodeHeadData{TypeID: 1, Name: "ROOT", Path: "/ROOT"}
	err = st.InsertNode(ctx, head, &models.VersionData{}, &models.DynamicPropertyData{})
	require.ErrorIs(t, err, storage.ErrNodeAlreadyExists)

	// Nothing was committed for the failed inserts.
	n, err := st.GetNodeCount(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInsertNode_InvalidPath(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	head := &models.NodeHeadData{TypeID: 1, Name: "x", Path: "no-leading-separator"}
	err := st.InsertNode(ctx, head, &models.VersionData{}, &models.DynamicPropertyData{})
	require.Error(t, err)
}

func TestInsertNode_TimestampsStrictlyIncrease(t *testing.T) {
	st := newTestStore(t)

	var last int64
	for _, path := range []string{"/A", "/B", "/C"} {
		head, version := insertTestNode(t, st, 0, 1, path[1:], path)
		assert.Greater(t, head.Timestamp, last)
		assert.Greater(t, version.Timestamp, head.Timestamp)
		last = version.Timestamp
	}
}

func TestUpdateNode_StaleTimestamp(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	head, version := insertTestNode(t, st, 0, 1, "Doc", "/Doc")
	stored := head.Timestamp

	stale := *head
	stale.Timestamp = stored - 1
	err := st.UpdateNode(ctx, &stale, version, &models.DynamicPropertyData{}, nil, "")
	require.ErrorIs(t, err, storage.ErrConcurrencyConflict)

	// The stored head is untouched by the failed update.
	loaded, err := st.LoadNodeHeadByID(ctx, head.NodeID)
	require.NoError(t, err)
	assert.Equal(t, stored, loaded.Timestamp)

	// A retry with the fresh timestamp succeeds and moves it forward.
	require.NoError(t, st.UpdateNode(ctx, head, version, &models.DynamicPropertyData{}, nil, ""))
	assert.Greater(t, head.Timestamp, stored)
}

func TestUpdateNode_MissingNode(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	head := &models.NodeHeadData{NodeID: 999, TypeID: 1, Name: "x", Path: "/x", Timestamp: 1}
	err := st.UpdateNode(ctx, head, &models.VersionData{VersionID: 1}, &models.DynamicPropertyData{}, nil, "")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateNode_RenamePropagatesToSubtree(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	root, _ := insertTestNode(t, st, 0, 1, "Root", "/Root")
	folder, folderVer := insertTestNode(t, st, root.NodeID, 2, "Folder1", "/Root/Folder1")
	doc, _ := insertTestNode(t, st, folder.NodeID, 3, "Doc", "/Root/Folder1/Doc")
	deep, _ := insertTestNode(t, st, doc.NodeID, 3, "Leaf", "/Root/Folder1/Doc/Leaf")
	sibling, _ := insertTestNode(t, st, root.NodeID, 2, "Folder1Sibling", "/Root/Folder1Sibling")

	folder.Name = "Folder2"
	folder.Path = "/Root/Folder2"
	require.NoError(t, st.UpdateNode(ctx, folder, folderVer, &models.DynamicPropertyData{}, nil, "/Root/Folder1"))

	loaded, err := st.LoadNodeHeadByID(ctx, doc.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "/Root/Folder2/Doc", loaded.Path)

	loaded, err = st.LoadNodeHeadByID(ctx, deep.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "/Root/Folder2/Doc/Leaf", loaded.Path)

	// The sibling only shares the name prefix, not the tree prefix.
	loaded, err = st.LoadNodeHeadByID(ctx, sibling.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "/Root/Folder1Sibling", loaded.Path)
}

func TestUpdateNode_RenameMatchesCaseInsensitive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	root, _ := insertTestNode(t, st, 0, 1, "Root", "/Root")
	folder, folderVer := insertTestNode(t, st, root.NodeID, 2, "Folder1", "/Root/Folder1")
	doc, _ := insertTestNode(t, st, folder.NodeID, 3, "Doc", "/Root/Folder1/Doc")

	folder.Name = "Renamed"
	folder.Path = "/Root/Renamed"
	// The observed prefix differs in casing from the stored paths.
	require.NoError(t, st.UpdateNode(ctx, folder, folderVer, &models.DynamicPropertyData{}, nil, "/root/FOLDER1"))

	loaded, err := st.LoadNodeHeadByID(ctx, doc.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "/Root/Renamed/Doc", loaded.Path)
}

func TestUpdateNode_RenameToOccupiedPath(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	insertTestNode(t, st, 0, 1, "A", "/A")
	b, bVer := insertTestNode(t, st, 0, 1, "B", "/B")

	b.Name = "A"
	b.Path = "/A"
	err := st.UpdateNode(ctx, b, bVer, &models.DynamicPropertyData{}, nil, "/B")
	require.ErrorIs(t, err, storage.ErrNodeAlreadyExists)

	// Occupancy is case-insensitive.
	b.Path = "/a"
	err = st.UpdateNode(ctx, b, bVer, &models.DynamicPropertyData{}, nil, "/B")
	require.ErrorIs(t, err, storage.ErrNodeAlreadyExists)

	// Save-as-new-version hits the same probe.
	b.Path = "/A"
	err = st.CopyAndUpdateNode(ctx, b, bVer, &models.DynamicPropertyData{}, nil, 0, "/B")
	require.ErrorIs(t, err, storage.ErrNodeAlreadyExists)

	// The stored head is untouched and the path still has one live owner.
	loaded, err := st.LoadNodeHeadByID(ctx, b.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "/B", loaded.Path)

	var count int
	require.NoError(t, st.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM nodes WHERE path = '/A' COLLATE NOCASE AND NOT deleted").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestUpdateNode_RenameRefreshesDescendantTimestamps(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	root, _ := insertTestNode(t, st, 0, 1, "Root", "/Root")
	folder, folderVer := insertTestNode(t, st, root.NodeID, 2, "Folder", "/Root/Folder")
	doc, docVer := insertTestNode(t, st, folder.NodeID, 3, "Doc", "/Root/Folder/Doc")
	staleTS := doc.Timestamp

	folder.Name = "Moved"
	folder.Path = "/Root/Moved"
	require.NoError(t, st.UpdateNode(ctx, folder, folderVer, &models.DynamicPropertyData{}, nil, "/Root/Folder"))

	loaded, err := st.LoadNodeHeadByID(ctx, doc.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "/Root/Moved/Doc", loaded.Path)
	assert.Greater(t, loaded.Timestamp, staleTS)

	// A writer holding the pre-rename descendant head is stale now.
	doc.Path = "/Root/Moved/Doc"
	err = st.UpdateNode(ctx, doc, docVer, &models.DynamicPropertyData{}, nil, "")
	require.ErrorIs(t, err, storage.ErrConcurrencyConflict)
}

func TestCopyAndUpdateNode_NewVersion(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	head, version := insertTestNode(t, st, 0, 1, "Doc", "/Doc")
	firstID := version.VersionID

	_, err := st.DB().ExecContext(ctx,
		"INSERT INTO dynamic_properties (version_id, property_type_id, kind, value) VALUES (?, 10, 'string', 'original')", firstID)
	require.NoError(t, err)

	draft := &models.VersionData{
		VersionID: firstID,
		Version:   models.VersionNumber{Major: 1, Minor: 1, Status: models.StatusDraft},
	}
	override := &models.DynamicPropertyData{
		Dynamic: map[int64]models.PropertyValue{
			11: {Kind: models.KindInt, Value: "42"},
		},
	}
	require.NoError(t, st.CopyAndUpdateNode(ctx, head, draft, override, nil, 0, ""))
	require.NotEqual(t, firstID, draft.VersionID)

	// The draft carries the copied property plus the override.
	_, dyn, err := st.LoadVersion(ctx, draft.VersionID)
	require.NoError(t, err)
	assert.Equal(t, "original", dyn.Dynamic[10].Value)
	assert.Equal(t, "42", dyn.Dynamic[11].Value)

	// Last minor moves to the draft, last major stays on V1.0.A.
	assert.Equal(t, draft.VersionID, head.LastMinorVersionID)
	assert.Equal(t, firstID, head.LastMajorVersionID)

	numbers, err := st.GetVersionNumbers(ctx, head.NodeID)
	require.NoError(t, err)
	require.Len(t, numbers, 2)
	assert.Equal(t, "V1.1.D", numbers[1].String())
}

func TestCopyAndUpdateNode_ExistingTarget(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	head, version := insertTestNode(t, st, 0, 1, "Doc", "/Doc")
	sourceID := version.VersionID

	draft := &models.VersionData{
		VersionID: sourceID,
		Version:   models.VersionNumber{Major: 1, Minor: 1, Status: models.StatusDraft},
	}
	require.NoError(t, st.CopyAndUpdateNode(ctx, head, draft, &models.DynamicPropertyData{}, nil, 0, ""))
	targetID := draft.VersionID

	// Saving again into the same draft must not create a third version.
	again := &models.VersionData{
		VersionID: sourceID,
		Version:   models.VersionNumber{Major: 1, Minor: 1, Status: models.StatusDraft},
	}
	require.NoError(t, st.CopyAndUpdateNode(ctx, head, again, &models.DynamicPropertyData{}, nil, targetID, ""))
	assert.Equal(t, targetID, again.VersionID)

	numbers, err := st.GetVersionNumbers(ctx, head.NodeID)
	require.NoError(t, err)
	assert.Len(t, numbers, 2)
}

func TestUpdateNodeHead_DeletesVersionsAndRecomputesPointers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	head, version := insertTestNode(t, st, 0, 1, "Doc", "/Doc")
	approvedID := version.VersionID

	draft := &models.VersionData{
		VersionID: approvedID,
		Version:   models.VersionNumber{Major: 1, Minor: 1, Status: models.StatusDraft},
	}
	require.NoError(t, st.CopyAndUpdateNode(ctx, head, draft, &models.DynamicPropertyData{}, nil, 0, ""))
	require.Equal(t, draft.VersionID, head.LastMinorVersionID)

	// Discard the draft; pointers fall back to the approved version.
	require.NoError(t, st.UpdateNodeHead(ctx, head, []int64{draft.VersionID}))
	assert.Equal(t, approvedID, head.LastMinorVersionID)
	assert.Equal(t, approvedID, head.LastMajorVersionID)

	_, _, err := st.LoadVersion(ctx, draft.VersionID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteNode_Subtree(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	root, _ := insertTestNode(t, st, 0, 1, "Root", "/Root")
	folder, _ := insertTestNode(t, st, root.NodeID, 2, "Folder", "/Root/Folder")
	doc, _ := insertTestNode(t, st, folder.NodeID, 3, "Doc", "/Root/Folder/Doc")

	require.NoError(t, st.DeleteNode(ctx, folder.NodeID, folder.Timestamp))

	_, err := st.LoadNodeHeadByID(ctx, folder.NodeID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.LoadNodeHeadByID(ctx, doc.NodeID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	// The root stays, and the freed path is reusable immediately.
	_, err = st.LoadNodeHeadByID(ctx, root.NodeID)
	require.NoError(t, err)
	insertTestNode(t, st, root.NodeID, 2, "Folder", "/Root/Folder")
}

func TestDeleteNode_StaleTimestamp(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	head, _ := insertTestNode(t, st, 0, 1, "Doc", "/Doc")
	err := st.DeleteNode(ctx, head.NodeID, head.Timestamp+1)
	require.ErrorIs(t, err, storage.ErrConcurrencyConflict)

	_, err = st.LoadNodeHeadByID(ctx, head.NodeID)
	require.NoError(t, err)
}

func TestMoveNode(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	root, _ := insertTestNode(t, st, 0, 1, "Root", "/Root")
	source, _ := insertTestNode(t, st, root.NodeID, 2, "Source", "/Root/Source")
	doc, _ := insertTestNode(t, st, source.NodeID, 3, "Doc", "/Root/Source/Doc")
	target, _ := insertTestNode(t, st, root.NodeID, 2, "Target", "/Root/Target")

	require.NoError(t, st.MoveNode(ctx, source.NodeID, target.NodeID, source.Timestamp))

	moved, err := st.LoadNodeHeadByID(ctx, source.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "/Root/Target/Source", moved.Path)
	assert.Equal(t, target.NodeID, moved.ParentID)
	assert.Greater(t, moved.Timestamp, source.Timestamp)

	child, err := st.LoadNodeHeadByID(ctx, doc.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "/Root/Target/Source/Doc", child.Path)
}

func TestMoveNode_Conflicts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	root, _ := insertTestNode(t, st, 0, 1, "Root", "/Root")
	source, _ := insertTestNode(t, st, root.NodeID, 2, "Doc", "/Root/Doc")
	target, _ := insertTestNode(t, st, root.NodeID, 2, "Target", "/Root/Target")
	insertTestNode(t, st, target.NodeID, 3, "Doc", "/Root/Target/Doc")

	// A same-named child already lives under the target.
	err := st.MoveNode(ctx, source.NodeID, target.NodeID, source.Timestamp)
	require.ErrorIs(t, err, storage.ErrNodeAlreadyExists)

	err = st.MoveNode(ctx, source.NodeID, target.NodeID, source.Timestamp+1)
	require.ErrorIs(t, err, storage.ErrConcurrencyConflict)

	err = st.MoveNode(ctx, source.NodeID, 999, source.Timestamp)
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Moving a node under itself or its own descendant would create a
	// parent cycle.
	child, _ := insertTestNode(t, st, source.NodeID, 3, "Inner", "/Root/Doc/Inner")
	err = st.MoveNode(ctx, source.NodeID, child.NodeID, source.Timestamp)
	require.ErrorContains(t, err, "inside the moved subtree")

	err = st.MoveNode(ctx, source.NodeID, source.NodeID, source.Timestamp)
	require.ErrorContains(t, err, "inside the moved subtree")

	loaded, err := st.LoadNodeHeadByID(ctx, source.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "/Root/Doc", loaded.Path)
	assert.Equal(t, root.NodeID, loaded.ParentID)
}

func TestDynamicProperties_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	payload := []byte("binary payload bytes")
	dynamic := &models.DynamicPropertyData{
		Dynamic: map[int64]models.PropertyValue{
			1: {Kind: models.KindString, Value: "hello"},
			2: {Kind: models.KindInt, Value: "42"},
			3: {Kind: models.KindDateTime, Value: "2026-08-29T10:00:00.000Z"},
		},
		LongText: map[int64]string{
			4: "a long description that lives in the long text store",
		},
		Reference: map[int64][]int64{
			5: {10, 20, 30},
		},
		Binary: map[int64]*models.BinaryDataValue{
			6: {FileName: "readme.txt", ContentType: "text/plain", Buffer: payload},
		},
	}

	head := &models.NodeHeadData{TypeID: 1, Name: "Doc", Path: "/Doc"}
	version := &models.VersionData{}
	require.NoError(t, st.InsertNode(ctx, head, version, dynamic))

	// Binary metadata was written back.
	bin := dynamic.Binary[6]
	assert.Positive(t, bin.ID)
	assert.NotEmpty(t, bin.FileID)
	assert.Equal(t, int64(len(payload)), bin.Size)

	_, loaded, err := st.LoadVersion(ctx, version.VersionID)
	require.NoError(t, err)
	assert.Equal(t, dynamic.Dynamic, loaded.Dynamic)
	assert.Equal(t, dynamic.LongText, loaded.LongText)
	assert.Equal(t, []int64{10, 20, 30}, loaded.Reference[5])

	loadedBin := loaded.Binary[6]
	require.NotNil(t, loadedBin)
	assert.Equal(t, "readme.txt", loadedBin.FileName)
	assert.Equal(t, bin.FileID, loadedBin.FileID)
	assert.Equal(t, payload, loadedBin.Buffer)
}

func TestInsertNode_RegistersAddDocumentActivity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, version := insertTestNode(t, st, 0, 1, "Doc", "/Doc")

	id, err := st.GetLastActivityID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	recs, err := st.LoadActivities(ctx, []int64{id})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.ActivityAddDocument, recs[0].Type)
	assert.Equal(t, version.VersionID, recs[0].VersionID)
	assert.Equal(t, "/Doc", recs[0].Path)
	assert.Equal(t, models.ActivityWaiting, recs[0].State)
}

func TestMoveNode_RegistersTreeActivities(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	root, _ := insertTestNode(t, st, 0, 1, "Root", "/Root")
	source, _ := insertTestNode(t, st, root.NodeID, 2, "Source", "/Root/Source")
	target, _ := insertTestNode(t, st, root.NodeID, 2, "Target", "/Root/Target")

	before, err := st.GetLastActivityID(ctx)
	require.NoError(t, err)

	require.NoError(t, st.MoveNode(ctx, source.NodeID, target.NodeID, source.Timestamp))

	recs, err := st.LoadActivities(ctx, []int64{before + 1, before + 2})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, models.ActivityRemoveTree, recs[0].Type)
	assert.Equal(t, "/Root/Source", recs[0].Path)
	assert.Equal(t, models.ActivityAddTree, recs[1].Type)
	assert.Equal(t, "/Root/Target/Source", recs[1].Path)
}
