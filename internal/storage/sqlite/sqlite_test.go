package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gupta2140/sensenet/internal/blob"
	"github.com/gupta2140/sensenet/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a store with a filesystem blob provider in a temp
// directory for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	blobs, err := blob.NewFSStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	st, err := New(filepath.Join(dir, "repo.db"), blobs)
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })
	return st
}

// insertTestNode inserts a minimal node and returns the written-back
// descriptors.
func insertTestNode(t *testing.T, st *Store, parentID, typeID int64, name, path string) (*models.NodeHeadData, *models.VersionData) {
	t.Helper()
	head := &models.NodeHeadData{ParentID: parentID, TypeID: typeID, Name: name, Path: path}
	version := &models.VersionData{}
	require.NoError(t, st.InsertNode(context.Background(), head, version, &models.DynamicPropertyData{}))
	return head, version
}

func TestStore_Initialize(t *testing.T) {
	st := newTestStore(t)

	// Initialize is idempotent.
	require.NoError(t, st.Initialize())

	ts, err := st.LoadSchemaTimestamp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)

	id, err := st.GetLastActivityID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
}
