package sqlite

import (
	"context"
	"testing"

	"github.com/gupta2140/sensenet/internal/models"
	"github.com/gupta2140/sensenet/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceCount(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	insertTestNode(t, st, 0, 1, "A", "/A")
	insertTestNode(t, st, 0, 2, "B", "/B")
	insertTestNode(t, st, 0, 2, "C", "/C")

	n, err := st.InstanceCount(ctx, []int64{2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = st.InstanceCount(ctx, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = st.InstanceCount(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetChildrenIDs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	root, _ := insertTestNode(t, st, 0, 1, "Root", "/Root")
	a, _ := insertTestNode(t, st, root.NodeID, 2, "A", "/Root/A")
	b, _ := insertTestNode(t, st, root.NodeID, 2, "B", "/Root/B")
	// A grandchild does not count as a child.
	insertTestNode(t, st, a.NodeID, 3, "Deep", "/Root/A/Deep")

	ids, err := st.GetChildrenIDs(ctx, root.NodeID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.NodeID, b.NodeID}, ids)
}

func TestQueryNodesByTypeAndPathAndName(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	root, _ := insertTestNode(t, st, 0, 1, "Root", "/Root")
	zebra, _ := insertTestNode(t, st, root.NodeID, 2, "Zebra", "/Root/Zebra")
	alpha, _ := insertTestNode(t, st, zebra.NodeID, 2, "Alpha", "/Root/Zebra/Alpha")
	outside, _ := insertTestNode(t, st, 0, 2, "Outside", "/Outside")

	// Subtree scope includes the scope node itself and excludes outsiders.
	ids, err := st.QueryNodesByTypeAndPathAndName(ctx, []int64{1, 2}, "/Root", true, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{root.NodeID, zebra.NodeID, alpha.NodeID}, ids)

	// Name filter is case-insensitive.
	ids, err = st.QueryNodesByTypeAndPathAndName(ctx, nil, "/Root", false, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []int64{alpha.NodeID}, ids)

	// No scope matches everything of the type.
	ids, err = st.QueryNodesByTypeAndPathAndName(ctx, []int64{2}, "", false, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{zebra.NodeID, alpha.NodeID, outside.NodeID}, ids)
}

func TestQueryNodesByTypeAndPathAndProperty(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	mk := func(path string, color, shape string) *models.NodeHeadData {
		head := &models.NodeHeadData{TypeID: 5, Name: path[1:], Path: path}
		dyn := &models.DynamicPropertyData{Dynamic: map[int64]models.PropertyValue{
			100: {Kind: models.KindString, Value: color},
			101: {Kind: models.KindString, Value: shape},
		}}
		require.NoError(t, st.InsertNode(ctx, head, &models.VersionData{}, dyn))
		return head
	}
	red := mk("/Red", "red", "circle")
	mk("/Blue", "blue", "circle")
	redSquare := mk("/RedSquare", "red", "square")

	ids, err := st.QueryNodesByTypeAndPathAndProperty(ctx, []int64{5}, "", false,
		[]storage.PropertyFilter{{PropertyTypeID: 100, Kind: models.KindString, Value: "red"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{red.NodeID, redSquare.NodeID}, ids)

	// Every predicate must hold.
	ids, err = st.QueryNodesByTypeAndPathAndProperty(ctx, nil, "", false,
		[]storage.PropertyFilter{
			{PropertyTypeID: 100, Kind: models.KindString, Value: "red"},
			{PropertyTypeID: 101, Kind: models.KindString, Value: "square"},
		})
	require.NoError(t, err)
	assert.Equal(t, []int64{redSquare.NodeID}, ids)
}

func TestQueryNodesByProperty_MatchesCurrentVersionOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	head := &models.NodeHeadData{TypeID: 5, Name: "Doc", Path: "/Doc"}
	version := &models.VersionData{}
	dyn := &models.DynamicPropertyData{Dynamic: map[int64]models.PropertyValue{
		100: {Kind: models.KindString, Value: "old"},
	}}
	require.NoError(t, st.InsertNode(ctx, head, version, dyn))

	draft := &models.VersionData{
		VersionID: version.VersionID,
		Version:   models.VersionNumber{Major: 1, Minor: 1, Status: models.StatusDraft},
	}
	override := &models.DynamicPropertyData{Dynamic: map[int64]models.PropertyValue{
		100: {Kind: models.KindString, Value: "new"},
	}}
	require.NoError(t, st.CopyAndUpdateNode(ctx, head, draft, override, nil, 0, ""))

	ids, err := st.QueryNodesByTypeAndPathAndProperty(ctx, nil, "", false,
		[]storage.PropertyFilter{{PropertyTypeID: 100, Kind: models.KindString, Value: "new"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{head.NodeID}, ids)

	ids, err = st.QueryNodesByTypeAndPathAndProperty(ctx, nil, "", false,
		[]storage.PropertyFilter{{PropertyTypeID: 100, Kind: models.KindString, Value: "old"}})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestQueryNodesByReference(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	target, _ := insertTestNode(t, st, 0, 1, "Target", "/Target")

	head := &models.NodeHeadData{TypeID: 5, Name: "Referrer", Path: "/Referrer"}
	dyn := &models.DynamicPropertyData{Reference: map[int64][]int64{
		200: {target.NodeID},
	}}
	require.NoError(t, st.InsertNode(ctx, head, &models.VersionData{}, dyn))

	ids, err := st.QueryNodesByReference(ctx, 200, target.NodeID)
	require.NoError(t, err)
	assert.Equal(t, []int64{head.NodeID}, ids)

	ids, err = st.QueryNodesByReference(ctx, 201, target.NodeID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
