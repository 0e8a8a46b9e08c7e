package sqlite

import (
	"context"
	"testing"

	"github.com/gupta2140/sensenet/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaUpdate_FullCycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ts, err := st.LoadSchemaTimestamp(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), ts)

	token, err := st.StartSchemaUpdate(ctx, ts)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	newTS, err := st.FinishSchemaUpdate(ctx, token)
	require.NoError(t, err)
	assert.Greater(t, newTS, ts)

	loaded, err := st.LoadSchemaTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, newTS, loaded)

	// The gate reopens for the next writer at the new timestamp.
	token2, err := st.StartSchemaUpdate(ctx, newTS)
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestStartSchemaUpdate_StaleTimestamp(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.StartSchemaUpdate(ctx, 99)
	require.ErrorIs(t, err, storage.ErrSchemaOutOfDate)

	// The failed start took no lock.
	_, err = st.StartSchemaUpdate(ctx, 0)
	require.NoError(t, err)
}

func TestStartSchemaUpdate_SingleWriter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	token, err := st.StartSchemaUpdate(ctx, 0)
	require.NoError(t, err)

	_, err = st.StartSchemaUpdate(ctx, 0)
	require.ErrorIs(t, err, storage.ErrSchemaLocked)

	_, err = st.FinishSchemaUpdate(ctx, token)
	require.NoError(t, err)
}

func TestFinishSchemaUpdate_InvalidToken(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// No update in flight.
	_, err := st.FinishSchemaUpdate(ctx, "deadbeef")
	require.ErrorIs(t, err, storage.ErrInvalidSchemaLock)

	token, err := st.StartSchemaUpdate(ctx, 0)
	require.NoError(t, err)

	// Wrong token while an update is in flight.
	_, err = st.FinishSchemaUpdate(ctx, "deadbeef")
	require.ErrorIs(t, err, storage.ErrInvalidSchemaLock)

	// The timestamp did not move and the lock is still held.
	ts, err := st.LoadSchemaTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)
	_, err = st.StartSchemaUpdate(ctx, 0)
	require.ErrorIs(t, err, storage.ErrSchemaLocked)

	_, err = st.FinishSchemaUpdate(ctx, token)
	require.NoError(t, err)

	// The token is single-use.
	_, err = st.FinishSchemaUpdate(ctx, token)
	require.ErrorIs(t, err, storage.ErrInvalidSchemaLock)
}
