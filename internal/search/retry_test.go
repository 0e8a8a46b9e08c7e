package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gupta2140/sensenet/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakySink fails the first failures calls of every operation.
type flakySink struct {
	inner    *MemorySink
	failures int
	calls    int
	err      error
}

func (f *flakySink) fail() error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakySink) Put(ctx context.Context, doc *models.IndexDocument) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.inner.Put(ctx, doc)
}

func (f *flakySink) Delete(ctx context.Context, versionID int64) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.inner.Delete(ctx, versionID)
}

func (f *flakySink) DeleteTree(ctx context.Context, pathPrefix string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.inner.DeleteTree(ctx, pathPrefix)
}

func (f *flakySink) Count(ctx context.Context) (int, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	return f.inner.Count(ctx)
}

func testRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		JitterFraction: 0,
	}
}

func TestRetrySink_RecoversFromTransientErrors(t *testing.T) {
	flaky := &flakySink{inner: NewMemorySink(), failures: 2, err: errors.New("connection refused")}
	rs := NewRetrySink(flaky, testRetryConfig())

	doc := &models.IndexDocument{VersionID: 1, NodeID: 1, Path: "/Doc", Document: []byte("{}")}
	require.NoError(t, rs.Put(context.Background(), doc))
	assert.Equal(t, 3, flaky.calls)
	assert.NotNil(t, flaky.inner.Get(1))
}

func TestRetrySink_GivesUpAfterMaxRetries(t *testing.T) {
	cause := errors.New("connection refused")
	flaky := &flakySink{inner: NewMemorySink(), failures: 10, err: cause}
	rs := NewRetrySink(flaky, testRetryConfig())

	err := rs.Delete(context.Background(), 1)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, 4, flaky.calls) // initial attempt + 3 retries
}

func TestRetrySink_DoesNotRetryCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flaky := &flakySink{inner: NewMemorySink(), failures: 10, err: ctx.Err()}
	rs := NewRetrySink(flaky, testRetryConfig())

	err := rs.DeleteTree(ctx, "/Root")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, flaky.calls)
}

func TestMemorySink_DeleteTree(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySink()

	for i, path := range []string{"/Root", "/Root/A", "/Root/A/B", "/RootSibling"} {
		require.NoError(t, m.Put(ctx, &models.IndexDocument{VersionID: int64(i + 1), Path: path}))
	}

	require.NoError(t, m.DeleteTree(ctx, "/Root/A"))

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotNil(t, m.Get(1))
	assert.Nil(t, m.Get(2))
	assert.Nil(t, m.Get(3))
	assert.NotNil(t, m.Get(4))
}
