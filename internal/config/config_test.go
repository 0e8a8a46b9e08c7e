package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAt_CreatesRepository(t *testing.T) {
	dir := t.TempDir()

	cfg, err := InitializeAt(dir, BlobStoreFS, "http://localhost:8080")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, StoreDir), cfg.StorePath())
	assert.Equal(t, filepath.Join(dir, StoreDir, DatabaseFile), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(dir, StoreDir, BlobsDir), cfg.BlobsPath())
	assert.Equal(t, "http://localhost:8080", cfg.IndexURL)

	info, err := os.Stat(cfg.BlobsPath())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Defaults applied.
	assert.Equal(t, 1, cfg.WorkerCount)
	assert.Equal(t, time.Minute, cfg.LeaseTimeout())
}

func TestInitializeAt_AlreadyExists(t *testing.T) {
	dir := t.TempDir()

	_, err := InitializeAt(dir, BlobStoreFS, "")
	require.NoError(t, err)

	_, err = InitializeAt(dir, BlobStoreFS, "")
	assert.ErrorContains(t, err, "already exists")
}

func TestInitializeAt_UnknownBlobStore(t *testing.T) {
	_, err := InitializeAt(t.TempDir(), "s3", "")
	assert.ErrorContains(t, err, "unknown blob store kind")
}

func TestLoadFrom_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg, err := InitializeAt(dir, BlobStoreBolt, "http://search:8080")
	require.NoError(t, err)
	cfg.WorkerCount = 4
	cfg.LeaseTimeoutSeconds = 120
	require.NoError(t, cfg.Save())

	loaded, err := LoadFrom(cfg.StorePath())
	require.NoError(t, err)
	assert.Equal(t, BlobStoreBolt, loaded.BlobStore)
	assert.Equal(t, "http://search:8080", loaded.IndexURL)
	assert.Equal(t, 4, loaded.WorkerCount)
	assert.Equal(t, 2*time.Minute, loaded.LeaseTimeout())

	// Bolt stores point at a database file, not a directory.
	assert.Equal(t, filepath.Join(cfg.StorePath(), BlobsFile), loaded.BlobsPath())
}

func TestLoadFrom_MissingConfig(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	assert.ErrorContains(t, err, "failed to read config")
}
