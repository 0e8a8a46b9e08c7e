// Package blob provides content-addressable storage for binary property
// payloads. The storage engine keeps binary metadata rows in the backing
// store and delegates the bytes here; the file id is the content hash, so
// identical payloads across versions share one blob.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
)

// ErrBlobNotFound is returned when a requested blob does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// ErrHashMismatch is returned when the computed hash of blob data does not
// match the expected file id.
var ErrHashMismatch = errors.New("blob hash mismatch")

// Provider defines the contract for content-addressable binary storage.
type Provider interface {
	// Has checks whether a blob with the given file id exists.
	Has(ctx context.Context, fileID string) (bool, error)

	// Get returns a reader for the blob data and its size.
	// Returns ErrBlobNotFound if the blob does not exist.
	Get(ctx context.Context, fileID string) (io.ReadCloser, int64, error)

	// Put stores a blob. The file id is verified against the data.
	// Idempotent: storing the same blob twice is a no-op.
	Put(ctx context.Context, fileID string, r io.Reader, size int64) error

	// Delete removes a blob. No error if it doesn't exist.
	Delete(ctx context.Context, fileID string) error

	// TotalCount returns the number of stored blobs.
	TotalCount(ctx context.Context) (int, error)

	// ListFileIDs returns all blob file ids in the store.
	ListFileIDs(ctx context.Context) ([]string, error)

	// Close releases resources.
	Close() error
}

// ComputeFileID derives the storage file id for a payload: the lowercase
// hex SHA-256 of its bytes.
func ComputeFileID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
