package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names used by the bbolt blob store.
var (
	bucketBlobs    = []byte("blobs")
	bucketBlobMeta = []byte("blob_meta")
)

// BoltStore implements Provider using a single embedded bbolt database
// file. Blob bytes live in the blobs bucket keyed by file id; the size is
// kept in a parallel metadata bucket.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a bbolt blob database at the given path.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create blob database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blob database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketBlobs, bucketBlobMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Has checks whether a blob exists.
func (s *BoltStore) Has(_ context.Context, fileID string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketBlobs).Get([]byte(fileID)) != nil
		return nil
	})
	return found, err
}

// Get returns a reader for the blob data and its size.
func (s *BoltStore) Get(_ context.Context, fileID string) (io.ReadCloser, int64, error) {
	var data []byte
	var size int64

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlobs).Get([]byte(fileID))
		if v == nil {
			return ErrBlobNotFound
		}
		// Copy out; bbolt memory is only valid inside the transaction.
		data = append([]byte(nil), v...)

		if m := tx.Bucket(bucketBlobMeta).Get([]byte(fileID)); m != nil {
			size, _ = strconv.ParseInt(string(m), 10, 64)
		} else {
			size = int64(len(data))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return io.NopCloser(bytes.NewReader(data)), size, nil
}

// Put stores a blob after verifying the data against the file id.
// Idempotent: storing the same blob twice is a no-op.
func (s *BoltStore) Put(_ context.Context, fileID string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read blob data: %w", err)
	}

	sum := sha256.Sum256(data)
	if computed := hex.EncodeToString(sum[:]); computed != fileID {
		return fmt.Errorf("expected %s, got %s: %w", fileID, computed, ErrHashMismatch)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		blobs := tx.Bucket(bucketBlobs)
		if blobs.Get([]byte(fileID)) != nil {
			return nil // idempotent
		}
		if err := blobs.Put([]byte(fileID), data); err != nil {
			return fmt.Errorf("store blob: %w", err)
		}
		meta := tx.Bucket(bucketBlobMeta)
		if err := meta.Put([]byte(fileID), []byte(strconv.FormatInt(size, 10))); err != nil {
			return fmt.Errorf("store blob meta: %w", err)
		}
		return nil
	})
}

// Delete removes a blob and its metadata. No error if it doesn't exist.
func (s *BoltStore) Delete(_ context.Context, fileID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketBlobs).Delete([]byte(fileID)); err != nil {
			return err
		}
		return tx.Bucket(bucketBlobMeta).Delete([]byte(fileID))
	})
}

// TotalCount returns the number of stored blobs.
func (s *BoltStore) TotalCount(_ context.Context) (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketBlobs).Stats().KeyN
		return nil
	})
	return count, err
}

// ListFileIDs returns all blob file ids in the store.
func (s *BoltStore) ListFileIDs(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlobs).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// Close closes the database.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
