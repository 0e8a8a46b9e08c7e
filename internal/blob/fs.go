package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// validFileID matches a lowercase hex-encoded SHA-256 hash (64 characters).
var validFileID = regexp.MustCompile(`^[0-9a-f]{64}$`)

// FSStore implements Provider using the local filesystem. Blobs are stored
// in a two-level directory structure using the first two characters of the
// file id as a prefix directory, with a sidecar .meta file holding the size.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-backed blob store rooted at the given
// directory.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Has checks whether a blob exists.
func (s *FSStore) Has(_ context.Context, fileID string) (bool, error) {
	if !validFileID.MatchString(fileID) {
		return false, nil
	}
	_, err := os.Stat(s.blobPath(fileID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat blob %s: %w", fileID, err)
	}
	return true, nil
}

// Get opens a blob for reading and returns its size.
// Returns ErrBlobNotFound if the blob does not exist.
func (s *FSStore) Get(_ context.Context, fileID string) (io.ReadCloser, int64, error) {
	if !validFileID.MatchString(fileID) {
		return nil, 0, ErrBlobNotFound
	}
	size, err := s.readSize(s.metaPath(fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrBlobNotFound
		}
		return nil, 0, fmt.Errorf("read blob meta %s: %w", fileID, err)
	}

	f, err := os.Open(s.blobPath(fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrBlobNotFound
		}
		return nil, 0, fmt.Errorf("open blob %s: %w", fileID, err)
	}

	return f, size, nil
}

// Put stores a blob. The data is read from r and verified against the
// file id. Idempotent: if the blob exists, this is a no-op.
func (s *FSStore) Put(_ context.Context, fileID string, r io.Reader, size int64) error {
	if !validFileID.MatchString(fileID) {
		return fmt.Errorf("invalid blob file id: %q", fileID)
	}
	blobPath := s.blobPath(fileID)

	// Check if already exists
	if _, err := os.Stat(blobPath); err == nil {
		return nil // idempotent
	}

	dir := filepath.Dir(blobPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	// Write to temp file, verify hash, rename
	tmpFile, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	hasher := sha256.New()
	writer := io.MultiWriter(tmpFile, hasher)

	if _, err := io.Copy(writer, r); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write blob data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	computed := hex.EncodeToString(hasher.Sum(nil))
	if computed != fileID {
		os.Remove(tmpPath)
		return fmt.Errorf("expected %s, got %s: %w", fileID, computed, ErrHashMismatch)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, blobPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename blob: %w", err)
	}

	metaPath := s.metaPath(fileID)
	if err := os.WriteFile(metaPath, []byte(strconv.FormatInt(size, 10)), 0644); err != nil {
		return fmt.Errorf("write blob meta: %w", err)
	}

	return nil
}

// Delete removes a blob and its metadata file.
func (s *FSStore) Delete(_ context.Context, fileID string) error {
	if !validFileID.MatchString(fileID) {
		return nil
	}
	os.Remove(s.blobPath(fileID))
	os.Remove(s.metaPath(fileID))
	return nil
}

// TotalCount returns the number of stored blobs by scanning the directory
// tree.
func (s *FSStore) TotalCount(_ context.Context) (int, error) {
	var count int

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && !strings.HasSuffix(path, ".meta") && !strings.HasPrefix(info.Name(), ".") {
			count++
		}
		return nil
	})

	return count, err
}

// ListFileIDs returns all blob file ids by scanning the directory tree.
func (s *FSStore) ListFileIDs(_ context.Context) ([]string, error) {
	var ids []string

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, ".meta") || strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		// Reconstruct id from path: root/ab/cd... -> abcd...
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) == 2 {
			ids = append(ids, parts[0]+parts[1])
		}
		return nil
	})

	return ids, err
}

// Close is a no-op for the filesystem store.
func (s *FSStore) Close() error { return nil }

// blobPath returns the filesystem path for a blob.
func (s *FSStore) blobPath(fileID string) string {
	if len(fileID) < 2 {
		return filepath.Join(s.root, fileID)
	}
	return filepath.Join(s.root, fileID[:2], fileID[2:])
}

// metaPath returns the filesystem path for a blob's metadata.
func (s *FSStore) metaPath(fileID string) string {
	return s.blobPath(fileID) + ".meta"
}

// readSize reads the blob size from a metadata file.
func (s *FSStore) readSize(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}
