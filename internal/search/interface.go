// Package search defines the boundary between the storage engine and the
// external index backend. The engine persists produced index documents;
// sinks push them into the backend that serves queries.
package search

import (
	"context"

	"github.com/gupta2140/sensenet/internal/models"
)

// DocumentSink is the contract for pushing index documents into a search
// backend. Sinks must be idempotent: replaying the same document is an
// overwrite, not a duplicate.
type DocumentSink interface {
	// Put creates or overwrites the document for its version.
	Put(ctx context.Context, doc *models.IndexDocument) error

	// Delete removes the document of a version. Deleting an absent
	// document is not an error.
	Delete(ctx context.Context, versionID int64) error

	// DeleteTree removes every document whose path is pathPrefix or a
	// descendant of it.
	DeleteTree(ctx context.Context, pathPrefix string) error

	// Count returns the number of documents held by the backend.
	Count(ctx context.Context) (int, error)
}

// Verify the implementations at compile time.
var (
	_ DocumentSink = (*WeaviateSink)(nil)
	_ DocumentSink = (*RetrySink)(nil)
	_ DocumentSink = (*MemorySink)(nil)
)
