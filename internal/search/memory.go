package search

import (
	"context"
	"strings"
	"sync"

	"github.com/gupta2140/sensenet/internal/models"
	"github.com/gupta2140/sensenet/internal/storage"
)

// MemorySink is an in-memory DocumentSink for tests and local runs.
type MemorySink struct {
	mu   sync.RWMutex
	docs map[int64]*models.IndexDocument
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{docs: make(map[int64]*models.IndexDocument)}
}

func (m *MemorySink) Put(_ context.Context, doc *models.IndexDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	cp.Document = append([]byte(nil), doc.Document...)
	m.docs[doc.VersionID] = &cp
	return nil
}

func (m *MemorySink) Delete(_ context.Context, versionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, versionID)
	return nil
}

func (m *MemorySink) DeleteTree(_ context.Context, pathPrefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, doc := range m.docs {
		if strings.EqualFold(doc.Path, pathPrefix) || storage.IsDescendantOf(doc.Path, pathPrefix) {
			delete(m.docs, id)
		}
	}
	return nil
}

func (m *MemorySink) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}

// Get returns the stored document for a version, or nil.
func (m *MemorySink) Get(versionID int64) *models.IndexDocument {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docs[versionID]
}
