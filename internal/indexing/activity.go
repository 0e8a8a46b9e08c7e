// Package indexing turns persisted indexing activities back into executable
// work. Activities are reconstructed from their queue records by a pluggable
// factory and applied against the index backend in id order.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gupta2140/sensenet/internal/models"
	"github.com/gupta2140/sensenet/internal/search"
	"github.com/gupta2140/sensenet/internal/storage"
)

// Dependencies carries the collaborators an activity needs to execute.
type Dependencies struct {
	Store  storage.Store
	Sink   search.DocumentSink
	Logger *slog.Logger
}

// Activity is one executable unit of index maintenance.
type Activity interface {
	// Record returns the queue record the activity was built from.
	Record() *models.IndexingActivityRecord

	// Execute applies the activity. Implementations must be idempotent:
	// the queue guarantees at-least-once execution, not exactly-once.
	Execute(ctx context.Context, deps *Dependencies) error
}

// Constructor builds a typed activity from its queue record.
type Constructor func(rec *models.IndexingActivityRecord) Activity

// Factory reconstructs typed activities from queue records. Additional
// activity types can be registered, overriding the built-ins.
type Factory struct {
	mu           sync.RWMutex
	constructors map[models.ActivityType]Constructor
}

// NewFactory returns a factory with the built-in activity types registered.
func NewFactory() *Factory {
	f := &Factory{constructors: make(map[models.ActivityType]Constructor)}
	f.Register(models.ActivityAddDocument, func(rec *models.IndexingActivityRecord) Activity {
		return &documentActivity{rec: rec}
	})
	f.Register(models.ActivityUpdateDocument, func(rec *models.IndexingActivityRecord) Activity {
		return &documentActivity{rec: rec}
	})
	f.Register(models.ActivityRemoveDocument, func(rec *models.IndexingActivityRecord) Activity {
		return &removeDocumentActivity{rec: rec}
	})
	f.Register(models.ActivityAddTree, func(rec *models.IndexingActivityRecord) Activity {
		return &treeActivity{rec: rec}
	})
	f.Register(models.ActivityRebuild, func(rec *models.IndexingActivityRecord) Activity {
		return &treeActivity{rec: rec, clearFirst: true}
	})
	f.Register(models.ActivityRemoveTree, func(rec *models.IndexingActivityRecord) Activity {
		return &removeTreeActivity{rec: rec}
	})
	return f
}

// Register binds an activity type to a constructor.
func (f *Factory) Register(typ models.ActivityType, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[typ] = ctor
}

// FromRecord reconstructs the typed activity for a queue record.
func (f *Factory) FromRecord(rec *models.IndexingActivityRecord) (Activity, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[rec.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown activity type %q (id %d)", rec.Type, rec.ID)
	}
	return ctor(rec), nil
}

// documentActivity indexes one version: ensures a produced document exists
// and pushes it into the sink. Serves both AddDocument and UpdateDocument.
type documentActivity struct {
	rec *models.IndexingActivityRecord
}

func (a *documentActivity) Record() *models.IndexingActivityRecord { return a.rec }

func (a *documentActivity) Execute(ctx context.Context, deps *Dependencies) error {
	doc, err := ensureDocument(ctx, deps.Store, a.rec.VersionID)
	if errors.Is(err, storage.ErrNotFound) {
		// The version or its node is gone; a later activity superseded
		// this one.
		return nil
	}
	if err != nil {
		return err
	}
	return deps.Sink.Put(ctx, doc)
}

// removeDocumentActivity drops one version's document from the sink.
type removeDocumentActivity struct {
	rec *models.IndexingActivityRecord
}

func (a *removeDocumentActivity) Record() *models.IndexingActivityRecord { return a.rec }

func (a *removeDocumentActivity) Execute(ctx context.Context, deps *Dependencies) error {
	return deps.Sink.Delete(ctx, a.rec.VersionID)
}

// treeActivity (re)indexes the current content of a whole subtree. With
// clearFirst the sink side of the subtree is dropped before re-adding.
type treeActivity struct {
	rec        *models.IndexingActivityRecord
	clearFirst bool
}

func (a *treeActivity) Record() *models.IndexingActivityRecord { return a.rec }

func (a *treeActivity) Execute(ctx context.Context, deps *Dependencies) error {
	if a.clearFirst {
		if err := deps.Sink.DeleteTree(ctx, a.rec.Path); err != nil {
			return err
		}
	}

	ids, err := deps.Store.QueryNodesByTypeAndPathAndName(ctx, nil, a.rec.Path, false, "")
	if err != nil {
		return err
	}
	heads, err := deps.Store.LoadNodeHeads(ctx, ids)
	if err != nil {
		return err
	}

	for _, head := range heads {
		if head.LastMinorVersionID == 0 {
			continue
		}
		doc, err := ensureDocument(ctx, deps.Store, head.LastMinorVersionID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := deps.Sink.Put(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// removeTreeActivity drops a whole subtree from the sink.
type removeTreeActivity struct {
	rec *models.IndexingActivityRecord
}

func (a *removeTreeActivity) Record() *models.IndexingActivityRecord { return a.rec }

func (a *removeTreeActivity) Execute(ctx context.Context, deps *Dependencies) error {
	return deps.Sink.DeleteTree(ctx, a.rec.Path)
}

// ensureDocument returns the stored index document of a version, producing
// and persisting it first when the engine has not seen one yet.
func ensureDocument(ctx context.Context, store storage.Store, versionID int64) (*models.IndexDocument, error) {
	docs, err := store.LoadIndexDocuments(ctx, []int64{versionID})
	if err != nil {
		return nil, err
	}
	if len(docs) > 0 {
		return docs[0], nil
	}

	head, err := store.LoadNodeHeadByVersionID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	version, dynamic, err := store.LoadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	payload, err := BuildDocument(head, version, dynamic)
	if err != nil {
		return nil, err
	}
	if err := store.SaveIndexDocument(ctx, versionID, payload); err != nil {
		return nil, err
	}
	return &models.IndexDocument{
		VersionID: versionID,
		NodeID:    head.NodeID,
		Path:      head.Path,
		Document:  payload,
	}, nil
}
