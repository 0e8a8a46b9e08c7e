package storage

import (
	"context"
	"time"

	"github.com/gupta2140/sensenet/internal/models"
)

// NodeStore is the write side of the engine. Every operation executes as a
// single atomic transaction: on failure no row is left partially updated and
// the caller's descriptors are not modified. On success the generated ids,
// timestamps, and last-version pointers are written back into the supplied
// descriptors.
type NodeStore interface {
	// InsertNode persists a brand-new node with its first version and
	// dynamic data. Fails with ErrNodeAlreadyExists if the path already
	// belongs to a non-deleted node.
	InsertNode(ctx context.Context, head *models.NodeHeadData, version *models.VersionData, dynamic *models.DynamicPropertyData) error

	// UpdateNode edits an existing version in place, deletes the named
	// versions, recomputes last-version pointers, and bumps both
	// timestamps. If originalPath is non-empty (rename within the same
	// parent), every descendant path carrying that prefix is rewritten.
	// Fails with ErrConcurrencyConflict on a stale head timestamp.
	UpdateNode(ctx context.Context, head *models.NodeHeadData, version *models.VersionData, dynamic *models.DynamicPropertyData, versionIDsToDelete []int64, originalPath string) error

	// CopyAndUpdateNode saves content as a new version (expectedVersionID
	// == 0) or overwrites an existing target version, copying dynamic data
	// from the source version before applying the caller-supplied values.
	CopyAndUpdateNode(ctx context.Context, head *models.NodeHeadData, version *models.VersionData, dynamic *models.DynamicPropertyData, versionIDsToDelete []int64, expectedVersionID int64, originalPath string) error

	// UpdateNodeHead deletes the named versions, recomputes last-version
	// pointers, and bumps the node timestamp without touching version
	// content.
	UpdateNodeHead(ctx context.Context, head *models.NodeHeadData, versionIDsToDelete []int64) error

	// DeleteNode logically deletes a node and its whole subtree. The
	// caller must present the node's last observed timestamp.
	DeleteNode(ctx context.Context, nodeID int64, timestamp int64) error

	// MoveNode relocates a node under a new parent, rewriting the paths
	// of the moved subtree. The caller must present the node's last
	// observed timestamp.
	MoveNode(ctx context.Context, nodeID, targetNodeID int64, timestamp int64) error
}

// Catalog is the read side for head and version metadata. It reflects only
// committed state.
type Catalog interface {
	LoadNodeHead(ctx context.Context, path string) (*models.NodeHeadData, error)
	LoadNodeHeadByID(ctx context.Context, nodeID int64) (*models.NodeHeadData, error)
	LoadNodeHeadByVersionID(ctx context.Context, versionID int64) (*models.NodeHeadData, error)
	LoadNodeHeads(ctx context.Context, nodeIDs []int64) ([]*models.NodeHeadData, error)
	GetVersionNumbers(ctx context.Context, nodeID int64) ([]models.VersionNumber, error)
	GetVersionNumbersByPath(ctx context.Context, path string) ([]models.VersionNumber, error)

	// LoadVersion loads one version with its full dynamic property
	// payload, binary buffers included.
	LoadVersion(ctx context.Context, versionID int64) (*models.VersionData, *models.DynamicPropertyData, error)
}

// PropertyFilter is one predicate of a property query: the named property
// must equal the given canonical value.
type PropertyFilter struct {
	PropertyTypeID int64
	Kind           models.PropertyKind
	Value          string
}

// QueryStore produces node identifier sets. Ordering by path, when
// requested, is lexicographic on the path string.
type QueryStore interface {
	InstanceCount(ctx context.Context, typeIDs []int64) (int, error)
	GetChildrenIDs(ctx context.Context, parentID int64) ([]int64, error)
	QueryNodesByTypeAndPathAndName(ctx context.Context, typeIDs []int64, pathStart string, orderByPath bool, name string) ([]int64, error)
	QueryNodesByTypeAndPathAndProperty(ctx context.Context, typeIDs []int64, pathStart string, orderByPath bool, filters []PropertyFilter) ([]int64, error)
	QueryNodesByReference(ctx context.Context, propertyTypeID, referredNodeID int64) ([]int64, error)
}

// TreeLockStore serializes whole-subtree structural operations. A lock on
// path P conflicts with any lock on P, an ancestor of P, or a descendant
// of P. Locks have no automatic expiry; callers must release on every exit
// path. Stale locks are swept by CleanupStaleTreeLocks.
type TreeLockStore interface {
	AcquireTreeLock(ctx context.Context, path string) (int64, error)
	IsTreeLocked(ctx context.Context, path string) (bool, error)
	ReleaseTreeLocks(ctx context.Context, ids []int64) error
	LoadAllTreeLocks(ctx context.Context) ([]*models.TreeLock, error)
	CleanupStaleTreeLocks(ctx context.Context, maxAge time.Duration) (int, error)
}

// SchemaStore is the single-writer gate for schema mutation. The timestamp
// check and lock creation are one critical section.
type SchemaStore interface {
	LoadSchemaTimestamp(ctx context.Context) (int64, error)
	StartSchemaUpdate(ctx context.Context, expectedTimestamp int64) (string, error)
	FinishSchemaUpdate(ctx context.Context, token string) (int64, error)
}

// ActivityStore is the leased indexing-activity queue. The lease transition
// (Waiting or expired Running -> Running with a fresh lock time) is atomic,
// which is what makes parallel index building safe across workers.
type ActivityStore interface {
	RegisterActivity(ctx context.Context, rec *models.IndexingActivityRecord) error
	LoadActivities(ctx context.Context, ids []int64) ([]*models.IndexingActivityRecord, error)

	// LoadExecutableActivities leases up to maxCount activities that are
	// Waiting, or Running with a lease older than runningTimeout.
	LoadExecutableActivities(ctx context.Context, maxCount int, runningTimeout time.Duration) ([]*models.IndexingActivityRecord, error)

	// LoadExecutableAndFinished additionally reconciles waitingIDs the
	// caller is gap-filling: ids that are already finished (done or
	// deleted) are reported in the second return value.
	LoadExecutableAndFinished(ctx context.Context, maxCount int, runningTimeout time.Duration, waitingIDs []int64) ([]*models.IndexingActivityRecord, []int64, error)

	RefreshActivityLockTime(ctx context.Context, ids []int64) error
	UpdateActivityRunningState(ctx context.Context, id int64, state models.ActivityRunningState) error

	// DeleteFinishedActivities removes Done activities older than maxAge.
	// With preserveGaps, a Done activity is kept while any unfinished
	// activity with a smaller id is still present.
	DeleteFinishedActivities(ctx context.Context, maxAge time.Duration, preserveGaps bool) (int, error)
	DeleteAllActivities(ctx context.Context) error
	GetLastActivityID(ctx context.Context) (int64, error)
}

// IndexDocumentStore persists produced index documents per version.
type IndexDocumentStore interface {
	SaveIndexDocument(ctx context.Context, versionID int64, document []byte) error
	LoadIndexDocuments(ctx context.Context, versionIDs []int64) ([]*models.IndexDocument, error)
}

// ToolStore carries the audit log and the small provider tool queries.
type ToolStore interface {
	WriteAuditEvent(ctx context.Context, ev *models.AuditEvent) error
	LoadLastAuditEvents(ctx context.Context, count int) ([]*models.AuditEvent, error)

	// RoundDateTime rounds to the precision the backing store preserves.
	RoundDateTime(t time.Time) time.Time

	// IsCacheableText reports whether a text value is short enough to be
	// kept in the ordinary property set instead of the long-text store.
	IsCacheableText(text string) bool

	// GetNameOfLastNodeWithNameBase probes "name(N).ext" collisions under
	// a parent and returns the name with the highest suffix, or "".
	GetNameOfLastNodeWithNameBase(ctx context.Context, parentID int64, nameBase, extension string) (string, error)

	GetTreeSize(ctx context.Context, path string, includeChildren bool) (int64, error)
	GetNodeCount(ctx context.Context, path string) (int, error)
	GetVersionCount(ctx context.Context, path string) (int, error)
}

// Store is the full storage engine contract.
type Store interface {
	NodeStore
	Catalog
	QueryStore
	TreeLockStore
	SchemaStore
	ActivityStore
	IndexDocumentStore
	ToolStore

	Close() error
}

// Resetter is an optional capability: backends that keep internal caches
// can expose a reset hook. Callers discover it with a type assertion; the
// default behavior is a no-op.
type Resetter interface {
	Reset()
}
