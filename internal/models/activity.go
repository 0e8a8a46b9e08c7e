package models

import "time"

// ActivityType identifies the kind of index maintenance work an activity
// carries.
type ActivityType string

const (
	ActivityAddDocument    ActivityType = "AddDocument"
	ActivityUpdateDocument ActivityType = "UpdateDocument"
	ActivityRemoveDocument ActivityType = "RemoveDocument"
	ActivityAddTree        ActivityType = "AddTree"
	ActivityRemoveTree     ActivityType = "RemoveTree"
	ActivityRebuild        ActivityType = "Rebuild"
)

// ActivityRunningState is the queue state of one indexing activity.
type ActivityRunningState string

const (
	ActivityWaiting ActivityRunningState = "Waiting"
	ActivityRunning ActivityRunningState = "Running"
	ActivityDone    ActivityRunningState = "Done"
)

// IndexingActivityRecord is the persisted form of one queued unit of index
// work. IDs are assigned in strictly increasing order; gaps in the id
// sequence are tracked by workers, never silently skipped.
type IndexingActivityRecord struct {
	ID        int64                `json:"id"`
	Type      ActivityType         `json:"type"`
	NodeID    int64                `json:"node_id,omitempty"`
	VersionID int64                `json:"version_id,omitempty"`
	Path      string               `json:"path,omitempty"`
	State     ActivityRunningState `json:"state"`
	LockTime  time.Time            `json:"lock_time,omitempty"`
	CreatedAt time.Time            `json:"created_at"`

	// Extension carries activity-specific payload for pluggable factories.
	Extension []byte `json:"extension,omitempty"`
}

// IndexDocument is a produced search index fragment tied to one version.
type IndexDocument struct {
	VersionID int64  `json:"version_id"`
	NodeID    int64  `json:"node_id"`
	Path      string `json:"path"`
	Document  []byte `json:"document"`
}
