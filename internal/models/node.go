// Package models defines the data structures shared across the storage
// engine: node heads, versions, dynamic property payloads, indexing
// activities, tree locks, and audit events.
package models

import "time"

// MaxPathLength is the upper bound for a node path. Longer paths are
// rejected before any row is written.
const MaxPathLength = 450

// PathSeparator separates segments of a repository path.
const PathSeparator = "/"

// NodeHeadData is the current, non-versioned state of one logical node.
// NodeID is assigned by the storage engine on first insert and never reused.
// Timestamp is the optimistic concurrency token: every successful mutation
// stamps a strictly greater value, and update-class operations must present
// the last observed value.
type NodeHeadData struct {
	NodeID   int64  `json:"node_id"`
	ParentID int64  `json:"parent_id"`
	TypeID   int64  `json:"type_id"`
	Name     string `json:"name"`
	Path     string `json:"path"`

	LastMajorVersionID int64 `json:"last_major_version_id,omitempty"`
	LastMinorVersionID int64 `json:"last_minor_version_id,omitempty"`

	Timestamp  int64     `json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// TreeLock is an exclusive claim over a path and its whole subtree.
type TreeLock struct {
	ID       int64     `json:"id"`
	Path     string    `json:"path"`
	LockedAt time.Time `json:"locked_at"`
}

// AuditEvent is one entry of the append-only audit log.
type AuditEvent struct {
	ID        int64     `json:"id"`
	EventType string    `json:"event_type"`
	NodeID    int64     `json:"node_id,omitempty"`
	VersionID int64     `json:"version_id,omitempty"`
	Path      string    `json:"path,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
