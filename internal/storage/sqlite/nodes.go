package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gupta2140/sensenet/internal/blob"
	"github.com/gupta2140/sensenet/internal/models"
	"github.com/gupta2140/sensenet/internal/storage"
)

// binAssignment records blob routing results for one binary property so the
// caller's descriptors are only touched after a successful commit.
type binAssignment struct {
	propertyTypeID int64
	binaryID       int64
	fileID         string
	size           int64
}

// insertResult collects generated values written back on success.
type insertResult struct {
	nodeID        int64
	versionID     int64
	nodeTimestamp int64
	verTimestamp  int64
	lastMajor     int64
	lastMinor     int64
	bins          []binAssignment
}

func validatePath(path string) error {
	if path == "" || !strings.HasPrefix(path, models.PathSeparator) {
		return fmt.Errorf("invalid path %q: must start with %q", path, models.PathSeparator)
	}
	if len(path) > models.MaxPathLength {
		return fmt.Errorf("path too long: %d characters (max %d)", len(path), models.MaxPathLength)
	}
	return nil
}

// InsertNode persists a brand-new node with its first version and dynamic
// data in one transaction. Generated ids and timestamps are written back
// into the descriptors only on success.
func (s *Store) InsertNode(ctx context.Context, head *models.NodeHeadData, version *models.VersionData, dynamic *models.DynamicPropertyData) error {
	if err := validatePath(head.Path); err != nil {
		return err
	}
	if version.Version.Status == "" {
		version.Version = models.VersionNumber{Major: 1, Minor: 0, Status: models.StatusApproved}
	}

	var res insertResult
	now := toMillis(time.Now())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// Path uniqueness holds among non-deleted nodes only.
		if err := probePathFree(ctx, tx, head.Path, 0); err != nil {
			return err
		}

		nodeTS, err := nextTimestamp(ctx, tx)
		if err != nil {
			return err
		}
		r, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (parent_id, type_id, name, path, deleted, timestamp, created_at, modified_at)
			VALUES (?, ?, ?, ?, FALSE, ?, ?, ?)`,
			head.ParentID, head.TypeID, head.Name, head.Path, nodeTS, now, now)
		if err != nil {
			return fmt.Errorf("insert node row: %w", err)
		}
		nodeID, err := r.LastInsertId()
		if err != nil {
			return fmt.Errorf("node id: %w", err)
		}

		verTS, err := nextTimestamp(ctx, tx)
		if err != nil {
			return err
		}
		r, err = tx.ExecContext(ctx, `
			INSERT INTO versions (node_id, major, minor, status, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			nodeID, version.Version.Major, version.Version.Minor, string(version.Version.Status), verTS, now)
		if err != nil {
			return fmt.Errorf("insert version row: %w", err)
		}
		versionID, err := r.LastInsertId()
		if err != nil {
			return fmt.Errorf("version id: %w", err)
		}

		bins, err := s.saveDynamicData(ctx, tx, versionID, dynamic)
		if err != nil {
			return err
		}

		lastMajor, lastMinor, err := applyLastVersions(ctx, tx, nodeID)
		if err != nil {
			return err
		}

		if err := registerActivityTx(ctx, tx, models.ActivityAddDocument, nodeID, versionID, head.Path); err != nil {
			return err
		}

		res = insertResult{
			nodeID:        nodeID,
			versionID:     versionID,
			nodeTimestamp: nodeTS,
			verTimestamp:  verTS,
			lastMajor:     lastMajor,
			lastMinor:     lastMinor,
			bins:          bins,
		}
		return nil
	})
	if err != nil {
		return err
	}

	head.NodeID = res.nodeID
	head.Timestamp = res.nodeTimestamp
	head.LastMajorVersionID = res.lastMajor
	head.LastMinorVersionID = res.lastMinor
	head.CreatedAt = fromMillis(now)
	head.ModifiedAt = fromMillis(now)
	version.VersionID = res.versionID
	version.NodeID = res.nodeID
	version.Timestamp = res.verTimestamp
	version.CreatedAt = fromMillis(now)
	applyBinAssignments(dynamic, res.bins)
	return nil
}

// UpdateNode edits an existing version in place. The caller must present the
// node timestamp it last observed; a mismatch fails with
// ErrConcurrencyConflict. A non-empty originalPath triggers subtree path
// rewrite for every descendant carrying that prefix (case-insensitive).
func (s *Store) UpdateNode(ctx context.Context, head *models.NodeHeadData, version *models.VersionData, dynamic *models.DynamicPropertyData, versionIDsToDelete []int64, originalPath string) error {
	if err := validatePath(head.Path); err != nil {
		return err
	}

	var res insertResult
	now := toMillis(time.Now())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkHead(ctx, tx, head.NodeID, head.Timestamp); err != nil {
			return err
		}
		if err := checkVersionExists(ctx, tx, version.VersionID); err != nil {
			return err
		}

		verTS, err := nextTimestamp(ctx, tx)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE versions SET major = ?, minor = ?, status = ?, timestamp = ? WHERE version_id = ?",
			version.Version.Major, version.Version.Minor, string(version.Version.Status), verTS, version.VersionID)
		if err != nil {
			return fmt.Errorf("update version row: %w", err)
		}

		if err := deleteVersionRows(ctx, tx, versionIDsToDelete); err != nil {
			return err
		}

		bins, err := s.saveDynamicData(ctx, tx, version.VersionID, dynamic)
		if err != nil {
			return err
		}

		nodeTS, lastMajor, lastMinor, err := updateHeadRow(ctx, tx, head, now)
		if err != nil {
			return err
		}

		if originalPath != "" && !strings.EqualFold(originalPath, head.Path) {
			if err := propagatePathChange(ctx, tx, head.NodeID, originalPath, head.Path); err != nil {
				return err
			}
		}

		if err := registerActivityTx(ctx, tx, models.ActivityUpdateDocument, head.NodeID, version.VersionID, head.Path); err != nil {
			return err
		}

		res = insertResult{
			versionID:     version.VersionID,
			nodeTimestamp: nodeTS,
			verTimestamp:  verTS,
			lastMajor:     lastMajor,
			lastMinor:     lastMinor,
			bins:          bins,
		}
		return nil
	})
	if err != nil {
		return err
	}

	head.Timestamp = res.nodeTimestamp
	head.LastMajorVersionID = res.lastMajor
	head.LastMinorVersionID = res.lastMinor
	head.ModifiedAt = fromMillis(now)
	version.Timestamp = res.verTimestamp
	applyBinAssignments(dynamic, res.bins)
	return nil
}

// CopyAndUpdateNode saves content as a new version (expectedVersionID == 0)
// or into an existing target version. Dynamic data is copied from the source
// version first, then overwritten with the caller-supplied values. Supports
// save-as-new-version semantics distinct from in-place edit.
func (s *Store) CopyAndUpdateNode(ctx context.Context, head *models.NodeHeadData, version *models.VersionData, dynamic *models.DynamicPropertyData, versionIDsToDelete []int64, expectedVersionID int64, originalPath string) error {
	if err := validatePath(head.Path); err != nil {
		return err
	}

	var res insertResult
	now := toMillis(time.Now())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkHead(ctx, tx, head.NodeID, head.Timestamp); err != nil {
			return err
		}
		sourceID := version.VersionID
		if sourceID != 0 {
			if err := checkVersionExists(ctx, tx, sourceID); err != nil {
				return err
			}
		}

		verTS, err := nextTimestamp(ctx, tx)
		if err != nil {
			return err
		}

		var targetID int64
		newVersion := expectedVersionID == 0
		if newVersion {
			r, err := tx.ExecContext(ctx, `
				INSERT INTO versions (node_id, major, minor, status, timestamp, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				head.NodeID, version.Version.Major, version.Version.Minor, string(version.Version.Status), verTS, now)
			if err != nil {
				return fmt.Errorf("insert target version row: %w", err)
			}
			targetID, err = r.LastInsertId()
			if err != nil {
				return fmt.Errorf("target version id: %w", err)
			}
		} else {
			targetID = expectedVersionID
			if err := checkVersionExists(ctx, tx, targetID); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				"UPDATE versions SET major = ?, minor = ?, status = ?, timestamp = ? WHERE version_id = ?",
				version.Version.Major, version.Version.Minor, string(version.Version.Status), verTS, targetID)
			if err != nil {
				return fmt.Errorf("update target version row: %w", err)
			}
		}

		if sourceID != 0 && sourceID != targetID {
			if err := copyDynamicRows(ctx, tx, sourceID, targetID); err != nil {
				return err
			}
		}

		bins, err := s.saveDynamicData(ctx, tx, targetID, dynamic)
		if err != nil {
			return err
		}

		if err := deleteVersionRows(ctx, tx, versionIDsToDelete); err != nil {
			return err
		}

		nodeTS, lastMajor, lastMinor, err := updateHeadRow(ctx, tx, head, now)
		if err != nil {
			return err
		}

		if originalPath != "" && !strings.EqualFold(originalPath, head.Path) {
			if err := propagatePathChange(ctx, tx, head.NodeID, originalPath, head.Path); err != nil {
				return err
			}
		}

		activity := models.ActivityUpdateDocument
		if newVersion {
			activity = models.ActivityAddDocument
		}
		if err := registerActivityTx(ctx, tx, activity, head.NodeID, targetID, head.Path); err != nil {
			return err
		}

		res = insertResult{
			versionID:     targetID,
			nodeTimestamp: nodeTS,
			verTimestamp:  verTS,
			lastMajor:     lastMajor,
			lastMinor:     lastMinor,
			bins:          bins,
		}
		return nil
	})
	if err != nil {
		return err
	}

	head.Timestamp = res.nodeTimestamp
	head.LastMajorVersionID = res.lastMajor
	head.LastMinorVersionID = res.lastMinor
	head.ModifiedAt = fromMillis(now)
	version.VersionID = res.versionID
	version.Timestamp = res.verTimestamp
	applyBinAssignments(dynamic, res.bins)
	return nil
}

// UpdateNodeHead is head-only maintenance: deletes the named versions,
// recomputes last-version pointers, and bumps the node timestamp.
func (s *Store) UpdateNodeHead(ctx context.Context, head *models.NodeHeadData, versionIDsToDelete []int64) error {
	var res insertResult
	now := toMillis(time.Now())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkHead(ctx, tx, head.NodeID, head.Timestamp); err != nil {
			return err
		}
		if err := deleteVersionRows(ctx, tx, versionIDsToDelete); err != nil {
			return err
		}
		nodeTS, lastMajor, lastMinor, err := updateHeadRow(ctx, tx, head, now)
		if err != nil {
			return err
		}
		if err := registerActivityTx(ctx, tx, models.ActivityUpdateDocument, head.NodeID, lastMinor, head.Path); err != nil {
			return err
		}
		res = insertResult{nodeTimestamp: nodeTS, lastMajor: lastMajor, lastMinor: lastMinor}
		return nil
	})
	if err != nil {
		return err
	}

	head.Timestamp = res.nodeTimestamp
	head.LastMajorVersionID = res.lastMajor
	head.LastMinorVersionID = res.lastMinor
	head.ModifiedAt = fromMillis(now)
	return nil
}

// DeleteNode logically deletes a node and its whole subtree. Version and
// property rows are kept; the paths become free for reuse immediately.
func (s *Store) DeleteNode(ctx context.Context, nodeID int64, timestamp int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		path, err := headPath(ctx, tx, nodeID)
		if err != nil {
			return err
		}
		if err := checkHead(ctx, tx, nodeID, timestamp); err != nil {
			return err
		}

		ts, err := nextTimestamp(ctx, tx)
		if err != nil {
			return err
		}
		now := toMillis(time.Now())

		ids, err := subtreeNodeIDs(ctx, tx, nodeID, path)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE nodes SET deleted = TRUE, timestamp = ?, modified_at = ? WHERE node_id IN (%s)", inPlaceholders(len(ids))),
			append([]any{ts, now}, int64Args(ids)...)...)
		if err != nil {
			return fmt.Errorf("mark subtree deleted: %w", err)
		}

		return registerActivityTx(ctx, tx, models.ActivityRemoveTree, nodeID, 0, path)
	})
}

// MoveNode relocates a node under a new parent and rewrites the paths of
// the whole moved subtree.
func (s *Store) MoveNode(ctx context.Context, nodeID, targetNodeID int64, timestamp int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		oldPath, err := headPath(ctx, tx, nodeID)
		if err != nil {
			return err
		}
		if err := checkHead(ctx, tx, nodeID, timestamp); err != nil {
			return err
		}

		var targetPath string
		var targetDeleted bool
		err = tx.QueryRowContext(ctx,
			"SELECT path, deleted FROM nodes WHERE node_id = ?", targetNodeID).Scan(&targetPath, &targetDeleted)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && targetDeleted) {
			return fmt.Errorf("target node %d: %w", targetNodeID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load target node: %w", err)
		}

		// Moving a node under itself or one of its descendants would
		// create a parent cycle.
		if strings.EqualFold(targetPath, oldPath) || storage.IsDescendantOf(targetPath, oldPath) {
			return fmt.Errorf("cannot move node %d: target %s is inside the moved subtree %s", nodeID, targetPath, oldPath)
		}

		var name string
		if err := tx.QueryRowContext(ctx, "SELECT name FROM nodes WHERE node_id = ?", nodeID).Scan(&name); err != nil {
			return fmt.Errorf("load node name: %w", err)
		}
		newPath := targetPath + models.PathSeparator + name
		if err := validatePath(newPath); err != nil {
			return err
		}

		if err := probePathFree(ctx, tx, newPath, nodeID); err != nil {
			return err
		}

		ts, err := nextTimestamp(ctx, tx)
		if err != nil {
			return err
		}
		now := toMillis(time.Now())
		r, err := tx.ExecContext(ctx,
			"UPDATE nodes SET parent_id = ?, path = ?, timestamp = ?, modified_at = ? WHERE node_id = ? AND timestamp = ?",
			targetNodeID, newPath, ts, now, nodeID, timestamp)
		if err != nil {
			return fmt.Errorf("move node row: %w", err)
		}
		if n, _ := r.RowsAffected(); n == 0 {
			return fmt.Errorf("node %d: %w", nodeID, storage.ErrConcurrencyConflict)
		}

		if err := propagatePathChange(ctx, tx, nodeID, oldPath, newPath); err != nil {
			return err
		}

		if err := registerActivityTx(ctx, tx, models.ActivityRemoveTree, nodeID, 0, oldPath); err != nil {
			return err
		}
		return registerActivityTx(ctx, tx, models.ActivityAddTree, nodeID, 0, newPath)
	})
}

// ---------------------------------------------------------------------------
// Shared transaction helpers
// ---------------------------------------------------------------------------

// checkHead verifies the node exists, is not deleted, and carries the
// timestamp the caller last observed.
func checkHead(ctx context.Context, tx *sql.Tx, nodeID, expectedTS int64) error {
	var curTS int64
	var deleted bool
	err := tx.QueryRowContext(ctx,
		"SELECT timestamp, deleted FROM nodes WHERE node_id = ?", nodeID).Scan(&curTS, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("node %d: %w", nodeID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load node head: %w", err)
	}
	if deleted {
		return fmt.Errorf("node %d: %w", nodeID, storage.ErrNotFound)
	}
	if curTS != expectedTS {
		return fmt.Errorf("node %d: expected timestamp %d, stored %d: %w",
			nodeID, expectedTS, curTS, storage.ErrConcurrencyConflict)
	}
	return nil
}

func checkVersionExists(ctx context.Context, tx *sql.Tx, versionID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT version_id FROM versions WHERE version_id = ?", versionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("version %d: %w", versionID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load version: %w", err)
	}
	return nil
}

// probePathFree fails with ErrNodeAlreadyExists when a non-deleted node
// other than excludeNodeID occupies the path (case-insensitive).
func probePathFree(ctx context.Context, tx *sql.Tx, path string, excludeNodeID int64) error {
	var existing int64
	err := tx.QueryRowContext(ctx,
		"SELECT node_id FROM nodes WHERE path = ? COLLATE NOCASE AND NOT deleted AND node_id != ?",
		path, excludeNodeID).Scan(&existing)
	if err == nil {
		return fmt.Errorf("path %s: %w", path, storage.ErrNodeAlreadyExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("probe path: %w", err)
	}
	return nil
}

func headPath(ctx context.Context, tx *sql.Tx, nodeID int64) (string, error) {
	var path string
	var deleted bool
	err := tx.QueryRowContext(ctx, "SELECT path, deleted FROM nodes WHERE node_id = ?", nodeID).Scan(&path, &deleted)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
		return "", fmt.Errorf("node %d: %w", nodeID, storage.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("load node path: %w", err)
	}
	return path, nil
}

// updateHeadRow recomputes last-version pointers, draws a fresh timestamp,
// and writes the head row with a compare-and-swap on the old timestamp. The
// path is probed against every other live node first, so a rename cannot
// land on an occupied path.
func updateHeadRow(ctx context.Context, tx *sql.Tx, head *models.NodeHeadData, nowMillis int64) (nodeTS, lastMajor, lastMinor int64, err error) {
	if err := probePathFree(ctx, tx, head.Path, head.NodeID); err != nil {
		return 0, 0, 0, err
	}
	lastMajor, lastMinor, err = applyLastVersions(ctx, tx, head.NodeID)
	if err != nil {
		return 0, 0, 0, err
	}
	nodeTS, err = nextTimestamp(ctx, tx)
	if err != nil {
		return 0, 0, 0, err
	}
	r, err := tx.ExecContext(ctx, `
		UPDATE nodes SET parent_id = ?, type_id = ?, name = ?, path = ?, timestamp = ?, modified_at = ?
		WHERE node_id = ? AND timestamp = ? AND NOT deleted`,
		head.ParentID, head.TypeID, head.Name, head.Path, nodeTS, nowMillis, head.NodeID, head.Timestamp)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("update node head row: %w", err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return 0, 0, 0, fmt.Errorf("node %d: %w", head.NodeID, storage.ErrConcurrencyConflict)
	}
	return nodeTS, lastMajor, lastMinor, nil
}

// applyLastVersions recomputes and stores the last-major/last-minor version
// pointers for a node. Last minor is the newest version overall; last major
// is the newest approved major (minor == 0).
func applyLastVersions(ctx context.Context, tx *sql.Tx, nodeID int64) (lastMajor, lastMinor int64, err error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT version_id, minor, status FROM versions
		WHERE node_id = ? ORDER BY major DESC, minor DESC, version_id DESC`, nodeID)
	if err != nil {
		return 0, 0, fmt.Errorf("load versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var minor int
		var status string
		if err := rows.Scan(&id, &minor, &status); err != nil {
			return 0, 0, fmt.Errorf("scan version: %w", err)
		}
		if lastMinor == 0 {
			lastMinor = id
		}
		if lastMajor == 0 && minor == 0 && models.VersionStatus(status) == models.StatusApproved {
			lastMajor = id
		}
		if lastMinor != 0 && lastMajor != 0 {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate versions: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE nodes SET last_major_version_id = ?, last_minor_version_id = ? WHERE node_id = ?",
		lastMajor, lastMinor, nodeID)
	if err != nil {
		return 0, 0, fmt.Errorf("store last-version pointers: %w", err)
	}
	return lastMajor, lastMinor, nil
}

// saveDynamicData upserts the caller-supplied property values for a version
// and routes binary payloads through the blob provider. Binary metadata is
// returned instead of being written into the descriptors so a later rollback
// leaves them untouched. A blob put that survives a rollback is harmless:
// the store is content-addressed and the metadata row never existed.
func (s *Store) saveDynamicData(ctx context.Context, tx *sql.Tx, versionID int64, dynamic *models.DynamicPropertyData) ([]binAssignment, error) {
	if dynamic.IsEmpty() {
		return nil, nil
	}

	for ptid, val := range dynamic.Dynamic {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dynamic_properties (version_id, property_type_id, kind, value) VALUES (?, ?, ?, ?)
			ON CONFLICT(version_id, property_type_id) DO UPDATE SET kind = excluded.kind, value = excluded.value`,
			versionID, ptid, string(val.Kind), val.Value)
		if err != nil {
			return nil, fmt.Errorf("save dynamic property %d: %w", ptid, err)
		}
	}

	for ptid, text := range dynamic.LongText {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO longtext_properties (version_id, property_type_id, length, value) VALUES (?, ?, ?, ?)
			ON CONFLICT(version_id, property_type_id) DO UPDATE SET length = excluded.length, value = excluded.value`,
			versionID, ptid, len(text), text)
		if err != nil {
			return nil, fmt.Errorf("save long text property %d: %w", ptid, err)
		}
	}

	for ptid, referred := range dynamic.Reference {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM reference_properties WHERE version_id = ? AND property_type_id = ?", versionID, ptid); err != nil {
			return nil, fmt.Errorf("clear reference property %d: %w", ptid, err)
		}
		for _, nodeID := range referred {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO reference_properties (version_id, property_type_id, referred_node_id) VALUES (?, ?, ?)",
				versionID, ptid, nodeID)
			if err != nil {
				return nil, fmt.Errorf("save reference property %d: %w", ptid, err)
			}
		}
	}

	var bins []binAssignment
	for ptid, bin := range dynamic.Binary {
		fileID := blob.ComputeFileID(bin.Buffer)
		size := int64(len(bin.Buffer))
		if err := s.blobs.Put(ctx, fileID, bytes.NewReader(bin.Buffer), size); err != nil {
			return nil, fmt.Errorf("store blob for property %d: %w", ptid, err)
		}
		r, err := tx.ExecContext(ctx, `
			INSERT INTO binary_properties (version_id, property_type_id, file_id, file_name, content_type, size)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(version_id, property_type_id) DO UPDATE SET
				file_id = excluded.file_id, file_name = excluded.file_name,
				content_type = excluded.content_type, size = excluded.size`,
			versionID, ptid, fileID, bin.FileName, bin.ContentType, size)
		if err != nil {
			return nil, fmt.Errorf("save binary property %d: %w", ptid, err)
		}
		binaryID, _ := r.LastInsertId()
		if binaryID == 0 {
			// Upsert hit the existing row; load its id.
			if err := tx.QueryRowContext(ctx,
				"SELECT binary_id FROM binary_properties WHERE version_id = ? AND property_type_id = ?",
				versionID, ptid).Scan(&binaryID); err != nil {
				return nil, fmt.Errorf("load binary id: %w", err)
			}
		}
		bins = append(bins, binAssignment{propertyTypeID: ptid, binaryID: binaryID, fileID: fileID, size: size})
	}

	return bins, nil
}

func applyBinAssignments(dynamic *models.DynamicPropertyData, bins []binAssignment) {
	for _, b := range bins {
		if bin, ok := dynamic.Binary[b.propertyTypeID]; ok {
			bin.ID = b.binaryID
			bin.FileID = b.fileID
			bin.Size = b.size
		}
	}
}

// copyDynamicRows duplicates every property row of the source version into
// the target version, overwriting what is already there.
func copyDynamicRows(ctx context.Context, tx *sql.Tx, sourceID, targetID int64) error {
	stmts := []string{
		`INSERT OR REPLACE INTO dynamic_properties (version_id, property_type_id, kind, value)
		 SELECT ?, property_type_id, kind, value FROM dynamic_properties WHERE version_id = ?`,
		`INSERT OR REPLACE INTO longtext_properties (version_id, property_type_id, length, value)
		 SELECT ?, property_type_id, length, value FROM longtext_properties WHERE version_id = ?`,
		`INSERT OR REPLACE INTO reference_properties (version_id, property_type_id, referred_node_id)
		 SELECT ?, property_type_id, referred_node_id FROM reference_properties WHERE version_id = ?`,
		`INSERT INTO binary_properties (version_id, property_type_id, file_id, file_name, content_type, size)
		 SELECT ?, property_type_id, file_id, file_name, content_type, size FROM binary_properties WHERE version_id = ?
		 ON CONFLICT(version_id, property_type_id) DO UPDATE SET
			file_id = excluded.file_id, file_name = excluded.file_name,
			content_type = excluded.content_type, size = excluded.size`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, targetID, sourceID); err != nil {
			return fmt.Errorf("copy dynamic rows %d -> %d: %w", sourceID, targetID, err)
		}
	}
	return nil
}

// deleteVersionRows removes the named versions with their property rows and
// index documents. Blob bytes stay: they are content-addressed and may be
// shared with other versions.
func deleteVersionRows(ctx context.Context, tx *sql.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	in := inPlaceholders(len(ids))
	args := int64Args(ids)
	stmts := []string{
		"DELETE FROM dynamic_properties WHERE version_id IN (%s)",
		"DELETE FROM longtext_properties WHERE version_id IN (%s)",
		"DELETE FROM reference_properties WHERE version_id IN (%s)",
		"DELETE FROM binary_properties WHERE version_id IN (%s)",
		"DELETE FROM index_documents WHERE version_id IN (%s)",
		"DELETE FROM versions WHERE version_id IN (%s)",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(stmt, in), args...); err != nil {
			return fmt.Errorf("delete versions: %w", err)
		}
	}
	return nil
}

// propagatePathChange rewrites the path of every non-deleted descendant of
// originalPath to carry newPath as its prefix. The prefix match is
// case-insensitive; siblings with a longer name stay untouched. Each
// rewritten row draws a fresh timestamp so readers holding a stale
// descendant head see the move as a mutation.
func propagatePathChange(ctx context.Context, tx *sql.Tx, excludeNodeID int64, originalPath, newPath string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT node_id, path FROM nodes WHERE node_id != ? AND path LIKE ? ESCAPE '\'`,
		excludeNodeID, escapeLike(originalPath)+models.PathSeparator+"%")
	if err != nil {
		return fmt.Errorf("load descendants: %w", err)
	}

	type rewrite struct {
		nodeID int64
		path   string
	}
	var rewrites []rewrite
	for rows.Next() {
		var r rewrite
		if err := rows.Scan(&r.nodeID, &r.path); err != nil {
			rows.Close()
			return fmt.Errorf("scan descendant: %w", err)
		}
		if !storage.IsDescendantOf(r.path, originalPath) {
			continue // LIKE matched a pattern edge case, not a real descendant
		}
		r.path = storage.ReplacePathPrefix(r.path, originalPath, newPath)
		rewrites = append(rewrites, r)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("iterate descendants: %w", err)
	}

	for _, r := range rewrites {
		ts, err := nextTimestamp(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE nodes SET path = ?, timestamp = ? WHERE node_id = ?", r.path, ts, r.nodeID); err != nil {
			return fmt.Errorf("rewrite descendant path: %w", err)
		}
	}
	return nil
}

// subtreeNodeIDs returns the node plus every non-deleted descendant.
func subtreeNodeIDs(ctx context.Context, tx *sql.Tx, nodeID int64, path string) ([]int64, error) {
	ids := []int64{nodeID}
	rows, err := tx.QueryContext(ctx,
		`SELECT node_id, path FROM nodes WHERE node_id != ? AND NOT deleted AND path LIKE ? ESCAPE '\'`,
		nodeID, escapeLike(path)+models.PathSeparator+"%")
	if err != nil {
		return nil, fmt.Errorf("load subtree: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var p string
		if err := rows.Scan(&id, &p); err != nil {
			return nil, fmt.Errorf("scan subtree node: %w", err)
		}
		if storage.IsDescendantOf(p, path) {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// registerActivityTx appends an indexing activity in the same transaction
// as the mutation that produced it, so the queue and the data change commit
// or roll back together.
func registerActivityTx(ctx context.Context, tx *sql.Tx, typ models.ActivityType, nodeID, versionID int64, path string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO indexing_activities (activity_type, node_id, version_id, path, state, lock_time, created_at)
		VALUES (?, ?, ?, ?, 'Waiting', 0, ?)`,
		string(typ), nodeID, versionID, path, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("register indexing activity: %w", err)
	}
	return nil
}
