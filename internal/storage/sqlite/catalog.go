package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/gupta2140/sensenet/internal/models"
	"github.com/gupta2140/sensenet/internal/storage"
)

const nodeHeadColumns = `node_id, parent_id, type_id, name, path,
	last_major_version_id, last_minor_version_id, timestamp, created_at, modified_at`

func scanNodeHead(row interface{ Scan(...any) error }) (*models.NodeHeadData, error) {
	var head models.NodeHeadData
	var created, modified int64
	err := row.Scan(&head.NodeID, &head.ParentID, &head.TypeID, &head.Name, &head.Path,
		&head.LastMajorVersionID, &head.LastMinorVersionID, &head.Timestamp, &created, &modified)
	if err != nil {
		return nil, err
	}
	head.CreatedAt = fromMillis(created)
	head.ModifiedAt = fromMillis(modified)
	return &head, nil
}

// LoadNodeHead loads the head of the non-deleted node at path.
func (s *Store) LoadNodeHead(ctx context.Context, path string) (*models.NodeHeadData, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+nodeHeadColumns+" FROM nodes WHERE path = ? COLLATE NOCASE AND NOT deleted", path)
	head, err := scanNodeHead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("path %s: %w", path, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load node head by path: %w", err)
	}
	return head, nil
}

// LoadNodeHeadByID loads the head of a non-deleted node by id.
func (s *Store) LoadNodeHeadByID(ctx context.Context, nodeID int64) (*models.NodeHeadData, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+nodeHeadColumns+" FROM nodes WHERE node_id = ? AND NOT deleted", nodeID)
	head, err := scanNodeHead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %d: %w", nodeID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load node head by id: %w", err)
	}
	return head, nil
}

// LoadNodeHeadByVersionID resolves the owning node of a version.
func (s *Store) LoadNodeHeadByVersionID(ctx context.Context, versionID int64) (*models.NodeHeadData, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT n.node_id, n.parent_id, n.type_id, n.name, n.path,
			n.last_major_version_id, n.last_minor_version_id, n.timestamp, n.created_at, n.modified_at
		FROM nodes n JOIN versions v ON v.node_id = n.node_id
		WHERE v.version_id = ? AND NOT n.deleted`, versionID)
	head, err := scanNodeHead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("version %d: %w", versionID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load node head by version: %w", err)
	}
	return head, nil
}

// LoadNodeHeads batch-loads heads by node id. Missing or deleted ids are
// skipped, not errors.
func (s *Store) LoadNodeHeads(ctx context.Context, nodeIDs []int64) ([]*models.NodeHeadData, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM nodes WHERE node_id IN (%s) AND NOT deleted ORDER BY node_id",
			nodeHeadColumns, inPlaceholders(len(nodeIDs))),
		int64Args(nodeIDs)...)
	if err != nil {
		return nil, fmt.Errorf("load node heads: %w", err)
	}
	defer rows.Close()

	var heads []*models.NodeHeadData
	for rows.Next() {
		head, err := scanNodeHead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node head: %w", err)
		}
		heads = append(heads, head)
	}
	return heads, rows.Err()
}

// GetVersionNumbers enumerates all version numbers of a node, oldest first.
func (s *Store) GetVersionNumbers(ctx context.Context, nodeID int64) ([]models.VersionNumber, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT major, minor, status FROM versions WHERE node_id = ? ORDER BY major, minor, version_id", nodeID)
	if err != nil {
		return nil, fmt.Errorf("load version numbers: %w", err)
	}
	defer rows.Close()

	var numbers []models.VersionNumber
	for rows.Next() {
		var v models.VersionNumber
		var status string
		if err := rows.Scan(&v.Major, &v.Minor, &status); err != nil {
			return nil, fmt.Errorf("scan version number: %w", err)
		}
		v.Status = models.VersionStatus(status)
		numbers = append(numbers, v)
	}
	return numbers, rows.Err()
}

// GetVersionNumbersByPath enumerates version numbers of the node at path.
func (s *Store) GetVersionNumbersByPath(ctx context.Context, path string) ([]models.VersionNumber, error) {
	head, err := s.LoadNodeHead(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.GetVersionNumbers(ctx, head.NodeID)
}

// LoadVersion loads one version with its full dynamic property payload.
// Binary buffers are populated from the blob provider.
func (s *Store) LoadVersion(ctx context.Context, versionID int64) (*models.VersionData, *models.DynamicPropertyData, error) {
	var ver models.VersionData
	var status string
	var created int64
	err := s.db.QueryRowContext(ctx,
		"SELECT version_id, node_id, major, minor, status, timestamp, created_at FROM versions WHERE version_id = ?",
		versionID).Scan(&ver.VersionID, &ver.NodeID, &ver.Version.Major, &ver.Version.Minor, &status, &ver.Timestamp, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("version %d: %w", versionID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load version: %w", err)
	}
	ver.Version.Status = models.VersionStatus(status)
	ver.CreatedAt = fromMillis(created)

	dynamic := &models.DynamicPropertyData{
		Dynamic:   map[int64]models.PropertyValue{},
		LongText:  map[int64]string{},
		Reference: map[int64][]int64{},
		Binary:    map[int64]*models.BinaryDataValue{},
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT property_type_id, kind, value FROM dynamic_properties WHERE version_id = ?", versionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load dynamic properties: %w", err)
	}
	for rows.Next() {
		var ptid int64
		var kind, value string
		if err := rows.Scan(&ptid, &kind, &value); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan dynamic property: %w", err)
		}
		dynamic.Dynamic[ptid] = models.PropertyValue{Kind: models.PropertyKind(kind), Value: value}
	}
	if err := rows.Close(); err != nil {
		return nil, nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT property_type_id, value FROM longtext_properties WHERE version_id = ?", versionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load long text properties: %w", err)
	}
	for rows.Next() {
		var ptid int64
		var value string
		if err := rows.Scan(&ptid, &value); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan long text property: %w", err)
		}
		dynamic.LongText[ptid] = value
	}
	if err := rows.Close(); err != nil {
		return nil, nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT property_type_id, referred_node_id FROM reference_properties WHERE version_id = ? ORDER BY property_type_id, referred_node_id",
		versionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load reference properties: %w", err)
	}
	for rows.Next() {
		var ptid, referred int64
		if err := rows.Scan(&ptid, &referred); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan reference property: %w", err)
		}
		dynamic.Reference[ptid] = append(dynamic.Reference[ptid], referred)
	}
	if err := rows.Close(); err != nil {
		return nil, nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT binary_id, property_type_id, file_id, file_name, content_type, size FROM binary_properties WHERE version_id = ?",
		versionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load binary properties: %w", err)
	}
	for rows.Next() {
		var ptid int64
		bin := &models.BinaryDataValue{}
		if err := rows.Scan(&bin.ID, &ptid, &bin.FileID, &bin.FileName, &bin.ContentType, &bin.Size); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan binary property: %w", err)
		}
		dynamic.Binary[ptid] = bin
	}
	if err := rows.Close(); err != nil {
		return nil, nil, err
	}

	for ptid, bin := range dynamic.Binary {
		r, _, err := s.blobs.Get(ctx, bin.FileID)
		if err != nil {
			return nil, nil, fmt.Errorf("load blob for property %d: %w", ptid, err)
		}
		bin.Buffer, err = io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("read blob for property %d: %w", ptid, err)
		}
	}

	return &ver, dynamic, nil
}
