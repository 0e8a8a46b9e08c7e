package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/gupta2140/sensenet/internal/models"
	"github.com/gupta2140/sensenet/internal/storage"
)

// InstanceCount counts non-deleted nodes of the given types.
func (s *Store) InstanceCount(ctx context.Context, typeIDs []int64) (int, error) {
	if len(typeIDs) == 0 {
		return 0, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM nodes WHERE NOT deleted AND type_id IN (%s)", inPlaceholders(len(typeIDs))),
		int64Args(typeIDs)...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count instances: %w", err)
	}
	return count, nil
}

// GetChildrenIDs returns the ids of the non-deleted children of a parent.
func (s *Store) GetChildrenIDs(ctx context.Context, parentID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT node_id FROM nodes WHERE parent_id = ? AND NOT deleted ORDER BY node_id", parentID)
	if err != nil {
		return nil, fmt.Errorf("load children: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan child id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// pathScopeClause builds the subtree filter for pathStart: the node at the
// path itself plus every descendant. Empty pathStart matches everything.
func pathScopeClause(pathStart string, args *[]any) string {
	if pathStart == "" {
		return ""
	}
	*args = append(*args, pathStart, escapeLike(pathStart)+models.PathSeparator+"%")
	return ` AND (n.path = ? COLLATE NOCASE OR n.path LIKE ? ESCAPE '\')`
}

// QueryNodesByTypeAndPathAndName returns ids of non-deleted nodes matching
// the type set, subtree scope, and optional exact name. Ordering by path is
// lexicographic on the path string.
func (s *Store) QueryNodesByTypeAndPathAndName(ctx context.Context, typeIDs []int64, pathStart string, orderByPath bool, name string) ([]int64, error) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT n.node_id FROM nodes n WHERE NOT n.deleted")
	if len(typeIDs) > 0 {
		sb.WriteString(fmt.Sprintf(" AND n.type_id IN (%s)", inPlaceholders(len(typeIDs))))
		args = append(args, int64Args(typeIDs)...)
	}
	sb.WriteString(pathScopeClause(pathStart, &args))
	if name != "" {
		sb.WriteString(" AND n.name = ? COLLATE NOCASE")
		args = append(args, name)
	}
	if orderByPath {
		sb.WriteString(" ORDER BY n.path")
	} else {
		sb.WriteString(" ORDER BY n.node_id")
	}

	return s.queryIDs(ctx, sb.String(), args...)
}

// QueryNodesByTypeAndPathAndProperty returns ids of non-deleted nodes whose
// current content (last minor version) satisfies every property predicate.
func (s *Store) QueryNodesByTypeAndPathAndProperty(ctx context.Context, typeIDs []int64, pathStart string, orderByPath bool, filters []storage.PropertyFilter) ([]int64, error) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT n.node_id FROM nodes n WHERE NOT n.deleted")
	if len(typeIDs) > 0 {
		sb.WriteString(fmt.Sprintf(" AND n.type_id IN (%s)", inPlaceholders(len(typeIDs))))
		args = append(args, int64Args(typeIDs)...)
	}
	sb.WriteString(pathScopeClause(pathStart, &args))
	for _, f := range filters {
		sb.WriteString(` AND EXISTS (
			SELECT 1 FROM dynamic_properties dp
			WHERE dp.version_id = n.last_minor_version_id
			  AND dp.property_type_id = ? AND dp.value = ?)`)
		args = append(args, f.PropertyTypeID, f.Value)
	}
	if orderByPath {
		sb.WriteString(" ORDER BY n.path")
	} else {
		sb.WriteString(" ORDER BY n.node_id")
	}

	return s.queryIDs(ctx, sb.String(), args...)
}

// QueryNodesByReference returns ids of non-deleted nodes whose current
// content references the given node through the named reference property.
func (s *Store) QueryNodesByReference(ctx context.Context, propertyTypeID, referredNodeID int64) ([]int64, error) {
	return s.queryIDs(ctx, `
		SELECT DISTINCT n.node_id FROM nodes n
		JOIN reference_properties rp ON rp.version_id = n.last_minor_version_id
		WHERE NOT n.deleted AND rp.property_type_id = ? AND rp.referred_node_id = ?
		ORDER BY n.node_id`,
		propertyTypeID, referredNodeID)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query node ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan node id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
