package sqlite

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/gupta2140/sensenet/internal/models"
)

// maxCacheableTextLength is the longest text kept in the ordinary dynamic
// property set; anything longer belongs in the long-text store.
const maxCacheableTextLength = 4000

// WriteAuditEvent appends one audit log entry and writes back its id.
func (s *Store) WriteAuditEvent(ctx context.Context, ev *models.AuditEvent) error {
	when := ev.Timestamp
	if when.IsZero() {
		when = time.Now()
	}
	r, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, node_id, version_id, path, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.EventType, ev.NodeID, ev.VersionID, ev.Path, ev.Message, toMillis(when))
	if err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	id, err := r.LastInsertId()
	if err != nil {
		return fmt.Errorf("audit event id: %w", err)
	}
	ev.ID = id
	ev.Timestamp = fromMillis(toMillis(when))
	return nil
}

// LoadLastAuditEvents returns the newest count audit entries, newest first.
func (s *Store) LoadLastAuditEvents(ctx context.Context, count int) ([]*models.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, event_type, node_id, version_id, path, message, timestamp FROM audit_log ORDER BY id DESC LIMIT ?",
		count)
	if err != nil {
		return nil, fmt.Errorf("load audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		var ev models.AuditEvent
		var ts int64
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.NodeID, &ev.VersionID, &ev.Path, &ev.Message, &ts); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Timestamp = fromMillis(ts)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// RoundDateTime rounds to the millisecond precision this backend preserves.
func (s *Store) RoundDateTime(t time.Time) time.Time {
	return fromMillis(toMillis(t))
}

// IsCacheableText reports whether a text value fits the ordinary dynamic
// property set.
func (s *Store) IsCacheableText(text string) bool {
	return len(text) <= maxCacheableTextLength
}

// GetNameOfLastNodeWithNameBase probes "nameBase(N)" collisions among the
// non-deleted children of a parent and returns the sibling name with the
// highest suffix, or "" when no suffixed sibling exists. An extension, when
// given, must match after the closing parenthesis, e.g. "doc(3).txt".
func (s *Store) GetNameOfLastNodeWithNameBase(ctx context.Context, parentID int64, nameBase, extension string) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM nodes WHERE parent_id = ? AND NOT deleted AND name LIKE ? ESCAPE '\'`,
		parentID, escapeLike(nameBase)+"(%")
	if err != nil {
		return "", fmt.Errorf("probe name collisions: %w", err)
	}
	defer rows.Close()

	pattern, err := regexp.Compile("^" + regexp.QuoteMeta(nameBase) + `\((\d+)\)` + regexp.QuoteMeta(extension) + "$")
	if err != nil {
		return "", fmt.Errorf("compile name pattern: %w", err)
	}

	var lastName string
	var lastIndex int64 = -1
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", fmt.Errorf("scan sibling name: %w", err)
		}
		m := pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		idx, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		if idx > lastIndex {
			lastIndex = idx
			lastName = name
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return lastName, nil
}

// GetTreeSize sums binary property sizes for the node at path, optionally
// including its whole subtree.
func (s *Store) GetTreeSize(ctx context.Context, path string, includeChildren bool) (int64, error) {
	query := `
		SELECT COALESCE(SUM(bp.size), 0) FROM binary_properties bp
		JOIN versions v ON v.version_id = bp.version_id
		JOIN nodes n ON n.node_id = v.node_id
		WHERE NOT n.deleted AND (n.path = ? COLLATE NOCASE`
	args := []any{path}
	if includeChildren {
		query += ` OR n.path LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(path)+models.PathSeparator+"%")
	}
	query += ")"

	var size int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&size); err != nil {
		return 0, fmt.Errorf("compute tree size: %w", err)
	}
	return size, nil
}

// GetNodeCount counts non-deleted nodes, scoped to a subtree when path is
// non-empty.
func (s *Store) GetNodeCount(ctx context.Context, path string) (int, error) {
	query := "SELECT COUNT(*) FROM nodes n WHERE NOT n.deleted"
	var args []any
	query += pathScopeClause(path, &args)

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return count, nil
}

// GetVersionCount counts versions, scoped to a subtree when path is
// non-empty.
func (s *Store) GetVersionCount(ctx context.Context, path string) (int, error) {
	query := `
		SELECT COUNT(*) FROM versions v
		JOIN nodes n ON n.node_id = v.node_id
		WHERE NOT n.deleted`
	var args []any
	query += pathScopeClause(path, &args)

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count versions: %w", err)
	}
	return count, nil
}
