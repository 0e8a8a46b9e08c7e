package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gupta2140/sensenet/internal/models"
	"github.com/gupta2140/sensenet/internal/storage"
)

// AcquireTreeLock claims path and its whole subtree. It fails with
// ErrTreeLockConflict if any held lock is on the same path, an ancestor,
// or a descendant. The conflict check and the insert are one transaction.
func (s *Store) AcquireTreeLock(ctx context.Context, path string) (int64, error) {
	if err := validatePath(path); err != nil {
		return 0, err
	}

	var lockID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		held, err := loadTreeLocksTx(ctx, tx)
		if err != nil {
			return err
		}
		for _, l := range held {
			if storage.PathsOverlap(path, l.Path) {
				return fmt.Errorf("path %s overlaps lock %d on %s: %w", path, l.ID, l.Path, storage.ErrTreeLockConflict)
			}
		}

		r, err := tx.ExecContext(ctx,
			"INSERT INTO tree_locks (path, locked_at) VALUES (?, ?)", path, toMillis(time.Now()))
		if err != nil {
			return fmt.Errorf("insert tree lock: %w", err)
		}
		lockID, err = r.LastInsertId()
		if err != nil {
			return fmt.Errorf("tree lock id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return lockID, nil
}

// IsTreeLocked answers by the same ancestor/descendant overlap test as
// AcquireTreeLock.
func (s *Store) IsTreeLocked(ctx context.Context, path string) (bool, error) {
	locks, err := s.LoadAllTreeLocks(ctx)
	if err != nil {
		return false, err
	}
	for _, l := range locks {
		if storage.PathsOverlap(path, l.Path) {
			return true, nil
		}
	}
	return false, nil
}

// ReleaseTreeLocks removes the given locks. Idempotent on already-released
// ids.
func (s *Store) ReleaseTreeLocks(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM tree_locks WHERE id IN (%s)", inPlaceholders(len(ids))),
		int64Args(ids)...)
	if err != nil {
		return fmt.Errorf("release tree locks: %w", err)
	}
	return nil
}

// LoadAllTreeLocks returns every currently held tree lock.
func (s *Store) LoadAllTreeLocks(ctx context.Context) ([]*models.TreeLock, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, path, locked_at FROM tree_locks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("load tree locks: %w", err)
	}
	defer rows.Close()

	var locks []*models.TreeLock
	for rows.Next() {
		l, err := scanTreeLock(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

// CleanupStaleTreeLocks removes locks older than maxAge, covering callers
// that crashed without releasing. Returns the number removed.
func (s *Store) CleanupStaleTreeLocks(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := toMillis(time.Now().Add(-maxAge))
	r, err := s.db.ExecContext(ctx, "DELETE FROM tree_locks WHERE locked_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale tree locks: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func loadTreeLocksTx(ctx context.Context, tx *sql.Tx) ([]*models.TreeLock, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id, path, locked_at FROM tree_locks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("load tree locks: %w", err)
	}
	defer rows.Close()

	var locks []*models.TreeLock
	for rows.Next() {
		l, err := scanTreeLock(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

func scanTreeLock(row interface{ Scan(...any) error }) (*models.TreeLock, error) {
	var l models.TreeLock
	var lockedAt int64
	if err := row.Scan(&l.ID, &l.Path, &lockedAt); err != nil {
		return nil, fmt.Errorf("scan tree lock: %w", err)
	}
	l.LockedAt = fromMillis(lockedAt)
	return &l, nil
}
