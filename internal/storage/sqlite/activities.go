package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gupta2140/sensenet/internal/models"
	"github.com/gupta2140/sensenet/internal/storage"
)

const activityColumns = "id, activity_type, node_id, version_id, path, state, lock_time, created_at, extension"

func scanActivity(row interface{ Scan(...any) error }) (*models.IndexingActivityRecord, error) {
	var rec models.IndexingActivityRecord
	var typ, state string
	var lockTime, created int64
	err := row.Scan(&rec.ID, &typ, &rec.NodeID, &rec.VersionID, &rec.Path, &state, &lockTime, &created, &rec.Extension)
	if err != nil {
		return nil, err
	}
	rec.Type = models.ActivityType(typ)
	rec.State = models.ActivityRunningState(state)
	rec.LockTime = fromMillis(lockTime)
	rec.CreatedAt = fromMillis(created)
	return &rec, nil
}

// RegisterActivity appends a new activity in Waiting state and writes the
// assigned id back into the record. Ids strictly increase and are never
// reused.
func (s *Store) RegisterActivity(ctx context.Context, rec *models.IndexingActivityRecord) error {
	now := time.Now()
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx, `
			INSERT INTO indexing_activities (activity_type, node_id, version_id, path, state, lock_time, created_at, extension)
			VALUES (?, ?, ?, ?, 'Waiting', 0, ?, ?)`,
			string(rec.Type), rec.NodeID, rec.VersionID, rec.Path, toMillis(now), rec.Extension)
		if err != nil {
			return fmt.Errorf("insert indexing activity: %w", err)
		}
		id, err = r.LastInsertId()
		if err != nil {
			return fmt.Errorf("activity id: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	rec.ID = id
	rec.State = models.ActivityWaiting
	rec.CreatedAt = fromMillis(toMillis(now))
	return nil
}

// LoadActivities loads the given activities by id, ascending. Missing ids
// are skipped.
func (s *Store) LoadActivities(ctx context.Context, ids []int64) ([]*models.IndexingActivityRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM indexing_activities WHERE id IN (%s) ORDER BY id", activityColumns, inPlaceholders(len(ids))),
		int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	defer rows.Close()

	var recs []*models.IndexingActivityRecord
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// LoadExecutableActivities leases up to maxCount executable activities:
// those in Waiting state, or in Running state whose lease expired more than
// runningTimeout ago. Leased activities transition to Running with a fresh
// lock time atomically, so two workers never hold the same activity.
func (s *Store) LoadExecutableActivities(ctx context.Context, maxCount int, runningTimeout time.Duration) ([]*models.IndexingActivityRecord, error) {
	recs, _, err := s.LoadExecutableAndFinished(ctx, maxCount, runningTimeout, nil)
	return recs, err
}

// LoadExecutableAndFinished is the gap-fill variant: waitingIDs the caller
// is still waiting for are reconciled in the same transaction. Ids that
// are already Done or deleted come back in finishedIDs so the caller can
// resume strict in-order application.
func (s *Store) LoadExecutableAndFinished(ctx context.Context, maxCount int, runningTimeout time.Duration, waitingIDs []int64) ([]*models.IndexingActivityRecord, []int64, error) {
	now := time.Now()
	expiry := toMillis(now.Add(-runningTimeout))

	var leased []*models.IndexingActivityRecord
	var finished []int64

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
			SELECT %s FROM indexing_activities
			WHERE state = 'Waiting' OR (state = 'Running' AND lock_time <= ?)
			ORDER BY id LIMIT ?`, activityColumns),
			expiry, maxCount)
		if err != nil {
			return fmt.Errorf("select executable activities: %w", err)
		}
		for rows.Next() {
			rec, err := scanActivity(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan executable activity: %w", err)
			}
			leased = append(leased, rec)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		if len(leased) > 0 {
			ids := make([]int64, len(leased))
			for i, rec := range leased {
				ids[i] = rec.ID
			}
			_, err = tx.ExecContext(ctx,
				fmt.Sprintf("UPDATE indexing_activities SET state = 'Running', lock_time = ? WHERE id IN (%s)",
					inPlaceholders(len(ids))),
				append([]any{toMillis(now)}, int64Args(ids)...)...)
			if err != nil {
				return fmt.Errorf("lease activities: %w", err)
			}
			for _, rec := range leased {
				rec.State = models.ActivityRunning
				rec.LockTime = fromMillis(toMillis(now))
			}
		}

		for _, id := range waitingIDs {
			var state string
			err := tx.QueryRowContext(ctx,
				"SELECT state FROM indexing_activities WHERE id = ?", id).Scan(&state)
			if errors.Is(err, sql.ErrNoRows) {
				// Deleted after completion, finished from the caller's view.
				finished = append(finished, id)
				continue
			}
			if err != nil {
				return fmt.Errorf("probe waiting activity %d: %w", id, err)
			}
			if models.ActivityRunningState(state) == models.ActivityDone {
				finished = append(finished, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return leased, finished, nil
}

// RefreshActivityLockTime extends the lease of slow-running activities.
func (s *Store) RefreshActivityLockTime(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE indexing_activities SET lock_time = ? WHERE id IN (%s)", inPlaceholders(len(ids))),
		append([]any{toMillis(time.Now())}, int64Args(ids)...)...)
	if err != nil {
		return fmt.Errorf("refresh activity lock time: %w", err)
	}
	return nil
}

// UpdateActivityRunningState explicitly marks completion or failure.
// Moving back to Waiting re-queues the activity for another worker.
func (s *Store) UpdateActivityRunningState(ctx context.Context, id int64, state models.ActivityRunningState) error {
	r, err := s.db.ExecContext(ctx,
		"UPDATE indexing_activities SET state = ?, lock_time = ? WHERE id = ?",
		string(state), toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update activity state: %w", err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("activity %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

// DeleteFinishedActivities removes Done activities older than maxAge
// (maxAge <= 0 means any age). With preserveGaps, a Done activity is kept
// while any unfinished activity with a smaller id is still present, so
// strict in-order index application can still observe the full prefix.
func (s *Store) DeleteFinishedActivities(ctx context.Context, maxAge time.Duration, preserveGaps bool) (int, error) {
	cutoff := toMillis(time.Now().Add(-maxAge))

	var deleted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := "DELETE FROM indexing_activities WHERE state = 'Done' AND created_at <= ?"
		args := []any{cutoff}

		if preserveGaps {
			var floor sql.NullInt64
			if err := tx.QueryRowContext(ctx,
				"SELECT MIN(id) FROM indexing_activities WHERE state != 'Done'").Scan(&floor); err != nil {
				return fmt.Errorf("find unfinished floor: %w", err)
			}
			if floor.Valid {
				query += " AND id < ?"
				args = append(args, floor.Int64)
			}
		}

		r, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete finished activities: %w", err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return err
		}
		deleted = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// DeleteAllActivities clears the queue.
func (s *Store) DeleteAllActivities(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM indexing_activities"); err != nil {
		return fmt.Errorf("delete all activities: %w", err)
	}
	return nil
}

// GetLastActivityID returns the highest assigned activity id, 0 when the
// queue has never seen one.
func (s *Store) GetLastActivityID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM indexing_activities").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("load last activity id: %w", err)
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}
