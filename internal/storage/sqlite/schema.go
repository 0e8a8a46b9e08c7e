package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gupta2140/sensenet/internal/storage"
)

// LoadSchemaTimestamp returns the current schema timestamp.
func (s *Store) LoadSchemaTimestamp(ctx context.Context) (int64, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, "SELECT timestamp FROM schema_state WHERE id = 1").Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("load schema timestamp: %w", err)
	}
	return ts, nil
}

// StartSchemaUpdate opens the single-writer schema gate. The timestamp
// check and the lock creation are one critical section: a concurrent
// StartSchemaUpdate sees either no lock or the committed one, never a
// half-taken state. Fails with ErrSchemaOutOfDate on a stale timestamp and
// ErrSchemaLocked while another update is in flight.
func (s *Store) StartSchemaUpdate(ctx context.Context, expectedTimestamp int64) (string, error) {
	token, err := newLockToken()
	if err != nil {
		return "", err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var ts int64
		var held sql.NullString
		if err := tx.QueryRowContext(ctx,
			"SELECT timestamp, lock_token FROM schema_state WHERE id = 1").Scan(&ts, &held); err != nil {
			return fmt.Errorf("load schema state: %w", err)
		}
		if ts != expectedTimestamp {
			return fmt.Errorf("expected schema timestamp %d, stored %d: %w",
				expectedTimestamp, ts, storage.ErrSchemaOutOfDate)
		}
		if held.Valid && held.String != "" {
			return storage.ErrSchemaLocked
		}

		_, err := tx.ExecContext(ctx,
			"UPDATE schema_state SET lock_token = ?, locked_at = ? WHERE id = 1",
			token, toMillis(time.Now()))
		if err != nil {
			return fmt.Errorf("take schema lock: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// FinishSchemaUpdate validates the token, advances the schema timestamp,
// and releases the lock, all atomically. Returns the new timestamp.
func (s *Store) FinishSchemaUpdate(ctx context.Context, token string) (int64, error) {
	var newTS int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var held sql.NullString
		if err := tx.QueryRowContext(ctx,
			"SELECT lock_token FROM schema_state WHERE id = 1").Scan(&held); err != nil {
			return fmt.Errorf("load schema state: %w", err)
		}
		if !held.Valid || held.String == "" || held.String != token {
			return storage.ErrInvalidSchemaLock
		}

		ts, err := nextTimestamp(ctx, tx)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE schema_state SET timestamp = ?, lock_token = NULL, locked_at = NULL WHERE id = 1", ts)
		if err != nil {
			return fmt.Errorf("release schema lock: %w", err)
		}
		newTS = ts
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newTS, nil
}

// newLockToken generates an opaque random schema lock token.
func newLockToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
