package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gupta2140/sensenet/internal/models"
	"github.com/gupta2140/sensenet/internal/storage"
)

// SaveIndexDocument creates or replaces the produced index document of a
// version. The node identity is resolved from the version so the document
// always carries the committed path.
func (s *Store) SaveIndexDocument(ctx context.Context, versionID int64, document []byte) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var nodeID int64
		var path string
		err := tx.QueryRowContext(ctx, `
			SELECT n.node_id, n.path FROM nodes n
			JOIN versions v ON v.node_id = n.node_id
			WHERE v.version_id = ?`, versionID).Scan(&nodeID, &path)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("version %d: %w", versionID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("resolve version owner: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO index_documents (version_id, node_id, path, document) VALUES (?, ?, ?, ?)
			ON CONFLICT(version_id) DO UPDATE SET node_id = excluded.node_id,
				path = excluded.path, document = excluded.document`,
			versionID, nodeID, path, document)
		if err != nil {
			return fmt.Errorf("save index document: %w", err)
		}
		return nil
	})
}

// LoadIndexDocuments loads the stored index documents for the given
// versions, ascending by version id. Missing ids are skipped.
func (s *Store) LoadIndexDocuments(ctx context.Context, versionIDs []int64) ([]*models.IndexDocument, error) {
	if len(versionIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT version_id, node_id, path, document FROM index_documents WHERE version_id IN (%s) ORDER BY version_id",
			inPlaceholders(len(versionIDs))),
		int64Args(versionIDs)...)
	if err != nil {
		return nil, fmt.Errorf("load index documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.IndexDocument
	for rows.Next() {
		var doc models.IndexDocument
		if err := rows.Scan(&doc.VersionID, &doc.NodeID, &doc.Path, &doc.Document); err != nil {
			return nil, fmt.Errorf("scan index document: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}
