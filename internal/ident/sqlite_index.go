package ident

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"

	"github.com/vitrine-app/archive-ingest/internal/domain"
)

// SQLiteIndex stores the path-to-id mapping in an embedded SQLite database.
// modernc.org/sqlite is pure Go, so the binary stays CGO-free. Mutations are
// transactional; serialization comes from SQLite's single-writer model.
type SQLiteIndex struct {
	db     *sql.DB
	logger zerolog.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS archive_ids (
    logical_path TEXT PRIMARY KEY,
    archive_id   TEXT NOT NULL,
    created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// NewSQLiteIndex opens (creating if needed) a SQLite-backed index at path.
func NewSQLiteIndex(path string, logger zerolog.Logger) (*SQLiteIndex, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open identifier index: %w", err)
	}
	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate identifier index: %w", err)
	}

	return &SQLiteIndex{
		db:     db,
		logger: logger.With().Str("component", "ident-index").Logger(),
	}, nil
}

// Lookup returns the id for a logical path.
func (s *SQLiteIndex) Lookup(ctx context.Context, logicalPath string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT archive_id FROM archive_ids WHERE logical_path = ?`, logicalPath,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrMappingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup archive id: %w", err)
	}
	return id, nil
}

// Assign returns the id for a logical path, minting one on first use.
func (s *SQLiteIndex) Assign(ctx context.Context, logicalPath string) (string, error) {
	fresh, err := mintID()
	if err != nil {
		return "", err
	}

	// Insert-if-absent then read back keeps assignment at-most-once even
	// with concurrent callers.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO archive_ids (logical_path, archive_id) VALUES (?, ?)
		 ON CONFLICT (logical_path) DO NOTHING`, logicalPath, fresh)
	if err != nil {
		return "", fmt.Errorf("assign archive id: %w", err)
	}

	return s.Lookup(ctx, logicalPath)
}

// Migrate moves an entry from oldPath to newPath.
func (s *SQLiteIndex) Migrate(ctx context.Context, oldPath, newPath string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE archive_ids SET logical_path = ? WHERE logical_path = ?`, newPath, oldPath)
	if err != nil {
		return fmt.Errorf("migrate archive id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("migrate archive id: %w", err)
	}
	if n == 0 {
		return domain.ErrMappingNotFound
	}
	return nil
}

// Delete removes the entry for a logical path.
func (s *SQLiteIndex) Delete(ctx context.Context, logicalPath string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM archive_ids WHERE logical_path = ?`, logicalPath); err != nil {
		return fmt.Errorf("delete archive id: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// Ensure SQLiteIndex implements Index.
var _ Index = (*SQLiteIndex)(nil)
