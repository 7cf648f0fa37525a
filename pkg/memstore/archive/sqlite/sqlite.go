// Package sqlite provides an archive tier backed by a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/log"
	"github.com/telltail/conmem/pkg/memstore"
)

// SQLiteArchive implements the memstore.Archive interface using a
// SQLite database.
type SQLiteArchive struct {
	db *sqlx.DB
}

// NewSQLiteArchive creates a new SQLiteArchive with the given database
// connection.
func NewSQLiteArchive(db *sqlx.DB) *SQLiteArchive {
	archive := &SQLiteArchive{
		db: db,
	}

	log.Debug("Initialized SQLite archive adapter")
	return archive
}

// Initialize creates the required table if it doesn't exist.
func (s *SQLiteArchive) Initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS archived_interactions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_id TEXT,
			input TEXT NOT NULL,
			record JSON NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create archived_interactions table", "error", err)
		return fmt.Errorf("failed to create archived_interactions table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS archived_interactions_session_idx
		ON archived_interactions (session_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create session index: %w", err)
	}

	return nil
}

// Put persists a batch of evicted records in one transaction.
func (s *SQLiteArchive) Put(ctx context.Context, records []*interaction.Interaction) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	for _, record := range records {
		if record.ID == "" {
			return errors.Wrap(errors.ErrInvalidInput, "archived record must have an id")
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", record.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO archived_interactions (
				id, session_id, user_id, input, record, created_at
			) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET record = excluded.record
		`, record.ID, string(record.SessionID), record.UserID, record.Input, data, record.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to archive record %s: %w", record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	log.DebugContext(ctx, "Archived records to SQLite", "count", len(records))
	return nil
}

// Get fetches a single archived record by id.
func (s *SQLiteArchive) Get(ctx context.Context, id string) (*interaction.Interaction, error) {
	var data []byte
	err := s.db.QueryRowxContext(ctx,
		`SELECT record FROM archived_interactions WHERE id = ?`, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read archived record: %w", err)
	}

	record := &interaction.Interaction{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archived record: %w", err)
	}
	return record, nil
}

// Close closes the underlying database.
func (s *SQLiteArchive) Close() error {
	return s.db.Close()
}

var _ memstore.Archive = (*SQLiteArchive)(nil)
