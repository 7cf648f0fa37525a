// Package postgres provides an archive tier backed by a PostgreSQL
// database. Operations run over a pgx connection pool; schema setup is
// handled by golang-migrate with embedded migration files.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq" // PostgreSQL driver for migrations

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/log"
	"github.com/telltail/conmem/pkg/memstore"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PostgresArchive implements the memstore.Archive interface using a
// PostgreSQL database.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive creates a new PostgresArchive with the given
// connection pool.
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	archive := &PostgresArchive{
		pool: pool,
	}

	log.Debug("Initialized PostgreSQL archive adapter")
	return archive
}

// Migrate applies the embedded schema migrations against the database
// at dsn. Call once at startup before using the archive.
func Migrate(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to connect for migrations: %w", err)
	}
	defer db.Close()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Debug("Applied PostgreSQL archive migrations")
	return nil
}

// Put persists a batch of evicted records in one transaction.
func (p *PostgresArchive) Put(ctx context.Context, records []*interaction.Interaction) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, record := range records {
		if record.ID == "" {
			return errors.Wrap(errors.ErrInvalidInput, "archived record must have an id")
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", record.ID, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO archived_interactions (
				id, session_id, user_id, input, record, created_at
			) VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record
		`, record.ID, string(record.SessionID), record.UserID, record.Input, data, record.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to archive record %s: %w", record.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	log.DebugContext(ctx, "Archived records to PostgreSQL", "count", len(records))
	return nil
}

// Get fetches a single archived record by id.
func (p *PostgresArchive) Get(ctx context.Context, id string) (*interaction.Interaction, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT record FROM archived_interactions WHERE id = $1`, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

// Close closes the underlying connection pool.
func (p *PostgresArchive) Close() error {
	p.pool.Close()
	return nil
}

var _ memstore.Archive = (*PostgresArchive)(nil)
