// Package boltdb provides an archive tier backed by a BoltDB file.
package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/interaction"
	"github.com/telltail/conmem/pkg/log"
	"github.com/telltail/conmem/pkg/memstore"
)

var bucketName = []byte("interactions")

// BoltArchive implements the memstore.Archive interface using a BoltDB
// database. Records are stored as JSON keyed by interaction id.
type BoltArchive struct {
	db *bolt.DB
}

// NewBoltArchive creates a new BoltArchive with the given database
// connection.
func NewBoltArchive(db *bolt.DB) *BoltArchive {
	archive := &BoltArchive{
		db: db,
	}

	log.Debug("Initialized BoltDB archive adapter",
		"db_path", db.Path(),
		"read_only", db.IsReadOnly(),
	)

	return archive
}

// Initialize creates the required bucket if it doesn't exist. This is
// called internally by Put, but can be called explicitly to ensure the
// bucket exists at startup.
func (b *BoltArchive) Initialize(ctx context.Context) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize BoltDB archive bucket", "error", err)
		return err
	}
	return nil
}

// Put persists a batch of evicted records in one transaction.
func (b *BoltArchive) Put(ctx context.Context, records []*interaction.Interaction) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return fmt.Errorf("failed to create archive bucket: %w", err)
		}

		for _, record := range records {
			if record.ID == "" {
				return errors.Wrap(errors.ErrInvalidInput, "archived record must have an id")
			}
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to marshal record %s: %w", record.ID, err)
			}
			if err := bucket.Put([]byte(record.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to archive records: %w", err)
	}

	log.DebugContext(ctx, "Archived records to BoltDB", "count", len(records))
	return nil
}

// Get fetches a single archived record by id.
func (b *BoltArchive) Get(ctx context.Context, id string) (*interaction.Interaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record *interaction.Interaction
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return nil
		}
		record = &interaction.Interaction{}
		return json.Unmarshal(data, record)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read archived record: %w", err)
	}
	if record == nil {
		return nil, errors.ErrNotFound
	}
	return record, nil
}

// Close closes the underlying database.
func (b *BoltArchive) Close() error {
	return b.db.Close()
}

var _ memstore.Archive = (*BoltArchive)(nil)
