package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/statehub/internal/ir"
)

// ErrSequenceConflict is returned by Append when the (partition, seq) slot is
// already taken, which means another writer is appending to the same tenant.
var ErrSequenceConflict = errors.New("log sequence already written")

// Append writes one record at rec.Seq in rec.Partition.
//
// The caller chooses the sequence; the primary key turns a duplicate into
// ErrSequenceConflict. Nothing is written on error.
func (s *Store) Append(ctx context.Context, rec ir.LogRecord) error {
	if rec.Partition == "" {
		return fmt.Errorf("append: partition is required")
	}
	if rec.Seq <= 0 {
		return fmt.Errorf("append: seq must be positive, got %d", rec.Seq)
	}

	batchesJSON, err := marshalBatches(rec.Batches)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO log_records (partition, seq, timestamp, batches)
		VALUES (?, ?, ?, ?)
	`,
		rec.Partition,
		rec.Seq,
		rec.Timestamp,
		batchesJSON,
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("append %s/%d: %w", rec.Partition, rec.Seq, ErrSequenceConflict)
		}
		return fmt.Errorf("append: %w", err)
	}
	return nil
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

// CreateTenant registers partition as the active tenant. Earlier tenants are
// marked inactive in the same transaction, which is what a rotation looks
// like to a running connection.
//
// Re-registering an existing key reactivates it.
func (s *Store) CreateTenant(ctx context.Context, partition string, createdAt int64) error {
	if partition == "" {
		return fmt.Errorf("create tenant: partition is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create tenant: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `UPDATE tenants SET active = 0 WHERE partition_key <> ?`, partition); err != nil {
		return fmt.Errorf("create tenant: deactivate: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tenants (partition_key, created_at, active)
		VALUES (?, ?, 1)
		ON CONFLICT(partition_key) DO UPDATE SET active = 1, created_at = excluded.created_at
	`, partition, createdAt)
	if err != nil {
		return fmt.Errorf("create tenant: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create tenant: commit: %w", err)
	}
	return nil
}

// Checkpoint is one stored snapshot artifact.
type Checkpoint struct {
	Tenant    string
	Name      string
	Seq       int64
	CreatedAt int64 // unix milliseconds
	Payload   []byte
	Digest    string
}

// WriteCheckpoint stores a checkpoint artifact.
// Uses ON CONFLICT DO NOTHING: a name is written once.
func (s *Store) WriteCheckpoint(ctx context.Context, cp Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (tenant, name, seq, created_at, payload, digest)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant, name) DO NOTHING
	`,
		cp.Tenant,
		cp.Name,
		cp.Seq,
		cp.CreatedAt,
		string(cp.Payload),
		cp.Digest,
	)
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// PruneCheckpoints keeps the newest keep checkpoints of tenant and deletes the rest.
func (s *Store) PruneCheckpoints(ctx context.Context, tenant string, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE tenant = ? AND name NOT IN (
			SELECT name FROM checkpoints
			WHERE tenant = ?
			ORDER BY seq DESC, name DESC
			LIMIT ?
		)
	`, tenant, tenant, keep)
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: rows affected: %w", err)
	}
	return n, nil
}
