package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/statehub/internal/ir"
)

// ReadRange returns up to limit records of partition with seq > after,
// ordered by seq ascending. A limit <= 0 means no limit.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadRange(ctx context.Context, partition string, after int64, limit int) ([]ir.LogRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT is unbounded
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT partition, seq, timestamp, batches
		FROM log_records
		WHERE partition = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, partition, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query log records: %w", err)
	}
	defer rows.Close()

	records := []ir.LogRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log records: %w", err)
	}
	return records, nil
}

// ReadRecord returns the record at seq, or false when none exists.
func (s *Store) ReadRecord(ctx context.Context, partition string, seq int64) (ir.LogRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT partition, seq, timestamp, batches
		FROM log_records
		WHERE partition = ? AND seq = ?
	`, partition, seq)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.LogRecord{}, false, nil
	}
	if err != nil {
		return ir.LogRecord{}, false, err
	}
	return rec, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (ir.LogRecord, error) {
	var (
		rec         ir.LogRecord
		batchesJSON string
	)
	if err := sc.Scan(&rec.Partition, &rec.Seq, &rec.Timestamp, &batchesJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan log record: %w", err)
	}
	batches, err := unmarshalBatches(batchesJSON)
	if err != nil {
		return rec, fmt.Errorf("log record %d: %w", rec.Seq, err)
	}
	rec.Batches = batches
	return rec, nil
}

// LastSeq returns the highest sequence in partition, or 0 for an empty log.
func (s *Store) LastSeq(ctx context.Context, partition string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM log_records WHERE partition = ?
	`, partition).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// ActivePartition returns the newest active tenant.
// The boolean is false when no tenant has been provisioned yet.
func (s *Store) ActivePartition(ctx context.Context) (string, bool, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `
		SELECT partition_key FROM tenants
		WHERE active = 1
		ORDER BY created_at DESC, partition_key DESC
		LIMIT 1
	`).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("active partition: %w", err)
	}
	return key, true, nil
}

// Tenants lists every registered partition key, newest first.
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT partition_key FROM tenants ORDER BY created_at DESC, partition_key DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return keys, nil
}

// LatestCheckpoint returns the newest checkpoint of tenant: highest seq,
// ties broken by name descending.
func (s *Store) LatestCheckpoint(ctx context.Context, tenant string) (Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant, name, seq, created_at, payload, digest
		FROM checkpoints
		WHERE tenant = ?
		ORDER BY seq DESC, name DESC
		LIMIT 1
	`, tenant)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

// ListCheckpoints returns tenant's checkpoints, newest first, without payloads.
func (s *Store) ListCheckpoints(ctx context.Context, tenant string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant, name, seq, created_at, '', digest
		FROM checkpoints
		WHERE tenant = ?
		ORDER BY seq DESC, name DESC
	`, tenant)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	out := []Checkpoint{}
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		cp.Payload = nil
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

func scanCheckpoint(sc scanner) (Checkpoint, error) {
	var (
		cp      Checkpoint
		payload string
	)
	err := sc.Scan(&cp.Tenant, &cp.Name, &cp.Seq, &cp.CreatedAt, &payload, &cp.Digest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cp, err
		}
		return cp, fmt.Errorf("scan checkpoint: %w", err)
	}
	cp.Payload = []byte(payload)
	return cp, nil
}
