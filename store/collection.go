// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Collection is a typed view over one entity table. The zero value is not
// usable; obtain instances through the package constructors (Shelters,
// Inventory, ...). A Collection is cheap to copy and safe for concurrent
// reads; writes are serialized by the owning Store.
type Collection[T any, PT interface {
	Record
	*T
}] struct {
	s    *Store
	tbl  string
	q    querier
	inTx bool
}

func newCollection[T any, PT interface {
	Record
	*T
}](s *Store, tbl string) Collection[T, PT] {
	return Collection[T, PT]{s: s, tbl: tbl, q: s.db}
}

// WithTx returns a copy of the collection bound to the given unit of work.
func (c Collection[T, PT]) WithTx(tx *Tx) Collection[T, PT] {
	c.q = tx.tx
	c.inTx = true
	return c
}

// Put writes a record originating from a domain mutation: it marks the
// record unsynced, refreshes updated_at, inserts when the record has no
// local id yet and updates otherwise. The assigned local id is returned.
func (c Collection[T, PT]) Put(ctx context.Context, rec PT) (int64, error) {
	m := rec.RecordMeta()
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.Synced = false
	if m.Status == "" {
		m.Status = StatusActive
	}
	return c.save(ctx, rec)
}

// PutMerged writes a record on behalf of the sync engine's pull path. The
// record's sync state and timestamps are stored as given, not refreshed.
func (c Collection[T, PT]) PutMerged(ctx context.Context, rec PT) (int64, error) {
	m := rec.RecordMeta()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	return c.save(ctx, rec)
}

func (c Collection[T, PT]) save(ctx context.Context, rec PT) (int64, error) {
	if !c.inTx {
		c.s.writeMu.Lock()
		defer c.s.writeMu.Unlock()
	}

	m := rec.RecordMeta()
	payload, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s record: %w", c.tbl, err)
	}
	var deletedAt sql.NullString
	if m.DeletedAt != nil {
		deletedAt = sql.NullString{String: encodeTime(*m.DeletedAt), Valid: true}
	}

	if m.LocalID == 0 {
		res, err := c.q.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (business_id, remote_id, legacy_id, synced, status, scope, created_at, updated_at, deleted_at, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.tbl),
			m.BusinessID, m.RemoteID, m.LegacyID, m.Synced, string(m.Status), rec.Scope(),
			encodeTime(m.CreatedAt), encodeTime(m.UpdatedAt), deletedAt, string(payload))
		if err != nil {
			return 0, fmt.Errorf("failed to insert into %s: %w", c.tbl, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read inserted id for %s: %w", c.tbl, err)
		}
		m.LocalID = id
		return id, nil
	}

	_, err = c.q.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET business_id = ?, remote_id = ?, legacy_id = ?, synced = ?, status = ?, scope = ?,
			created_at = ?, updated_at = ?, deleted_at = ?, payload = ?
		WHERE local_id = ?
	`, c.tbl),
		m.BusinessID, m.RemoteID, m.LegacyID, m.Synced, string(m.Status), rec.Scope(),
		encodeTime(m.CreatedAt), encodeTime(m.UpdatedAt), deletedAt, string(payload), m.LocalID)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", c.tbl, err)
	}
	return m.LocalID, nil
}

const selectColumns = `local_id, business_id, remote_id, legacy_id, synced, status, created_at, updated_at, deleted_at, payload`

type rowScanner interface {
	Scan(dest ...any) error
}

func (c Collection[T, PT]) scanRecord(row rowScanner) (PT, error) {
	var (
		localID              int64
		businessID           string
		remoteID, legacyID   string
		synced               bool
		status               string
		createdAt, updatedAt string
		deletedAt            sql.NullString
		payload              string
	)
	var zero PT
	if err := row.Scan(&localID, &businessID, &remoteID, &legacyID, &synced, &status,
		&createdAt, &updatedAt, &deletedAt, &payload); err != nil {
		return zero, err
	}

	var v T
	rec := PT(&v)
	if err := json.Unmarshal([]byte(payload), rec); err != nil {
		return zero, fmt.Errorf("failed to unmarshal %s record %d: %w", c.tbl, localID, err)
	}

	// Columns are authoritative for the bookkeeping fields.
	m := rec.RecordMeta()
	m.LocalID = localID
	m.BusinessID = businessID
	m.RemoteID = remoteID
	m.LegacyID = legacyID
	m.Synced = synced
	m.Status = Status(status)
	var err error
	if m.CreatedAt, err = decodeTime(createdAt); err != nil {
		return zero, err
	}
	if m.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return zero, err
	}
	m.DeletedAt = nil
	if deletedAt.Valid {
		t, err := decodeTime(deletedAt.String)
		if err != nil {
			return zero, err
		}
		m.DeletedAt = &t
	}
	return rec, nil
}

func (c Collection[T, PT]) queryOne(ctx context.Context, where string, args ...any) (PT, bool, error) {
	row := c.q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s LIMIT 1`, selectColumns, c.tbl, where), args...)
	rec, err := c.scanRecord(row)
	if err == sql.ErrNoRows {
		var zero PT
		return zero, false, nil
	}
	if err != nil {
		var zero PT
		return zero, false, fmt.Errorf("failed to query %s: %w", c.tbl, err)
	}
	return rec, true, nil
}

func (c Collection[T, PT]) queryAll(ctx context.Context, where string, args ...any) ([]PT, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s`, selectColumns, c.tbl)
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY local_id"
	rows, err := c.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.tbl, err)
	}
	defer rows.Close()

	var out []PT
	for rows.Next() {
		rec, err := c.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", c.tbl, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", c.tbl, err)
	}
	return out, nil
}

// Get fetches a record by its store-local id.
func (c Collection[T, PT]) Get(ctx context.Context, localID int64) (PT, bool, error) {
	return c.queryOne(ctx, "local_id = ?", localID)
}

// GetAll returns every record in the collection, soft-deleted ones included.
func (c Collection[T, PT]) GetAll(ctx context.Context) ([]PT, error) {
	return c.queryAll(ctx, "")
}

// Active returns every record that has not been soft-deleted.
func (c Collection[T, PT]) Active(ctx context.Context) ([]PT, error) {
	return c.queryAll(ctx, "status != ?", string(StatusDeleted))
}

// ByScope returns all records indexed under the given scope value.
func (c Collection[T, PT]) ByScope(ctx context.Context, scope string) ([]PT, error) {
	return c.queryAll(ctx, "scope = ?", scope)
}

// ActiveByScope returns non-deleted records under the given scope value.
func (c Collection[T, PT]) ActiveByScope(ctx context.Context, scope string) ([]PT, error) {
	return c.queryAll(ctx, "scope = ? AND status != ?", scope, string(StatusDeleted))
}

// ByBusinessID fetches the record with the given business identifier.
func (c Collection[T, PT]) ByBusinessID(ctx context.Context, id string) (PT, bool, error) {
	return c.queryOne(ctx, "business_id = ?", id)
}

// ByRemoteID fetches the record that recorded the given remote primary id
// during a prior sync.
func (c Collection[T, PT]) ByRemoteID(ctx context.Context, id string) (PT, bool, error) {
	if id == "" {
		var zero PT
		return zero, false, nil
	}
	return c.queryOne(ctx, "remote_id = ?", id)
}

// ByLegacyID fetches the record carrying the given legacy secondary key.
func (c Collection[T, PT]) ByLegacyID(ctx context.Context, id string) (PT, bool, error) {
	if id == "" {
		var zero PT
		return zero, false, nil
	}
	return c.queryOne(ctx, "legacy_id = ?", id)
}

// Unsynced returns records with pending local changes in insertion order.
func (c Collection[T, PT]) Unsynced(ctx context.Context) ([]PT, error) {
	return c.queryAll(ctx, "synced = 0")
}

// MarkSynced flips a record to synced and records the remote primary id,
// but only if the record's updated_at still equals guard. A concurrent local
// edit between push and confirmation leaves the record pending, so the edit
// is pushed on the next cycle instead of being silently dropped.
func (c Collection[T, PT]) MarkSynced(ctx context.Context, localID int64, remoteID string, guard time.Time) (bool, error) {
	if !c.inTx {
		c.s.writeMu.Lock()
		defer c.s.writeMu.Unlock()
	}
	res, err := c.q.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET synced = 1, remote_id = ? WHERE local_id = ? AND updated_at = ?
	`, c.tbl), remoteID, localID, encodeTime(guard))
	if err != nil {
		return false, fmt.Errorf("failed to mark %s record %d synced: %w", c.tbl, localID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for %s: %w", c.tbl, err)
	}
	return n == 1, nil
}

// SoftDelete marks the record deleted without removing it, preserving it for
// audit and consistency accounting.
func (c Collection[T, PT]) SoftDelete(ctx context.Context, rec PT) error {
	m := rec.RecordMeta()
	now := time.Now().UTC()
	m.Status = StatusDeleted
	m.DeletedAt = &now
	_, err := c.Put(ctx, rec)
	return err
}

// Counts returns the total number of records and how many are synced.
func (c Collection[T, PT]) Counts(ctx context.Context) (total, synced int, err error) {
	row := c.q.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*), COALESCE(SUM(synced), 0) FROM %s`, c.tbl))
	if err := row.Scan(&total, &synced); err != nil {
		return 0, 0, fmt.Errorf("failed to count %s: %w", c.tbl, err)
	}
	return total, synced, nil
}
