// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beminfo2012/sigerd-mobile-sub001/syncer"
)

// PostgresRemote stores envelopes directly in Postgres, one table per
// registered entity. It serves deployments where the app runs next to the
// server database and no sync API sits in between.
type PostgresRemote struct {
	pool     *pgxpool.Pool
	entities map[string]string // entity name -> table name
	logger   *slog.Logger
}

// NewPostgresRemote connects to dsn and prepares tables for the given
// entities. Entity names double as table names prefixed with "sync_".
func NewPostgresRemote(ctx context.Context, dsn string, entities []string, logger *slog.Logger) (*PostgresRemote, error) {
	if len(entities) == 0 {
		return nil, errors.New("at least one entity is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	r := &PostgresRemote{
		pool:     pool,
		entities: make(map[string]string, len(entities)),
		logger:   logger,
	}
	for _, e := range entities {
		r.entities[e] = "sync_" + e
	}
	if err := r.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the connection pool.
func (r *PostgresRemote) Close() { r.pool.Close() }

func (r *PostgresRemote) initSchema(ctx context.Context) error {
	for entity, tbl := range r.entities {
		_, err := r.pool.Exec(ctx, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				business_id TEXT NOT NULL UNIQUE,
				legacy_id   TEXT NOT NULL DEFAULT '',
				updated_at  TIMESTAMPTZ NOT NULL,
				payload     JSONB NOT NULL
			)`, tbl))
		if err != nil {
			return fmt.Errorf("create table for %s: %w", entity, err)
		}
		_, err = r.pool.Exec(ctx, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_updated_at ON %s(updated_at)`, tbl, tbl))
		if err != nil {
			return fmt.Errorf("index table for %s: %w", entity, err)
		}
	}
	return nil
}

func (r *PostgresRemote) table(entity string) (string, error) {
	tbl, ok := r.entities[entity]
	if !ok {
		return "", fmt.Errorf("unregistered entity %q", entity)
	}
	return tbl, nil
}

func (r *PostgresRemote) Upsert(ctx context.Context, entity string, env syncer.Envelope) (syncer.Envelope, error) {
	tbl, err := r.table(entity)
	if err != nil {
		return syncer.Envelope{}, err
	}
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (business_id, legacy_id, updated_at, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id) DO UPDATE
		SET legacy_id = EXCLUDED.legacy_id,
		    updated_at = EXCLUDED.updated_at,
		    payload = EXCLUDED.payload
		RETURNING id`, tbl),
		env.BusinessID, env.LegacyID, env.UpdatedAt.UTC(), []byte(env.Payload))

	var id int64
	if err := row.Scan(&id); err != nil {
		return syncer.Envelope{}, fmt.Errorf("upsert %s %s: %w", entity, env.BusinessID, err)
	}
	env.RemoteID = fmt.Sprintf("%d", id)
	return env, nil
}

func (r *PostgresRemote) List(ctx context.Context, entity string, since time.Time) ([]syncer.Envelope, error) {
	tbl, err := r.table(entity)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, business_id, legacy_id, updated_at, payload
		FROM %s WHERE updated_at > $1 ORDER BY id`, tbl), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", entity, err)
	}
	defer rows.Close()

	var out []syncer.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func (r *PostgresRemote) Get(ctx context.Context, entity string, businessID string) (syncer.Envelope, bool, error) {
	tbl, err := r.table(entity)
	if err != nil {
		return syncer.Envelope{}, false, err
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, business_id, legacy_id, updated_at, payload
		FROM %s WHERE business_id = $1`, tbl), businessID)
	if err != nil {
		return syncer.Envelope{}, false, fmt.Errorf("get %s %s: %w", entity, businessID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return syncer.Envelope{}, false, rows.Err()
	}
	env, err := scanEnvelope(rows)
	if err != nil {
		return syncer.Envelope{}, false, err
	}
	return env, true, nil
}

func scanEnvelope(rows pgx.Rows) (syncer.Envelope, error) {
	var (
		id        int64
		env       syncer.Envelope
		updatedAt time.Time
		payload   []byte
	)
	if err := rows.Scan(&id, &env.BusinessID, &env.LegacyID, &updatedAt, &payload); err != nil {
		return syncer.Envelope{}, fmt.Errorf("scan envelope: %w", err)
	}
	env.RemoteID = fmt.Sprintf("%d", id)
	env.UpdatedAt = updatedAt.UTC()
	env.Payload = payload
	return env, nil
}
