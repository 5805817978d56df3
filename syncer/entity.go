// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beminfo2012/sigerd-mobile-sub001/store"
)

// PendingRecord is one unsynced local record queued for push.
type PendingRecord struct {
	LocalID   int64
	UpdatedAt time.Time
	Env       Envelope
}

// Resolution is the outcome of matching a remote envelope against the local
// collection. Found=false means the remote record is new to this device.
type Resolution struct {
	LocalID int64
	Meta    store.Meta
	Found   bool
}

// EntitySync adapts one local collection to the engine. Implementations are
// built with Entity; the interface exists so the engine can hold a mixed set
// of typed collections.
type EntitySync interface {
	Name() string
	Pending(ctx context.Context) ([]PendingRecord, error)
	MarkSynced(ctx context.Context, localID int64, remoteID string, guard time.Time) (bool, error)
	// Resolve finds the local record matching a remote envelope through the
	// candidate-key chain: business id, then remote primary id, then legacy
	// secondary key. First match wins; no match means the record is new.
	Resolve(ctx context.Context, env Envelope) (Resolution, error)
	ApplyRemote(ctx context.Context, localID int64, env Envelope) error
	Counts(ctx context.Context) (total, synced int, err error)
}

// Entity binds a typed collection to an entity name for syncing.
func Entity[T any, PT interface {
	store.Record
	*T
}](name string, col store.Collection[T, PT]) EntitySync {
	return &entitySync[T, PT]{name: name, col: col}
}

type entitySync[T any, PT interface {
	store.Record
	*T
}] struct {
	name string
	col  store.Collection[T, PT]
}

func (e *entitySync[T, PT]) Name() string { return e.name }

func (e *entitySync[T, PT]) Pending(ctx context.Context) ([]PendingRecord, error) {
	recs, err := e.col.Unsynced(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PendingRecord, 0, len(recs))
	for _, rec := range recs {
		m := rec.RecordMeta()
		payload, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s %s: %w", e.name, m.BusinessID, err)
		}
		out = append(out, PendingRecord{
			LocalID:   m.LocalID,
			UpdatedAt: m.UpdatedAt,
			Env: Envelope{
				RemoteID:   m.RemoteID,
				BusinessID: m.BusinessID,
				LegacyID:   m.LegacyID,
				UpdatedAt:  m.UpdatedAt,
				Payload:    payload,
			},
		})
	}
	return out, nil
}

func (e *entitySync[T, PT]) MarkSynced(ctx context.Context, localID int64, remoteID string, guard time.Time) (bool, error) {
	return e.col.MarkSynced(ctx, localID, remoteID, guard)
}

func (e *entitySync[T, PT]) Resolve(ctx context.Context, env Envelope) (Resolution, error) {
	if env.BusinessID != "" {
		if rec, ok, err := e.col.ByBusinessID(ctx, env.BusinessID); err != nil {
			return Resolution{}, err
		} else if ok {
			return Resolution{LocalID: rec.RecordMeta().LocalID, Meta: *rec.RecordMeta(), Found: true}, nil
		}
	}
	if rec, ok, err := e.col.ByRemoteID(ctx, env.RemoteID); err != nil {
		return Resolution{}, err
	} else if ok {
		return Resolution{LocalID: rec.RecordMeta().LocalID, Meta: *rec.RecordMeta(), Found: true}, nil
	}
	if rec, ok, err := e.col.ByLegacyID(ctx, env.LegacyID); err != nil {
		return Resolution{}, err
	} else if ok {
		return Resolution{LocalID: rec.RecordMeta().LocalID, Meta: *rec.RecordMeta(), Found: true}, nil
	}
	return Resolution{}, nil
}

func (e *entitySync[T, PT]) ApplyRemote(ctx context.Context, localID int64, env Envelope) error {
	var v T
	rec := PT(&v)
	if err := json.Unmarshal(env.Payload, rec); err != nil {
		return fmt.Errorf("failed to unmarshal remote %s %s: %w", e.name, env.BusinessID, err)
	}
	m := rec.RecordMeta()
	m.LocalID = localID
	if env.BusinessID != "" {
		m.BusinessID = env.BusinessID
	}
	m.RemoteID = env.RemoteID
	if env.LegacyID != "" {
		m.LegacyID = env.LegacyID
	}
	if !env.UpdatedAt.IsZero() {
		m.UpdatedAt = env.UpdatedAt
	}
	m.Synced = true
	_, err := e.col.PutMerged(ctx, rec)
	return err
}

func (e *entitySync[T, PT]) Counts(ctx context.Context) (int, int, error) {
	return e.col.Counts(ctx)
}
