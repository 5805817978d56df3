// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

// Package syncer reconciles the local store with a remote store. Push sends
// unsynced records best-effort per record; pull merges remote records back
// under a local-wins-while-pending policy so an in-flight local edit is
// never silently overwritten.
package syncer

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope is the transport-neutral shape of one record crossing the wire.
// Payload carries the full record JSON; the identity fields are lifted out
// so resolution does not need to parse it.
type Envelope struct {
	RemoteID   string          `json:"id,omitempty"`
	BusinessID string          `json:"business_id"`
	LegacyID   string          `json:"legacy_id,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Remote is the external store the engine reconciles against. Records are
// upserted by business id; any transport satisfying that contract conforms.
type Remote interface {
	// Upsert creates or replaces the remote record keyed by env.BusinessID
	// and returns the stored envelope, including the remote primary id.
	Upsert(ctx context.Context, entity string, env Envelope) (Envelope, error)

	// List returns remote records for the entity, optionally restricted to
	// those changed after since (zero means everything).
	List(ctx context.Context, entity string, since time.Time) ([]Envelope, error)

	// Get fetches a single remote record by business id.
	Get(ctx context.Context, entity string, businessID string) (Envelope, bool, error)
}
