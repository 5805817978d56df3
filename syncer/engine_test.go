// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/beminfo2012/sigerd-mobile-sub001/store"
)

type fakeRemote struct {
	upsert func(ctx context.Context, entity string, env Envelope) (Envelope, error)
	list   func(ctx context.Context, entity string, since time.Time) ([]Envelope, error)
	get    func(ctx context.Context, entity string, businessID string) (Envelope, bool, error)
}

func (f *fakeRemote) Upsert(ctx context.Context, entity string, env Envelope) (Envelope, error) {
	if f.upsert == nil {
		env.RemoteID = "r-" + env.BusinessID
		return env, nil
	}
	return f.upsert(ctx, entity, env)
}

func (f *fakeRemote) List(ctx context.Context, entity string, since time.Time) ([]Envelope, error) {
	if f.list == nil {
		return nil, nil
	}
	return f.list(ctx, entity, since)
}

func (f *fakeRemote) Get(ctx context.Context, entity string, businessID string) (Envelope, bool, error) {
	if f.get == nil {
		return Envelope{}, false, nil
	}
	return f.get(ctx, entity, businessID)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func shelterEnvelope(t *testing.T, sh *store.Shelter, remoteID string) Envelope {
	t.Helper()
	payload, err := json.Marshal(sh)
	require.NoError(t, err)
	return Envelope{
		RemoteID:   remoteID,
		BusinessID: sh.BusinessID,
		LegacyID:   sh.LegacyID,
		UpdatedAt:  sh.UpdatedAt,
		Payload:    payload,
	}
}

func TestPushMarksRecordsSynced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shelters := store.Shelters(s)

	sh := store.NewShelter("Ginásio Central", 200)
	_, err := shelters.Put(ctx, sh)
	require.NoError(t, err)

	engine, err := NewEngine(&fakeRemote{}, []EntitySync{
		Entity("shelters", shelters),
	}, nil, nil, nil)
	require.NoError(t, err)

	pushed, err := engine.PushPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pushed)

	got, _, err := shelters.Get(ctx, sh.LocalID)
	require.NoError(t, err)
	require.True(t, got.Synced)
	require.Equal(t, "r-"+sh.BusinessID, got.RemoteID)
}

func TestPushIsPerRecordBestEffort(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shelters := store.Shelters(s)

	a := store.NewShelter("Abrigo A", 10)
	b := store.NewShelter("Abrigo B", 20)
	for _, sh := range []*store.Shelter{a, b} {
		_, err := shelters.Put(ctx, sh)
		require.NoError(t, err)
	}

	remote := &fakeRemote{
		upsert: func(_ context.Context, _ string, env Envelope) (Envelope, error) {
			if env.BusinessID == a.BusinessID {
				return Envelope{}, fmt.Errorf("remote unreachable")
			}
			env.RemoteID = "r-" + env.BusinessID
			return env, nil
		},
	}
	engine, err := NewEngine(remote, []EntitySync{Entity("shelters", shelters)}, nil, nil, nil)
	require.NoError(t, err)

	pushed, err := engine.PushPending(ctx)
	require.NoError(t, err) // transport failures are not hard failures
	require.Equal(t, 1, pushed)

	gotA, _, err := shelters.Get(ctx, a.LocalID)
	require.NoError(t, err)
	require.False(t, gotA.Synced)

	gotB, _, err := shelters.Get(ctx, b.LocalID)
	require.NoError(t, err)
	require.True(t, gotB.Synced)
}

func TestPushRespectsOfflineGate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shelters := store.Shelters(s)

	_, err := shelters.Put(ctx, store.NewShelter("Abrigo Offline", 5))
	require.NoError(t, err)

	calls := 0
	remote := &fakeRemote{
		upsert: func(_ context.Context, _ string, env Envelope) (Envelope, error) {
			calls++
			return env, nil
		},
	}
	offline := func() bool { return false }
	engine, err := NewEngine(remote, []EntitySync{Entity("shelters", shelters)}, offline, nil, nil)
	require.NoError(t, err)

	pushed, err := engine.PushPending(ctx)
	require.NoError(t, err)
	require.Zero(t, pushed)
	require.Zero(t, calls)
}

func TestPullSkipsPendingLocalEdit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shelters := store.Shelters(s)

	local := store.NewShelter("Nome Local", 10)
	_, err := shelters.Put(ctx, local) // synced=false
	require.NoError(t, err)

	remoteCopy := *local
	remoteCopy.Name = "Nome Remoto"
	remoteCopy.Capacity = 99
	env := shelterEnvelope(t, &remoteCopy, "r-1")

	remote := &fakeRemote{
		list: func(context.Context, string, time.Time) ([]Envelope, error) {
			return []Envelope{env}, nil
		},
	}
	engine, err := NewEngine(remote, []EntitySync{Entity("shelters", shelters)}, nil, nil, nil)
	require.NoError(t, err)

	applied, err := engine.PullAndMerge(ctx, "shelters")
	require.NoError(t, err)
	require.Zero(t, applied)

	got, _, err := shelters.Get(ctx, local.LocalID)
	require.NoError(t, err)
	require.Equal(t, "Nome Local", got.Name)
	require.Equal(t, 10, got.Capacity)
	require.False(t, got.Synced)
}

func TestPullAppliesRemoteToSyncedRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shelters := store.Shelters(s)

	local := store.NewShelter("Nome Antigo", 10)
	_, err := shelters.Put(ctx, local)
	require.NoError(t, err)
	ok, err := shelters.MarkSynced(ctx, local.LocalID, "r-1", local.UpdatedAt)
	require.NoError(t, err)
	require.True(t, ok)

	remoteCopy := *local
	remoteCopy.Name = "Nome Novo"
	remoteCopy.Capacity = 42
	remoteCopy.UpdatedAt = local.UpdatedAt.Add(time.Minute)
	env := shelterEnvelope(t, &remoteCopy, "r-1")

	remote := &fakeRemote{
		list: func(context.Context, string, time.Time) ([]Envelope, error) {
			return []Envelope{env}, nil
		},
	}
	engine, err := NewEngine(remote, []EntitySync{Entity("shelters", shelters)}, nil, nil, nil)
	require.NoError(t, err)

	applied, err := engine.PullAndMerge(ctx, "shelters")
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	got, _, err := shelters.Get(ctx, local.LocalID)
	require.NoError(t, err)
	require.Equal(t, "Nome Novo", got.Name)
	require.Equal(t, 42, got.Capacity)
	require.True(t, got.Synced)

	// No duplicate row was created.
	all, err := shelters.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestPullCreatesNewLocalRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inv := store.Inventory(s)

	item := store.NewInventoryItem(store.CentralLocation, "Água mineral", "L", decimal.NewFromInt(50))
	payload, err := json.Marshal(item)
	require.NoError(t, err)
	env := Envelope{RemoteID: "r-inv-1", BusinessID: item.BusinessID, Payload: payload}

	remote := &fakeRemote{
		list: func(context.Context, string, time.Time) ([]Envelope, error) {
			return []Envelope{env}, nil
		},
	}
	engine, err := NewEngine(remote, []EntitySync{Entity("inventory", inv)}, nil, nil, nil)
	require.NoError(t, err)

	applied, err := engine.PullAndMerge(ctx, "inventory")
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	got, ok, err := inv.ByBusinessID(ctx, item.BusinessID)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Synced)
	require.Equal(t, "r-inv-1", got.RemoteID)
	require.True(t, got.Quantity.Equal(decimal.NewFromInt(50)))
}

func TestPullIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shelters := store.Shelters(s)

	sh := store.NewShelter("Abrigo Repetido", 10)
	env := shelterEnvelope(t, sh, "r-1")
	remote := &fakeRemote{
		list: func(context.Context, string, time.Time) ([]Envelope, error) {
			return []Envelope{env}, nil
		},
	}
	engine, err := NewEngine(remote, []EntitySync{Entity("shelters", shelters)}, nil, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := engine.PullAndMerge(ctx, "shelters")
		require.NoError(t, err)
	}

	all, err := shelters.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestResolveMatchesByRemoteIDWhenBusinessIDMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shelters := store.Shelters(s)

	// Legacy record created before business ids existed for this entity.
	sh := store.NewShelter("Abrigo Legado", 15)
	sh.BusinessID = store.NewBusinessID("ABR")
	_, err := shelters.Put(ctx, sh)
	require.NoError(t, err)
	ok, err := shelters.MarkSynced(ctx, sh.LocalID, "r-legacy", sh.UpdatedAt)
	require.NoError(t, err)
	require.True(t, ok)

	// The remote copy carries its own business id, unknown locally.
	remoteCopy := *sh
	remoteCopy.BusinessID = "ABR-other"
	remoteCopy.Name = "Abrigo Legado Atualizado"
	env := shelterEnvelope(t, &remoteCopy, "r-legacy")

	ent := Entity("shelters", shelters)
	res, err := ent.Resolve(ctx, env)
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, sh.LocalID, res.LocalID)
}

func TestResolveMatchesByLegacyKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shelters := store.Shelters(s)

	sh := store.NewShelter("Abrigo Migrado", 8)
	sh.LegacyID = "S2ID-1234"
	_, err := shelters.Put(ctx, sh)
	require.NoError(t, err)

	env := Envelope{BusinessID: "ABR-unknown", LegacyID: "S2ID-1234"}
	ent := Entity("shelters", shelters)
	res, err := ent.Resolve(ctx, env)
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, sh.LocalID, res.LocalID)

	// No candidate key matches: treat as new.
	res, err = ent.Resolve(ctx, Envelope{BusinessID: "ABR-nope", RemoteID: "r-nope"})
	require.NoError(t, err)
	require.False(t, res.Found)
}

func TestLocalWinsWhilePendingPolicy(t *testing.T) {
	pending := store.Meta{Synced: false}
	confirmed := store.Meta{Synced: true}
	require.Equal(t, KeepLocal, LocalWinsWhilePending(pending, Envelope{}))
	require.Equal(t, TakeRemote, LocalWinsWhilePending(confirmed, Envelope{}))
}

func TestProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shelters := store.Shelters(s)

	engine, err := NewEngine(&fakeRemote{}, []EntitySync{Entity("shelters", shelters)}, nil, nil, nil)
	require.NoError(t, err)

	p, err := engine.Progress(ctx)
	require.NoError(t, err)
	require.Equal(t, 100, p) // empty store counts as fully synced

	a := store.NewShelter("A", 1)
	b := store.NewShelter("B", 2)
	for _, sh := range []*store.Shelter{a, b} {
		_, err := shelters.Put(ctx, sh)
		require.NoError(t, err)
	}
	ok, err := shelters.MarkSynced(ctx, a.LocalID, "r-a", a.UpdatedAt)
	require.NoError(t, err)
	require.True(t, ok)

	p, err = engine.Progress(ctx)
	require.NoError(t, err)
	require.Equal(t, 50, p)
}
