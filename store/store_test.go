// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutAssignsLocalIDAndMarksUnsynced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shelters := Shelters(s)

	sh := NewShelter("Escola Municipal", 120)
	sh.Synced = true // a domain put must reset this
	id, err := shelters.Put(ctx, sh)
	require.NoError(t, err)
	require.NotZero(t, id)
	require.Equal(t, id, sh.LocalID)

	got, ok, err := shelters.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Escola Municipal", got.Name)
	require.False(t, got.Synced)
	require.Equal(t, StatusActive, got.Status)
	require.Equal(t, sh.BusinessID, got.BusinessID)
}

func TestPutUpdateRefreshesUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shelters := Shelters(s)

	sh := NewShelter("Abrigo Norte", 50)
	_, err := shelters.Put(ctx, sh)
	require.NoError(t, err)
	first := sh.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	sh.Capacity = 75
	_, err = shelters.Put(ctx, sh)
	require.NoError(t, err)
	require.True(t, sh.UpdatedAt.After(first))

	got, _, err := shelters.Get(ctx, sh.LocalID)
	require.NoError(t, err)
	require.Equal(t, 75, got.Capacity)
}

func TestBusinessIDAndSyncedIndexes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	donations := Donations(s)

	d1 := NewDonation(CentralLocation, "Água mineral", decimal.NewFromInt(50), "L")
	d2 := NewDonation("ABR-1", "Cobertores", decimal.NewFromInt(10), "un")
	for _, d := range []*Donation{d1, d2} {
		_, err := donations.Put(ctx, d)
		require.NoError(t, err)
	}

	got, ok, err := donations.ByBusinessID(ctx, d2.BusinessID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Cobertores", got.ItemDescription)

	pending, err := donations.Unsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	ok, err = donations.MarkSynced(ctx, d1.LocalID, "remote-1", d1.UpdatedAt)
	require.NoError(t, err)
	require.True(t, ok)

	pending, err = donations.Unsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, d2.BusinessID, pending[0].BusinessID)

	synced, ok, err := donations.ByRemoteID(ctx, "remote-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, synced.Synced)
}

func TestMarkSyncedGuardSkipsConcurrentEdit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shelters := Shelters(s)

	sh := NewShelter("Abrigo Sul", 30)
	_, err := shelters.Put(ctx, sh)
	require.NoError(t, err)
	pushedAt := sh.UpdatedAt

	// A local edit lands after the push snapshot was taken.
	time.Sleep(5 * time.Millisecond)
	sh.Capacity = 31
	_, err = shelters.Put(ctx, sh)
	require.NoError(t, err)

	ok, err := shelters.MarkSynced(ctx, sh.LocalID, "remote-9", pushedAt)
	require.NoError(t, err)
	require.False(t, ok)

	got, _, err := shelters.Get(ctx, sh.LocalID)
	require.NoError(t, err)
	require.False(t, got.Synced)
}

func TestScopeQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inv := Inventory(s)

	a := NewInventoryItem(CentralLocation, "Água mineral", "L", decimal.NewFromInt(50))
	b := NewInventoryItem("ABR-7", "Água mineral", "L", decimal.NewFromInt(10))
	c := NewInventoryItem(CentralLocation, "Arroz", "kg", decimal.NewFromInt(5))
	for _, it := range []*InventoryItem{a, b, c} {
		_, err := inv.Put(ctx, it)
		require.NoError(t, err)
	}
	require.NoError(t, inv.SoftDelete(ctx, c))

	central, err := inv.ActiveByScope(ctx, CentralLocation)
	require.NoError(t, err)
	require.Len(t, central, 1)
	require.Equal(t, "Água mineral", central[0].ItemName)

	all, err := inv.ByScope(ctx, CentralLocation)
	require.NoError(t, err)
	require.Len(t, all, 2)

	deleted, _, err := inv.ByBusinessID(ctx, c.BusinessID)
	require.NoError(t, err)
	require.Equal(t, StatusDeleted, deleted.Status)
	require.NotNil(t, deleted.DeletedAt)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *Tx) error {
		inv := Inventory(s).WithTx(tx)
		if _, err := inv.Put(ctx, NewInventoryItem(CentralLocation, "Sabão", "un", decimal.NewFromInt(3))); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	items, err := Inventory(s).GetAll(ctx)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestDecimalRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inv := Inventory(s)

	it := NewInventoryItem(CentralLocation, "Leite", "L", decimal.RequireFromString("12.75"))
	_, err := inv.Put(ctx, it)
	require.NoError(t, err)

	got, _, err := inv.Get(ctx, it.LocalID)
	require.NoError(t, err)
	require.True(t, got.Quantity.Equal(decimal.RequireFromString("12.75")))
	require.True(t, got.MinQuantity.Equal(DefaultMinQuantity))
}

func TestNewBusinessIDFormat(t *testing.T) {
	id := NewBusinessID("DOA")
	require.Regexp(t, `^DOA-[0-9a-z]+-[0-9a-f]{8}$`, id)
	require.NotEqual(t, id, NewBusinessID("DOA"))
}

func TestConcurrentReadersShareMemoryDatabase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shelters := Shelters(s)

	_, err := shelters.Put(ctx, NewShelter("Ginásio", 100))
	require.NoError(t, err)

	// Readers and writers racing across pool connections must all see the
	// same in-memory database and its schema.
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := shelters.GetAll(ctx); err != nil {
				errs <- err
			}
			if _, err := shelters.Put(ctx, NewShelter(fmt.Sprintf("Abrigo %d", n), 10)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := shelters.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 11)
}
