// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/beminfo2012/sigerd-mobile-sub001/store"
)

func nowUTC() time.Time { return time.Now().UTC() }

// DonationInput carries the caller-supplied fields for a donation intake.
// ShelterID empty means the central depot.
type DonationInput struct {
	ShelterID       string
	ItemDescription string
	DonationType    string
	Quantity        decimal.Decimal
	Unit            string
	DonorName       string
}

// AddDonation records a donation and folds it into the location's stock: an
// active item with the same case-insensitive name is incremented, otherwise
// a new item is created with the donated amount. The donation, the item and
// the audit entry commit as one unit.
func (s *Service) AddDonation(ctx context.Context, in DonationInput) (*store.Donation, error) {
	desc := strings.TrimSpace(in.ItemDescription)
	if desc == "" {
		return nil, fmt.Errorf("%w: item description is required", ErrValidation)
	}
	if in.Quantity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	}

	don := store.NewDonation(in.ShelterID, desc, in.Quantity, in.Unit)
	don.DonationType = in.DonationType
	don.DonorName = in.DonorName
	location := don.ShelterID

	err := s.st.WithTx(ctx, func(tx *store.Tx) error {
		donations := store.Donations(s.st).WithTx(tx)
		inventory := store.Inventory(s.st).WithTx(tx)
		audit := store.AuditLog(s.st).WithTx(tx)

		if _, err := donations.Put(ctx, don); err != nil {
			return err
		}

		item, err := findItemByName(ctx, inventory, location, desc)
		if err != nil {
			return err
		}
		if item != nil {
			item.Quantity = item.Quantity.Add(in.Quantity)
			if _, err := inventory.Put(ctx, item); err != nil {
				return err
			}
		} else {
			item = store.NewInventoryItem(location, desc, in.Unit, in.Quantity)
			item.Category = in.DonationType
			if _, err := inventory.Put(ctx, item); err != nil {
				return err
			}
		}

		entry := store.NewAuditLogEntry(store.ActionDonationReceived, "donation", don.BusinessID,
			fmt.Sprintf("%s: %s %s -> %s", desc, in.Quantity, in.Unit, location))
		_, err = audit.Put(ctx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.trigger()
	return don, nil
}

// DistributionInput identifies the stock to draw from either by the item's
// business id or by item name at the location.
type DistributionInput struct {
	ShelterID     string
	InventoryID   string
	ItemName      string
	Quantity      decimal.Decimal
	Unit          string
	RecipientName string
}

// AddDistribution draws the requested quantity from stock and records the
// outflow. Fails with ErrNotFound when no matching active item exists and
// with ErrInsufficientStock when the request exceeds the item's quantity at
// commit time; either way nothing is written.
func (s *Service) AddDistribution(ctx context.Context, in DistributionInput) (*store.Distribution, error) {
	if in.Quantity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	}
	location := in.ShelterID
	if location == "" {
		location = store.CentralLocation
	}

	var dist *store.Distribution
	err := s.st.WithTx(ctx, func(tx *store.Tx) error {
		inventory := store.Inventory(s.st).WithTx(tx)
		distributions := store.Distributions(s.st).WithTx(tx)
		audit := store.AuditLog(s.st).WithTx(tx)

		item, err := resolveItem(ctx, inventory, in.InventoryID, location, in.ItemName)
		if err != nil {
			return err
		}
		if in.Quantity.GreaterThan(item.Quantity) {
			return fmt.Errorf("%w: %s has %s, requested %s",
				ErrInsufficientStock, item.ItemName, item.Quantity, in.Quantity)
		}

		item.Quantity = item.Quantity.Sub(in.Quantity)
		if _, err := inventory.Put(ctx, item); err != nil {
			return err
		}

		dist = store.NewDistribution(location, item.ItemName, in.Quantity, item.Unit)
		dist.InventoryID = item.BusinessID
		dist.RecipientName = in.RecipientName
		if _, err := distributions.Put(ctx, dist); err != nil {
			return err
		}

		recipient := in.RecipientName
		if recipient == "" {
			recipient = location
		}
		entry := store.NewAuditLogEntry(store.ActionDistribution, "distribution", dist.BusinessID,
			fmt.Sprintf("%s: -%s %s -> %s", item.ItemName, in.Quantity, item.Unit, recipient))
		_, err = audit.Put(ctx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.trigger()
	return dist, nil
}

// TransferStock moves quantity of the item (by business id) from one
// location to another. The destination item is found by case-insensitive
// name or created with the transferred amount. Both item updates and the
// transfer movement commit atomically.
func (s *Service) TransferStock(ctx context.Context, itemID, toLocation string, qty decimal.Decimal) (*store.Distribution, error) {
	if qty.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	}
	if toLocation == "" {
		return nil, fmt.Errorf("%w: destination location is required", ErrValidation)
	}

	var movement *store.Distribution
	err := s.st.WithTx(ctx, func(tx *store.Tx) error {
		inventory := store.Inventory(s.st).WithTx(tx)
		distributions := store.Distributions(s.st).WithTx(tx)
		audit := store.AuditLog(s.st).WithTx(tx)

		source, ok, err := inventory.ByBusinessID(ctx, itemID)
		if err != nil {
			return err
		}
		if !ok || source.Deleted() {
			return fmt.Errorf("%w: source item %s", ErrNotFound, itemID)
		}
		if qty.GreaterThan(source.Quantity) {
			return fmt.Errorf("%w: %s has %s at %s, requested %s",
				ErrInsufficientStock, source.ItemName, source.Quantity, source.ShelterID, qty)
		}

		source.Quantity = source.Quantity.Sub(qty)
		if _, err := inventory.Put(ctx, source); err != nil {
			return err
		}

		dest, err := findItemByName(ctx, inventory, toLocation, source.ItemName)
		if err != nil {
			return err
		}
		if dest != nil {
			dest.Quantity = dest.Quantity.Add(qty)
		} else {
			dest = store.NewInventoryItem(toLocation, source.ItemName, source.Unit, qty)
			dest.Category = source.Category
		}
		if _, err := inventory.Put(ctx, dest); err != nil {
			return err
		}

		movement = store.NewTransfer(source.ShelterID, toLocation, source.ItemName, qty, source.Unit)
		movement.InventoryID = source.BusinessID
		if _, err := distributions.Put(ctx, movement); err != nil {
			return err
		}

		entry := store.NewAuditLogEntry(store.ActionStockTransfer, "distribution", movement.BusinessID,
			fmt.Sprintf("%s: %s %s %s -> %s", source.ItemName, qty, source.Unit, source.ShelterID, toLocation))
		_, err = audit.Put(ctx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.trigger()
	return movement, nil
}

// UpdateInventoryItem applies mutate to an item and records an audit entry
// with the quantity delta.
func (s *Service) UpdateInventoryItem(ctx context.Context, itemID string, mutate func(*store.InventoryItem)) (*store.InventoryItem, error) {
	var item *store.InventoryItem
	err := s.st.WithTx(ctx, func(tx *store.Tx) error {
		inventory := store.Inventory(s.st).WithTx(tx)
		audit := store.AuditLog(s.st).WithTx(tx)

		it, ok, err := inventory.ByBusinessID(ctx, itemID)
		if err != nil {
			return err
		}
		if !ok || it.Deleted() {
			return fmt.Errorf("%w: inventory item %s", ErrNotFound, itemID)
		}
		oldQty := it.Quantity
		mutate(it)
		if it.Quantity.Sign() < 0 {
			return fmt.Errorf("%w: quantity cannot be negative", ErrValidation)
		}
		if _, err := inventory.Put(ctx, it); err != nil {
			return err
		}
		item = it

		entry := store.NewAuditLogEntry(store.ActionInventoryEdit, "inventory", it.BusinessID,
			fmt.Sprintf("%s: qty %s -> %s", it.ItemName, oldQty, it.Quantity))
		_, err = audit.Put(ctx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.trigger()
	return item, nil
}

// DeleteInventoryItem soft-deletes a single item.
func (s *Service) DeleteInventoryItem(ctx context.Context, itemID string) error {
	err := s.st.WithTx(ctx, func(tx *store.Tx) error {
		inventory := store.Inventory(s.st).WithTx(tx)
		audit := store.AuditLog(s.st).WithTx(tx)

		it, ok, err := inventory.ByBusinessID(ctx, itemID)
		if err != nil {
			return err
		}
		if !ok || it.Deleted() {
			return fmt.Errorf("%w: inventory item %s", ErrNotFound, itemID)
		}
		if err := inventory.SoftDelete(ctx, it); err != nil {
			return err
		}

		entry := store.NewAuditLogEntry(store.ActionInventoryDelete, "inventory", it.BusinessID,
			fmt.Sprintf("soft-deleted: %s (%s %s)", it.ItemName, it.Quantity, it.Unit))
		_, err = audit.Put(ctx, entry)
		return err
	})
	if err != nil {
		return err
	}
	s.trigger()
	return nil
}

// ClearInventory soft-deletes every active item at the location, or at every
// location when location is empty, and records one summary audit entry.
// Returns the number of items affected.
func (s *Service) ClearInventory(ctx context.Context, location string) (int, error) {
	cleared := 0
	err := s.st.WithTx(ctx, func(tx *store.Tx) error {
		inventory := store.Inventory(s.st).WithTx(tx)
		audit := store.AuditLog(s.st).WithTx(tx)

		var items []*store.InventoryItem
		var err error
		if location == "" {
			items, err = inventory.Active(ctx)
		} else {
			items, err = inventory.ActiveByScope(ctx, location)
		}
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := inventory.SoftDelete(ctx, it); err != nil {
				return err
			}
		}
		cleared = len(items)

		scope := location
		if scope == "" {
			scope = "ALL"
		}
		entry := store.NewAuditLogEntry(store.ActionClearInventory, "inventory", scope,
			fmt.Sprintf("soft-deleted %d items from %s", cleared, scope))
		_, err = audit.Put(ctx, entry)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.trigger()
	return cleared, nil
}

// ClearReports soft-deletes every active donation and distribution and
// records one summary audit entry. Returns the counts affected.
func (s *Service) ClearReports(ctx context.Context) (donations, distributions int, err error) {
	err = s.st.WithTx(ctx, func(tx *store.Tx) error {
		donCol := store.Donations(s.st).WithTx(tx)
		distCol := store.Distributions(s.st).WithTx(tx)
		audit := store.AuditLog(s.st).WithTx(tx)

		dons, err := donCol.Active(ctx)
		if err != nil {
			return err
		}
		for _, d := range dons {
			if err := donCol.SoftDelete(ctx, d); err != nil {
				return err
			}
		}
		donations = len(dons)

		dists, err := distCol.Active(ctx)
		if err != nil {
			return err
		}
		for _, d := range dists {
			if err := distCol.SoftDelete(ctx, d); err != nil {
				return err
			}
		}
		distributions = len(dists)

		entry := store.NewAuditLogEntry(store.ActionClearReports, "reports", "ALL",
			fmt.Sprintf("soft-deleted %d donations and %d distributions", donations, distributions))
		_, err = audit.Put(ctx, entry)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	s.trigger()
	return donations, distributions, nil
}

// Inventory lists the active items at one location; location empty means
// every location.
func (s *Service) Inventory(ctx context.Context, location string) ([]*store.InventoryItem, error) {
	if location == "" {
		return store.Inventory(s.st).Active(ctx)
	}
	return store.Inventory(s.st).ActiveByScope(ctx, location)
}

// GlobalInventory lists the active items across every location.
func (s *Service) GlobalInventory(ctx context.Context) ([]*store.InventoryItem, error) {
	return store.Inventory(s.st).Active(ctx)
}

// Donations lists the active donations at one location; empty means all.
func (s *Service) Donations(ctx context.Context, location string) ([]*store.Donation, error) {
	if location == "" {
		return store.Donations(s.st).Active(ctx)
	}
	return store.Donations(s.st).ActiveByScope(ctx, location)
}

// Distributions lists the active outflows from one location; empty means all.
func (s *Service) Distributions(ctx context.Context, location string) ([]*store.Distribution, error) {
	if location == "" {
		return store.Distributions(s.st).Active(ctx)
	}
	return store.Distributions(s.st).ActiveByScope(ctx, location)
}

// LowStock lists active items at the location whose quantity has fallen
// below their stored threshold. The threshold is whatever was set at
// creation; no fallback is re-applied here.
func (s *Service) LowStock(ctx context.Context, location string) ([]*store.InventoryItem, error) {
	items, err := s.Inventory(ctx, location)
	if err != nil {
		return nil, err
	}
	var out []*store.InventoryItem
	for _, it := range items {
		if it.Quantity.LessThan(it.MinQuantity) {
			out = append(out, it)
		}
	}
	return out, nil
}

// findItemByName returns the active item at the location whose name matches
// case-insensitively, or nil when none exists.
func findItemByName(ctx context.Context, inventory store.Collection[store.InventoryItem, *store.InventoryItem], location, name string) (*store.InventoryItem, error) {
	items, err := inventory.ActiveByScope(ctx, location)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if strings.EqualFold(it.ItemName, name) {
			return it, nil
		}
	}
	return nil, nil
}

// resolveItem locates the distribution target: by business id when given,
// otherwise by name at the location.
func resolveItem(ctx context.Context, inventory store.Collection[store.InventoryItem, *store.InventoryItem], itemID, location, name string) (*store.InventoryItem, error) {
	if itemID != "" {
		it, ok, err := inventory.ByBusinessID(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if ok && !it.Deleted() {
			return it, nil
		}
	}
	if name != "" {
		it, err := findItemByName(ctx, inventory, location, name)
		if err != nil {
			return nil, err
		}
		if it != nil {
			return it, nil
		}
	}
	return nil, fmt.Errorf("%w: no inventory item matches id %q or name %q at %s",
		ErrNotFound, itemID, name, location)
}
