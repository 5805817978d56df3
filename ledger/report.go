// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/beminfo2012/sigerd-mobile-sub001/store"
)

// divergenceTolerance absorbs decimal rounding in the stock equation.
var divergenceTolerance = decimal.NewFromFloat(0.01)

// ConsistencyReport cross-checks the ledger at one location: total donated
// minus total distributed should equal the stock currently on hand.
// IncompleteDonations lists malformed donation records for operator review;
// they do not affect the consistency verdict.
type ConsistencyReport struct {
	Location            string          `json:"location"`
	TotalDonated        decimal.Decimal `json:"total_donated"`
	TotalDistributed    decimal.Decimal `json:"total_distributed"`
	ExpectedStock       decimal.Decimal `json:"expected_stock"`
	CurrentStock        decimal.Decimal `json:"current_stock"`
	Divergence          decimal.Decimal `json:"divergence"`
	IsConsistent        bool            `json:"is_consistent"`
	DonationCount       int             `json:"donation_count"`
	DistributionCount   int             `json:"distribution_count"`
	InventoryItemCount  int             `json:"inventory_item_count"`
	IncompleteDonations []string        `json:"incomplete_donations,omitempty"`
}

// CheckConsistency builds the consistency report for one location, summing
// every active donation, distribution and item there. Transfers count as
// outflow at the source location; the destination sees them only through
// its item quantities, so per-location reports stay independent.
func (s *Service) CheckConsistency(ctx context.Context, location string) (*ConsistencyReport, error) {
	if location == "" {
		location = store.CentralLocation
	}
	rep := &ConsistencyReport{Location: location}

	dons, err := store.Donations(s.st).ActiveByScope(ctx, location)
	if err != nil {
		return nil, err
	}
	for _, d := range dons {
		rep.TotalDonated = rep.TotalDonated.Add(d.Quantity)
		rep.DonationCount++
	}

	dists, err := store.Distributions(s.st).ActiveByScope(ctx, location)
	if err != nil {
		return nil, err
	}
	for _, d := range dists {
		rep.TotalDistributed = rep.TotalDistributed.Add(d.Quantity)
		rep.DistributionCount++
	}

	items, err := store.Inventory(s.st).ActiveByScope(ctx, location)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		rep.CurrentStock = rep.CurrentStock.Add(it.Quantity)
		rep.InventoryItemCount++
	}

	// Malformed donations anywhere in the ledger are listed for operator
	// review; they are reported, never corrected, and do not flip the
	// consistency verdict.
	all, err := store.Donations(s.st).GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		if d.Deleted() {
			continue
		}
		if strings.TrimSpace(d.ItemDescription) == "" || d.Quantity.Sign() <= 0 {
			rep.IncompleteDonations = append(rep.IncompleteDonations, d.BusinessID)
		}
	}

	rep.ExpectedStock = rep.TotalDonated.Sub(rep.TotalDistributed)
	rep.Divergence = rep.ExpectedStock.Sub(rep.CurrentStock).Abs()
	rep.IsConsistent = rep.Divergence.LessThan(divergenceTolerance)
	return rep, nil
}

// Movement directions in the item history.
const (
	MovementIn  = "entrada"
	MovementOut = "saida"
)

// Movement is one row of an item's stock history.
type Movement struct {
	Type        string          `json:"type"`
	Date        time.Time       `json:"date"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	Description string          `json:"description"`
}

// ItemMovementHistory returns every inflow and outflow for the named item at
// the location, newest first.
func (s *Service) ItemMovementHistory(ctx context.Context, itemName, location string) ([]Movement, error) {
	if location == "" {
		location = store.CentralLocation
	}
	var moves []Movement

	dons, err := store.Donations(s.st).ActiveByScope(ctx, location)
	if err != nil {
		return nil, err
	}
	for _, d := range dons {
		if !strings.EqualFold(d.ItemDescription, itemName) {
			continue
		}
		donor := d.DonorName
		if donor == "" {
			donor = "anonymous"
		}
		moves = append(moves, Movement{
			Type:        MovementIn,
			Date:        d.DonationDate,
			Quantity:    d.Quantity,
			Unit:        d.Unit,
			Description: fmt.Sprintf("donation from %s", donor),
		})
	}

	dists, err := store.Distributions(s.st).ActiveByScope(ctx, location)
	if err != nil {
		return nil, err
	}
	for _, d := range dists {
		if !strings.EqualFold(d.ItemName, itemName) {
			continue
		}
		to := d.RecipientName
		if d.Kind == store.KindTransfer && d.DestinationShelterID != "" {
			to = d.DestinationShelterID
		}
		if to == "" {
			to = location
		}
		moves = append(moves, Movement{
			Type:        MovementOut,
			Date:        d.DistributionDate,
			Quantity:    d.Quantity,
			Unit:        d.Unit,
			Description: fmt.Sprintf("distribution to %s", to),
		})
	}

	sort.SliceStable(moves, func(i, j int) bool {
		return moves[i].Date.After(moves[j].Date)
	})
	return moves, nil
}

// AuditLog returns audit entries newest first, optionally filtered by entity
// type. A non-positive limit defaults to 50.
func (s *Service) AuditLog(ctx context.Context, entityType string, limit int) ([]*store.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := store.AuditLog(s.st).GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*store.AuditLogEntry
	for _, e := range entries {
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
