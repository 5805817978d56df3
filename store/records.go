// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

// Package store implements the local offline persistence layer: per-entity
// SQLite collections keyed by a device-assigned local id plus a globally
// unique business id, with indexes on business id, sync state and location.
package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CentralLocation is the sentinel location for stock that is not held by any
// specific shelter.
const CentralLocation = "CENTRAL"

// Status is the lifecycle marker shared by all records. Soft deletion is a
// status transition, never a physical delete.
type Status string

const (
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
	StatusExited  Status = "exited"
	StatusDeleted Status = "deleted"
)

// Meta carries the identity and sync bookkeeping common to every record.
//
// LocalID is owned exclusively by the store and assigned on first insert.
// BusinessID is assigned at creation time and is stable across devices and
// the remote store. Synced is owned by the sync engine: false means the
// record has local changes not yet confirmed remote.
type Meta struct {
	LocalID    int64      `json:"-"`
	BusinessID string     `json:"business_id"`
	RemoteID   string     `json:"remote_id,omitempty"`
	LegacyID   string     `json:"legacy_id,omitempty"`
	Synced     bool       `json:"synced"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// RecordMeta returns the embedded Meta. It exists so generic code can reach
// the bookkeeping fields of any entity.
func (m *Meta) RecordMeta() *Meta { return m }

// Deleted reports whether the record has been soft-deleted.
func (m *Meta) Deleted() bool { return m.Status == StatusDeleted }

// Record is implemented by every entity stored in a Collection.
type Record interface {
	RecordMeta() *Meta
	// Scope returns the secondary index value for the record, typically the
	// business id of the owning shelter or CentralLocation. Empty for
	// unscoped entities.
	Scope() string
}

// Shelter is an emergency shelter location.
type Shelter struct {
	Meta
	Name             string `json:"name"`
	Address          string `json:"address,omitempty"`
	Capacity         int    `json:"capacity"`
	CurrentOccupancy int    `json:"current_occupancy"`
}

func (s *Shelter) Scope() string { return "" }

// Occupant is a person sheltered at a Shelter, referenced by the shelter's
// business id.
type Occupant struct {
	Meta
	ShelterID    string     `json:"shelter_id"`
	FullName     string     `json:"full_name"`
	FamilyGroup  string     `json:"family_group,omitempty"`
	IsFamilyHead bool       `json:"is_family_head"`
	EntryDate    time.Time  `json:"entry_date"`
	ExitDate     *time.Time `json:"exit_date,omitempty"`
}

func (o *Occupant) Scope() string { return o.ShelterID }

// InventoryItem is the stock of one item at one location. A location plus a
// case-insensitive item name resolves to at most one active item.
type InventoryItem struct {
	Meta
	ShelterID   string          `json:"shelter_id"`
	ItemName    string          `json:"item_name"`
	Category    string          `json:"category,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit,omitempty"`
	MinQuantity decimal.Decimal `json:"min_quantity"`
}

func (i *InventoryItem) Scope() string { return i.ShelterID }

// Donation is an immutable stock intake event.
type Donation struct {
	Meta
	ShelterID       string          `json:"shelter_id"`
	ItemDescription string          `json:"item_description"`
	DonationType    string          `json:"donation_type,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit,omitempty"`
	DonorName       string          `json:"donor_name,omitempty"`
	DonationDate    time.Time       `json:"donation_date"`
}

func (d *Donation) Scope() string { return d.ShelterID }

// Distribution kinds.
const (
	KindDistribution = "distribution"
	KindTransfer     = "transfer"
)

// Distribution is a stock outflow event. Transfers between locations are
// recorded as a single distribution-shaped record with Kind set to
// KindTransfer and DestinationShelterID filled in.
type Distribution struct {
	Meta
	ShelterID            string          `json:"shelter_id"`
	InventoryID          string          `json:"inventory_id,omitempty"`
	ItemName             string          `json:"item_name"`
	Quantity             decimal.Decimal `json:"quantity"`
	Unit                 string          `json:"unit,omitempty"`
	RecipientName        string          `json:"recipient_name,omitempty"`
	DestinationShelterID string          `json:"destination_shelter_id,omitempty"`
	Kind                 string          `json:"type"`
	DistributionDate     time.Time       `json:"distribution_date"`
}

func (d *Distribution) Scope() string { return d.ShelterID }

// Audit actions.
const (
	ActionDonationReceived = "DONATION_RECEIVED"
	ActionDistribution     = "DISTRIBUTION"
	ActionStockTransfer    = "STOCK_TRANSFER"
	ActionInventoryEdit    = "INVENTORY_EDIT"
	ActionInventoryDelete  = "INVENTORY_DELETE"
	ActionClearInventory   = "CLEAR_INVENTORY"
	ActionClearReports     = "CLEAR_REPORTS"
)

// AuditLogEntry is append-only. Entries are never updated or deleted and
// survive every bulk clear.
type AuditLogEntry struct {
	Meta
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Details    string    `json:"details"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *AuditLogEntry) Scope() string { return "" }

// NewBusinessID returns a new prefixed business identifier, e.g.
// "ABR-mch1k2x9-4f21". The timestamp fragment keeps ids roughly sortable;
// the uuid fragment makes collisions across devices implausible.
func NewBusinessID(prefix string) string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	frag := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", prefix, ts, frag)
}

// DefaultMinQuantity is the low-stock threshold applied when an inventory
// item is created. It is applied at creation time only; queries trust the
// stored value.
var DefaultMinQuantity = decimal.NewFromInt(5)

// NewShelter returns an active shelter with a fresh business id.
func NewShelter(name string, capacity int) *Shelter {
	return &Shelter{
		Meta:     newMeta("ABR"),
		Name:     name,
		Capacity: capacity,
	}
}

// NewOccupant returns an active occupant of the given shelter with the entry
// date set to now.
func NewOccupant(shelterID, fullName string) *Occupant {
	o := &Occupant{
		Meta:      newMeta("OCP"),
		ShelterID: shelterID,
		FullName:  fullName,
	}
	o.EntryDate = o.CreatedAt
	return o
}

// NewInventoryItem returns an active item at the given location with the
// default low-stock threshold.
func NewInventoryItem(location, name, unit string, qty decimal.Decimal) *InventoryItem {
	return &InventoryItem{
		Meta:        newMeta("INV"),
		ShelterID:   location,
		ItemName:    name,
		Quantity:    qty,
		Unit:        unit,
		MinQuantity: DefaultMinQuantity,
	}
}

// NewDonation returns a donation at the given location dated now. Location
// defaults to CentralLocation when empty.
func NewDonation(location, description string, qty decimal.Decimal, unit string) *Donation {
	if location == "" {
		location = CentralLocation
	}
	d := &Donation{
		Meta:            newMeta("DOA"),
		ShelterID:       location,
		ItemDescription: description,
		Quantity:        qty,
		Unit:            unit,
	}
	d.DonationDate = d.CreatedAt
	return d
}

// NewDistribution returns an outflow record dated now.
func NewDistribution(location, itemName string, qty decimal.Decimal, unit string) *Distribution {
	d := &Distribution{
		Meta:      newMeta("DIST"),
		ShelterID: location,
		ItemName:  itemName,
		Quantity:  qty,
		Unit:      unit,
		Kind:      KindDistribution,
	}
	d.DistributionDate = d.CreatedAt
	return d
}

// NewTransfer returns a transfer movement record from one location to
// another, dated now.
func NewTransfer(from, to, itemName string, qty decimal.Decimal, unit string) *Distribution {
	d := &Distribution{
		Meta:                 newMeta("TRF"),
		ShelterID:            from,
		DestinationShelterID: to,
		ItemName:             itemName,
		Quantity:             qty,
		Unit:                 unit,
		Kind:                 KindTransfer,
		RecipientName:        "transfer to " + to,
	}
	d.DistributionDate = d.CreatedAt
	return d
}

// NewAuditLogEntry returns an audit entry timestamped now.
func NewAuditLogEntry(action, entityType, entityID, details string) *AuditLogEntry {
	e := &AuditLogEntry{
		Meta:       newMeta("AUD"),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
	e.Timestamp = e.CreatedAt
	return e
}

func newMeta(prefix string) Meta {
	now := time.Now().UTC()
	return Meta{
		BusinessID: NewBusinessID(prefix),
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
