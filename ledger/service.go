// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

// Package ledger implements the shelter and inventory domain on top of the
// local store: donation intake, distribution, inter-location transfers, soft
// deletion, audit logging and the derived consistency report. Every mutation
// runs in a single store transaction and marks the touched records for sync.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/beminfo2012/sigerd-mobile-sub001/store"
)

// Service exposes the ledger operations. Construct with NewService; the
// store is injected, never a package-level handle.
type Service struct {
	st       *store.Store
	logger   *slog.Logger
	onMutate func()
}

// NewService creates a ledger service over the given store. logger may be
// nil for slog.Default().
func NewService(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{st: st, logger: logger}
}

// SetSyncTrigger registers a callback fired after every successful mutation,
// typically the sync engine's NotifyMutation.
func (s *Service) SetSyncTrigger(fn func()) { s.onMutate = fn }

func (s *Service) trigger() {
	if s.onMutate != nil {
		s.onMutate()
	}
}

// ShelterInput carries the caller-supplied fields for a new shelter.
type ShelterInput struct {
	Name     string
	Address  string
	Capacity int
}

// AddShelter registers a new active shelter.
func (s *Service) AddShelter(ctx context.Context, in ShelterInput) (*store.Shelter, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: shelter name is required", ErrValidation)
	}
	sh := store.NewShelter(in.Name, in.Capacity)
	sh.Address = in.Address
	if _, err := store.Shelters(s.st).Put(ctx, sh); err != nil {
		return nil, err
	}
	s.trigger()
	return sh, nil
}

// UpdateShelter applies mutate to the shelter and persists the result as a
// pending local change.
func (s *Service) UpdateShelter(ctx context.Context, id string, mutate func(*store.Shelter)) (*store.Shelter, error) {
	sh, err := s.ShelterByID(ctx, id)
	if err != nil {
		return nil, err
	}
	mutate(sh)
	if _, err := store.Shelters(s.st).Put(ctx, sh); err != nil {
		return nil, err
	}
	s.trigger()
	return sh, nil
}

// DeleteShelter soft-deletes the shelter, preserving it for audit.
func (s *Service) DeleteShelter(ctx context.Context, id string) error {
	sh, err := s.ShelterByID(ctx, id)
	if err != nil {
		return err
	}
	if err := store.Shelters(s.st).SoftDelete(ctx, sh); err != nil {
		return err
	}
	s.trigger()
	return nil
}

// Shelters lists shelters that have not been soft-deleted; closed shelters
// are included.
func (s *Service) Shelters(ctx context.Context) ([]*store.Shelter, error) {
	return store.Shelters(s.st).Active(ctx)
}

// ShelterByID fetches a shelter by local id when id is numeric, falling back
// to the business id index. Soft-deleted shelters resolve as not found.
func (s *Service) ShelterByID(ctx context.Context, id string) (*store.Shelter, error) {
	shelters := store.Shelters(s.st)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		if sh, ok, err := shelters.Get(ctx, n); err != nil {
			return nil, err
		} else if ok && !sh.Deleted() {
			return sh, nil
		}
	}
	sh, ok, err := shelters.ByBusinessID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok || sh.Deleted() {
		return nil, fmt.Errorf("%w: shelter %s", ErrNotFound, id)
	}
	return sh, nil
}

// OccupantInput carries the caller-supplied fields for an intake.
type OccupantInput struct {
	ShelterID    string
	FullName     string
	FamilyGroup  string
	IsFamilyHead bool
}

// AddOccupant registers an intake at a shelter. Occupancy is adjusted only
// on exit, matching how intake forms report occupancy separately.
func (s *Service) AddOccupant(ctx context.Context, in OccupantInput) (*store.Occupant, error) {
	if strings.TrimSpace(in.FullName) == "" {
		return nil, fmt.Errorf("%w: occupant name is required", ErrValidation)
	}
	if in.ShelterID == "" {
		return nil, fmt.Errorf("%w: shelter id is required", ErrValidation)
	}
	o := store.NewOccupant(in.ShelterID, in.FullName)
	o.FamilyGroup = in.FamilyGroup
	o.IsFamilyHead = in.IsFamilyHead
	if _, err := store.Occupants(s.st).Put(ctx, o); err != nil {
		return nil, err
	}
	s.trigger()
	return o, nil
}

// Occupants lists the active occupants of a shelter.
func (s *Service) Occupants(ctx context.Context, shelterID string) ([]*store.Occupant, error) {
	all, err := store.Occupants(s.st).ActiveByScope(ctx, shelterID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, o := range all {
		if o.Status != store.StatusExited {
			out = append(out, o)
		}
	}
	return out, nil
}

// ExitOccupant marks the occupant exited and decrements the owning
// shelter's occupancy by one, atomically. Exiting an already-exited
// occupant is a no-op.
func (s *Service) ExitOccupant(ctx context.Context, occupantID string) error {
	err := s.st.WithTx(ctx, func(tx *store.Tx) error {
		occupants := store.Occupants(s.st).WithTx(tx)
		shelters := store.Shelters(s.st).WithTx(tx)

		o, ok, err := occupants.ByBusinessID(ctx, occupantID)
		if err != nil {
			return err
		}
		if !ok || o.Deleted() {
			return fmt.Errorf("%w: occupant %s", ErrNotFound, occupantID)
		}
		if o.Status == store.StatusExited {
			return nil
		}

		o.Status = store.StatusExited
		exit := nowUTC()
		o.ExitDate = &exit
		if _, err := occupants.Put(ctx, o); err != nil {
			return err
		}

		sh, ok, err := shelters.ByBusinessID(ctx, o.ShelterID)
		if err != nil {
			return err
		}
		if ok && !sh.Deleted() {
			if sh.CurrentOccupancy > 0 {
				sh.CurrentOccupancy--
			}
			if _, err := shelters.Put(ctx, sh); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.trigger()
	return nil
}
