// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

// Package listmerge combines a remote query result and a local lightweight
// result into one deduplicated, consistently ordered list for display. Local
// records already represented remotely are suppressed so a record that has
// been pushed but not yet returned by a remote query neither duplicates nor
// vanishes.
package listmerge

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beminfo2012/sigerd-mobile-sub001/store"
)

// Entry is one display row. Value carries the underlying record for the UI;
// the identity keys mirror the sync engine's resolution chain.
type Entry struct {
	BusinessID string
	RemoteID   string
	LegacyID   string
	OrderKey   string // formatted sequence, e.g. "17/2026"; may be empty
	CreatedAt  time.Time
	IsLocal    bool
	Pending    bool // local record not yet confirmed remote
	Value      any
}

// LocalEntry builds an Entry from a locally stored record. Pending surfaces
// the record's sync state as a badge for the UI.
func LocalEntry(rec store.Record, orderKey string) Entry {
	m := rec.RecordMeta()
	return Entry{
		BusinessID: m.BusinessID,
		RemoteID:   m.RemoteID,
		LegacyID:   m.LegacyID,
		OrderKey:   orderKey,
		CreatedAt:  m.CreatedAt,
		IsLocal:    true,
		Pending:    !m.Synced,
		Value:      rec,
	}
}

// Merge returns the remote list with every unrepresented local entry
// appended, ordered by sequence key descending with a created-at fallback.
//
// A local entry is "already represented" when any candidate key matches a
// remote entry: business id, then remote primary id, then legacy key. A
// represented local entry is dropped in favor of the remote copy.
func Merge(remote, local []Entry) []Entry {
	merged := make([]Entry, len(remote))
	copy(merged, remote)

	for _, l := range local {
		if represented(remote, l) {
			continue
		}
		l.IsLocal = true
		merged = append(merged, l)
	}

	sortEntries(merged)
	return merged
}

func represented(remote []Entry, l Entry) bool {
	for _, r := range remote {
		if l.BusinessID != "" && r.BusinessID == l.BusinessID {
			return true
		}
		if l.RemoteID != "" && (r.RemoteID == l.RemoteID || r.BusinessID == l.RemoteID) {
			return true
		}
		if l.LegacyID != "" && r.LegacyID == l.LegacyID {
			return true
		}
	}
	return false
}

// sortEntries orders by sequence key "NN/YYYY" descending (year first, then
// number). When either key is absent or malformed the pair falls back to
// creation time descending.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ni, yi, oki := parseSeq(entries[i].OrderKey)
		nj, yj, okj := parseSeq(entries[j].OrderKey)
		if !oki || !okj {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		if yi != yj {
			return yi > yj
		}
		return ni > nj
	})
}

func parseSeq(key string) (num, year int, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return num, year, true
}
