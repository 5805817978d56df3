// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

package syncer

import "github.com/beminfo2012/sigerd-mobile-sub001/store"

// Side selects which copy of a record survives a pull-time conflict.
type Side int

const (
	KeepLocal Side = iota
	TakeRemote
)

// MergePolicy decides, for a remote record that resolved to an existing
// local record, whether the incoming copy is applied. The policy is explicit
// so it can be inspected and unit-tested independent of the transport.
type MergePolicy func(local store.Meta, remote Envelope) Side

// LocalWinsWhilePending is the default policy: a record with unconfirmed
// local changes is never overwritten by an incoming remote copy until the
// local change has been pushed. This is deliberately not last-write-wins by
// timestamp; remote changes to a record with a stale pending edit are
// delayed until that edit clears.
func LocalWinsWhilePending(local store.Meta, remote Envelope) Side {
	if !local.Synced {
		return KeepLocal
	}
	return TakeRemote
}
