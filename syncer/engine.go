// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config holds tuning for the background loop.
type Config struct {
	BackoffMin   time.Duration // initial retry delay after a failed cycle
	BackoffMax   time.Duration // cap for the exponential backoff
	PullInterval time.Duration // cadence of opportunistic pulls
}

// DefaultConfig returns the settings used by the mobile app shell.
func DefaultConfig() *Config {
	return &Config{
		BackoffMin:   1 * time.Second,
		BackoffMax:   60 * time.Second,
		PullInterval: 30 * time.Second,
	}
}

// Engine orchestrates push (local unsynced to remote) and pull (remote to
// local merge) across a set of entity collections. Both directions are
// idempotent and safe to re-trigger while a cycle is in flight; the
// per-record upsert and skip-if-pending semantics absorb re-application.
type Engine struct {
	remote   Remote
	entities []EntitySync
	online   func() bool
	policy   MergePolicy
	config   *Config
	logger   *slog.Logger

	mu     sync.Mutex // serialize whole push cycles
	notify chan struct{}
}

// NewEngine creates a sync engine over the given entities. online gates sync
// attempts and may be nil (always online); config and logger may be nil for
// defaults.
func NewEngine(remote Remote, entities []EntitySync, online func() bool, config *Config, logger *slog.Logger) (*Engine, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("at least one entity must be registered")
	}
	if online == nil {
		online = func() bool { return true }
	}
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		remote:   remote,
		entities: entities,
		online:   online,
		policy:   LocalWinsWhilePending,
		config:   config,
		logger:   logger,
		notify:   make(chan struct{}, 1),
	}, nil
}

// SetMergePolicy overrides the default local-wins-while-pending rule.
func (e *Engine) SetMergePolicy(p MergePolicy) {
	if p != nil {
		e.policy = p
	}
}

// NotifyMutation signals that a domain mutation happened and a push should
// run soon. Non-blocking; coalesces with any signal already queued.
func (e *Engine) NotifyMutation() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// NotifyOnline runs a full push-then-pull cycle, typically on connectivity
// regain. Transport failures are absorbed: affected records simply stay
// pending until the next trigger.
func (e *Engine) NotifyOnline(ctx context.Context) {
	if _, err := e.PushPending(ctx); err != nil {
		e.logger.Warn("push on reconnect failed", "error", err)
	}
	if _, err := e.PullAll(ctx); err != nil {
		e.logger.Warn("pull on reconnect failed", "error", err)
	}
}

// PushPending uploads every unsynced record, entity by entity, record by
// record. A failure on one record leaves it unsynced and moves on; push is
// never all-or-nothing across a collection. The returned count is the number
// of records confirmed remote. A non-nil error reports a local storage
// problem, not a transport one.
func (e *Engine) PushPending(ctx context.Context) (int, error) {
	if !e.online() {
		return 0, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	pushed := 0
	for _, ent := range e.entities {
		pending, err := ent.Pending(ctx)
		if err != nil {
			return pushed, fmt.Errorf("failed to load pending %s records: %w", ent.Name(), err)
		}
		for _, rec := range pending {
			stored, err := e.remote.Upsert(ctx, ent.Name(), rec.Env)
			if err != nil {
				// Transport failure: keep the record pending and continue.
				e.logger.Warn("push failed, will retry",
					"entity", ent.Name(), "business_id", rec.Env.BusinessID, "error", err)
				continue
			}
			ok, err := ent.MarkSynced(ctx, rec.LocalID, stored.RemoteID, rec.UpdatedAt)
			if err != nil {
				return pushed, fmt.Errorf("failed to confirm %s %s: %w", ent.Name(), rec.Env.BusinessID, err)
			}
			if !ok {
				// Record changed while the upsert was in flight; the newer
				// edit stays pending and goes out on the next cycle.
				e.logger.Debug("record edited during push, left pending",
					"entity", ent.Name(), "business_id", rec.Env.BusinessID)
				continue
			}
			pushed++
		}
	}
	return pushed, nil
}

// PullAndMerge fetches all remote records for one entity and merges them
// into the local collection through the identity resolver and the merge
// policy. Returns the number of records applied locally.
func (e *Engine) PullAndMerge(ctx context.Context, entity string) (int, error) {
	if !e.online() {
		return 0, nil
	}
	ent := e.entity(entity)
	if ent == nil {
		return 0, fmt.Errorf("unknown entity %q", entity)
	}

	envs, err := e.remote.List(ctx, entity, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("failed to list remote %s records: %w", entity, err)
	}

	applied := 0
	for _, env := range envs {
		res, err := ent.Resolve(ctx, env)
		if err != nil {
			return applied, fmt.Errorf("failed to resolve remote %s %s: %w", entity, env.BusinessID, err)
		}
		if res.Found && e.policy(res.Meta, env) == KeepLocal {
			e.logger.Debug("skipping remote copy, local edit pending",
				"entity", entity, "business_id", env.BusinessID)
			continue
		}
		if err := ent.ApplyRemote(ctx, res.LocalID, env); err != nil {
			return applied, fmt.Errorf("failed to apply remote %s %s: %w", entity, env.BusinessID, err)
		}
		applied++
	}
	return applied, nil
}

// PullAll runs PullAndMerge for every registered entity.
func (e *Engine) PullAll(ctx context.Context) (int, error) {
	applied := 0
	for _, ent := range e.entities {
		n, err := e.PullAndMerge(ctx, ent.Name())
		if err != nil {
			return applied, err
		}
		applied += n
	}
	return applied, nil
}

// Progress reports the share of records confirmed remote, 0 to 100. An empty
// store counts as fully synced.
func (e *Engine) Progress(ctx context.Context) (int, error) {
	total, synced := 0, 0
	for _, ent := range e.entities {
		n, s, err := ent.Counts(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count %s records: %w", ent.Name(), err)
		}
		total += n
		synced += s
	}
	if total == 0 {
		return 100, nil
	}
	return synced * 100 / total, nil
}

// Run drives opportunistic syncing until ctx is cancelled: a push on every
// mutation signal, and a periodic push-then-pull with exponential backoff
// after failed cycles.
func (e *Engine) Run(ctx context.Context) {
	backoff := e.config.BackoffMin
	ticker := time.NewTicker(e.config.PullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.notify:
			if _, err := e.PushPending(ctx); err != nil {
				e.logger.Warn("push cycle failed", "error", err)
			}
		case <-ticker.C:
			_, pushErr := e.PushPending(ctx)
			_, pullErr := e.PullAll(ctx)
			if pushErr != nil || pullErr != nil {
				e.logger.Warn("sync cycle failed", "push_error", pushErr, "pull_error", pullErr)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > e.config.BackoffMax {
					backoff = e.config.BackoffMax
				}
			} else {
				backoff = e.config.BackoffMin
			}
		}
	}
}

func (e *Engine) entity(name string) EntitySync {
	for _, ent := range e.entities {
		if ent.Name() == name {
			return ent
		}
	}
	return nil
}
