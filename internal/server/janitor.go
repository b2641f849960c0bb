// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"log/slog"
	"time"

	"codeberg.org/truepet/adopet/internal/ratelimit"
)

// DefaultSweepInterval is how often the janitor runs.
const DefaultSweepInterval = 5 * time.Minute

// ExpiredCodeStore deletes reset codes past their expiry.
type ExpiredCodeStore interface {
	DeleteExpiredResetCodes(ctx context.Context, now time.Time) (int64, error)
}

// Janitor periodically removes expired reset codes and idle rate-limit keys.
// Expired codes never match a redemption, so this is housekeeping only.
type Janitor struct {
	store    ExpiredCodeStore
	pruners  []ratelimit.Pruner
	interval time.Duration
	now      func() time.Time
}

// NewJanitor creates a Janitor. A non-positive interval selects DefaultSweepInterval.
func NewJanitor(store ExpiredCodeStore, interval time.Duration, now func() time.Time, pruners ...ratelimit.Pruner) *Janitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Janitor{store: store, pruners: pruners, interval: interval, now: now}
}

// Run sweeps on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep performs one cleanup pass.
func (j *Janitor) Sweep(ctx context.Context) {
	deleted, err := j.store.DeleteExpiredResetCodes(ctx, j.now().UTC())
	if err != nil {
		slog.ErrorContext(ctx, "janitor_sweep_failed", "error", err)
	} else if deleted > 0 {
		slog.InfoContext(ctx, "expired_reset_codes_deleted", "count", deleted)
	}

	pruned := 0
	for _, p := range j.pruners {
		pruned += p.Prune()
	}
	if pruned > 0 {
		slog.DebugContext(ctx, "rate_limit_keys_pruned", "count", pruned)
	}
}
