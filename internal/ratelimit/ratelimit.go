// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ratelimit bounds attempts per key within a sliding window.
//
// A window is the half-open interval (now-Window, now]. Only allowed
// attempts are counted, so a blocked caller regains access once the oldest
// counted attempt leaves the window.
package ratelimit

import (
	"context"
	"time"
)

// Rule is the attempt budget for one limiter.
type Rule struct {
	Max    int
	Window time.Duration
}

// Limiter decides whether another attempt for key is allowed. When it is
// not, retryAfter tells how long until the next attempt would be.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// Pruner drops state for keys without attempts in the current window.
type Pruner interface {
	Prune() int
}

// Option configures a limiter.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
