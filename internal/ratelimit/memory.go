// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory keeps a log of attempt times per key in process memory.
type Memory struct {
	rule Rule
	now  func() time.Time

	mu   sync.Mutex
	keys map[string]*attemptLog
}

type attemptLog struct {
	mu    sync.Mutex
	times []time.Time
	dead  bool // removed from the map by Prune
}

// NewMemory creates an in-process limiter.
func NewMemory(rule Rule, opts ...Option) *Memory {
	o := newOptions(opts)
	return &Memory{
		rule: rule,
		now:  o.now,
		keys: make(map[string]*attemptLog),
	}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	for {
		l := m.log(key)
		now := m.now()

		l.mu.Lock()
		if l.dead {
			// Pruned between lookup and lock; take the fresh log.
			l.mu.Unlock()
			continue
		}
		allowed, retryAfter := m.record(l, now)
		l.mu.Unlock()
		return allowed, retryAfter, nil
	}
}

// record applies the rule to l. The caller holds l.mu.
func (m *Memory) record(l *attemptLog, now time.Time) (bool, time.Duration) {
	l.times = trim(l.times, now.Add(-m.rule.Window))
	if len(l.times) >= m.rule.Max {
		return false, l.times[0].Add(m.rule.Window).Sub(now)
	}
	l.times = append(l.times, now)
	return true, 0
}

// Prune implements Pruner and reports how many keys were dropped.
func (m *Memory) Prune() int {
	cutoff := m.now().Add(-m.rule.Window)

	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for key, l := range m.keys {
		l.mu.Lock()
		l.times = trim(l.times, cutoff)
		empty := len(l.times) == 0
		if empty {
			l.dead = true
		}
		l.mu.Unlock()
		if empty {
			delete(m.keys, key)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

func (m *Memory) log(key string) *attemptLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.keys[key]
	if !ok {
		l = &attemptLog{}
		m.keys[key] = l
	}
	return l
}

// trim drops attempts at or before cutoff. times is sorted.
func trim(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}
