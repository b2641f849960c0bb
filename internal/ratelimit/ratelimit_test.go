// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package ratelimit_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"codeberg.org/truepet/adopet/internal/ratelimit"
	"codeberg.org/truepet/adopet/internal/testutil"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loginRule = ratelimit.Rule{Max: 5, Window: time.Minute}

type backend struct {
	name string
	new  func(t *testing.T, rule ratelimit.Rule, clock *testutil.Clock) ratelimit.Limiter
}

func backends() []backend {
	return []backend{
		{"memory", func(_ *testing.T, rule ratelimit.Rule, clock *testutil.Clock) ratelimit.Limiter {
			return ratelimit.NewMemory(rule, ratelimit.WithClock(clock.Now))
		}},
		{"redis", func(t *testing.T, rule ratelimit.Rule, clock *testutil.Clock) ratelimit.Limiter {
			client := newRedisClient(t)
			return ratelimit.NewRedis(client, "login", rule, ratelimit.WithClock(clock.Now))
		}},
	}
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newClock() *testutil.Clock {
	return testutil.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func allowN(t *testing.T, l ratelimit.Limiter, key string, n int) {
	t.Helper()
	for i := range n {
		ok, _, err := l.Allow(context.Background(), key)
		require.NoError(t, err)
		require.True(t, ok, "attempt %d should be allowed", i+1)
	}
}

func TestLimiter_SixthAttemptBlocked(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := newClock()
			l := b.new(t, loginRule, clock)

			allowN(t, l, "10.0.0.1", 5)
			clock.Advance(30 * time.Second)

			ok, retryAfter, err := l.Allow(context.Background(), "10.0.0.1")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, 30*time.Second, retryAfter)
		})
	}
}

func TestLimiter_AllowsAfterWindow(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := newClock()
			l := b.new(t, loginRule, clock)

			allowN(t, l, "10.0.0.1", 5)
			clock.Advance(59 * time.Second)
			ok, _, err := l.Allow(context.Background(), "10.0.0.1")
			require.NoError(t, err)
			require.False(t, ok)

			clock.Advance(2 * time.Second)
			ok, _, err = l.Allow(context.Background(), "10.0.0.1")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestLimiter_SlidingNotFixed(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := newClock()
			l := b.new(t, loginRule, clock)

			allowN(t, l, "k", 3)
			clock.Advance(40 * time.Second)
			allowN(t, l, "k", 2)

			// The first three leave the window at 60s; the last two stay until 100s.
			clock.Advance(21 * time.Second)
			allowN(t, l, "k", 3)

			ok, retryAfter, err := l.Allow(context.Background(), "k")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, 39*time.Second, retryAfter)
		})
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := newClock()
			l := b.new(t, loginRule, clock)

			allowN(t, l, "10.0.0.1", 5)
			allowN(t, l, "10.0.0.2", 5)

			ok, _, err := l.Allow(context.Background(), "10.0.0.1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestLimiter_RecoveryRule(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			l := b.new(t, ratelimit.Rule{Max: 3, Window: time.Minute}, newClock())

			allowN(t, l, "10.0.0.1", 3)
			ok, _, err := l.Allow(context.Background(), "10.0.0.1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			l := b.new(t, loginRule, newClock())

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				allowed int
			)
			for range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, _, err := l.Allow(context.Background(), "10.0.0.1")
					if err == nil && ok {
						mu.Lock()
						allowed++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 5, allowed)
		})
	}
}

func TestMemory_Prune(t *testing.T) {
	clock := newClock()
	l := ratelimit.NewMemory(loginRule, ratelimit.WithClock(clock.Now))

	for i := range 3 {
		allowN(t, l, fmt.Sprintf("10.0.0.%d", i), 1)
	}
	clock.Advance(30 * time.Second)
	allowN(t, l, "10.0.0.9", 1)
	require.Equal(t, 4, l.Len())

	clock.Advance(31 * time.Second)

	assert.Equal(t, 3, l.Prune())
	assert.Equal(t, 1, l.Len())
}

func TestMemory_PruneDuringAllowKeepsCount(t *testing.T) {
	clock := newClock()
	var (
		l         *ratelimit.Memory
		pruneNext bool
	)
	now := func() time.Time {
		if pruneNext {
			pruneNext = false
			l.Prune()
		}
		return clock.Now()
	}
	l = ratelimit.NewMemory(ratelimit.Rule{Max: 1, Window: time.Minute}, ratelimit.WithClock(now))
	ctx := context.Background()

	allowN(t, l, "10.0.0.1", 1)
	clock.Advance(2 * time.Minute)

	// The sweep removes the idle key after Allow has looked it up.
	pruneNext = true
	ok, _, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, retry, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok, "second attempt in the same window must be blocked")
	assert.Equal(t, time.Minute, retry)
	assert.Equal(t, 1, l.Len())
}

func TestRedis_KeyExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := ratelimit.NewRedis(client, "login", loginRule, ratelimit.WithClock(newClock().Now))

	allowN(t, l, "10.0.0.1", 1)
	assert.True(t, mr.Exists("adopet:ratelimit:login:10.0.0.1"))

	mr.FastForward(time.Minute + time.Second)

	assert.False(t, mr.Exists("adopet:ratelimit:login:10.0.0.1"))
}

func TestRedis_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	l := ratelimit.NewRedis(client, "login", loginRule)
	mr.Close()

	_, _, err := l.Allow(context.Background(), "10.0.0.1")

	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ratelimit.NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = ratelimit.NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}
