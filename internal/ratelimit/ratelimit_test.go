package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/speech_portal/internal/client"
)

func TestPolicy(t *testing.T) {
	p := NewPolicy(30, 120, []string{"vip-token", "admin"})

	assert.Equal(t, TierStandard, p.TierFor(""))
	assert.Equal(t, TierStandard, p.TierFor("someone"))
	assert.Equal(t, TierVIP, p.TierFor("vip-token"))
	assert.Equal(t, TierVIP, p.TierFor("admin"))
	assert.Equal(t, 30, p.LimitFor(TierStandard))
	assert.Equal(t, 120, p.LimitFor(TierVIP))
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(16)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "ip:1.1.1.1", 3)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
	}

	d, err := l.Allow(ctx, "ip:1.1.1.1", 3)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// Other identities have their own budget.
	d, err = l.Allow(ctx, "ip:2.2.2.2", 3)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiters_DisabledWhenLimitIsZero(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRedisLimiter(client.NewRedisClientFrom(redis.NewClient(&redis.Options{Addr: mr.Addr()})))

	for _, l := range []Limiter{NewMemoryLimiter(0), rl} {
		for i := 0; i < 100; i++ {
			d, err := l.Allow(context.Background(), "tk:x", 0)
			require.NoError(t, err)
			require.True(t, d.Allowed)
		}
	}
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewRedisLimiter(client.NewRedisClientFrom(redis.NewClient(&redis.Options{Addr: mr.Addr()})))
	now := time.Date(2024, 1, 1, 12, 0, 5, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "tk:abc", 2)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 1-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "tk:abc", 2)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	// The next window starts a fresh count.
	now = now.Add(time.Minute)
	d, err = l.Allow(ctx, "tk:abc", 2)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
