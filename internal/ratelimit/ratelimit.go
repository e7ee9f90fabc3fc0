// Package ratelimit enforces per-caller request budgets per minute.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/windfall/speech_portal/internal/client"
)

// Window is the accounting period every limit is expressed in.
const Window = time.Minute

// Tier selects which per-minute limit applies to a caller.
type Tier string

const (
	TierStandard Tier = "standard"
	TierVIP      Tier = "vip"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per identity.
type Limiter interface {
	// Allow consumes one request from identity's budget of limit per Window.
	// A limit <= 0 disables limiting.
	Allow(ctx context.Context, identity string, limit int) (Decision, error)
}

// Policy maps bearer tokens to tiers and tiers to limits.
type Policy struct {
	Standard int
	VIP      int
	vip      map[string]struct{}
}

// NewPolicy creates a policy. vipTokens are placed in the vip tier.
func NewPolicy(standard, vip int, vipTokens []string) Policy {
	set := make(map[string]struct{}, len(vipTokens))
	for _, t := range vipTokens {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return Policy{Standard: standard, VIP: vip, vip: set}
}

// TierFor returns the tier of a bearer token; anonymous callers are standard.
func (p Policy) TierFor(token string) Tier {
	if token == "" {
		return TierStandard
	}
	if _, ok := p.vip[token]; ok {
		return TierVIP
	}
	return TierStandard
}

// LimitFor returns the per-minute limit of tier.
func (p Policy) LimitFor(tier Tier) int {
	if tier == TierVIP {
		return p.VIP
	}
	return p.Standard
}

type memoryEntry struct {
	limiter *rate.Limiter
	limit   int
}

// MemoryLimiter keeps a token bucket per identity in process memory. Idle
// identities are evicted after a few windows.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *memoryEntry]
}

// NewMemoryLimiter creates a limiter tracking at most size identities.
func NewMemoryLimiter(size int) *MemoryLimiter {
	if size <= 0 {
		size = 10000
	}
	return &MemoryLimiter{
		buckets: expirable.NewLRU[string, *memoryEntry](size, nil, 10*Window),
	}
}

// Allow consumes one request from identity's bucket.
func (l *MemoryLimiter) Allow(ctx context.Context, identity string, limit int) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	l.mu.Lock()
	entry, ok := l.buckets.Get(identity)
	if !ok || entry.limit != limit {
		entry = &memoryEntry{
			limiter: rate.NewLimiter(rate.Every(Window/time.Duration(limit)), limit),
			limit:   limit,
		}
	}
	// Re-adding refreshes the idle TTL.
	l.buckets.Add(identity, entry)
	l.mu.Unlock()

	now := time.Now()
	r := entry.limiter.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, Limit: limit, RetryAfter: Window}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, Limit: limit, RetryAfter: delay}, nil
	}

	remaining := int(math.Floor(entry.limiter.TokensAt(now)))
	return Decision{Allowed: true, Limit: limit, Remaining: max(remaining, 0)}, nil
}

// RedisLimiter counts requests in fixed one-minute windows shared by every
// instance pointing at the same Redis.
type RedisLimiter struct {
	redis  *client.RedisClient
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(redis *client.RedisClient) *RedisLimiter {
	return &RedisLimiter{redis: redis, prefix: "speech_portal:rl:", now: time.Now}
}

// Allow increments identity's counter for the current window.
func (l *RedisLimiter) Allow(ctx context.Context, identity string, limit int) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	window := l.now().Unix() / int64(Window/time.Second)
	key := fmt.Sprintf("%s%s:%d", l.prefix, identity, window)

	count, ttl, err := l.redis.IncrWindow(ctx, key, Window)
	if err != nil {
		return Decision{}, err
	}

	if count > int64(limit) {
		if ttl <= 0 {
			ttl = Window
		}
		return Decision{Allowed: false, Limit: limit, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Limit: limit, Remaining: limit - int(count)}, nil
}
