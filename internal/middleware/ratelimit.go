package middleware

import (
	"math"
	"net/http"
	"net/netip"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/windfall/speech_portal/internal/metrics"
	"github.com/windfall/speech_portal/internal/ratelimit"
	"github.com/windfall/speech_portal/pkg/response"
)

// RateLimit enforces the per-minute budget of the caller's tier. Callers with
// a verified token are counted per token, everyone else per client IP.
// Limiter errors let the request through. Mount it after APIKeyAuth or
// StaticBearer.
func RateLimit(limiter ratelimit.Limiter, policy ratelimit.Policy, trusted []netip.Prefix, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := limitToken(r, policy)
			identity := ratelimit.Identity(token, ratelimit.ClientIP(r, trusted))
			tier := policy.TierFor(token)
			limit := policy.LimitFor(tier)

			d, err := limiter.Allow(r.Context(), identity, limit)
			if err != nil {
				log.Warn().Err(err).Str("tier", string(tier)).Msg("Rate limiter unavailable; allowing request")
				next.ServeHTTP(w, r)
				return
			}

			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}
			if !d.Allowed {
				metrics.RateLimitedTotal.WithLabelValues(string(tier)).Inc()
				response.TooManyRequests(w, "Rate limit exceeded", int(math.Ceil(d.RetryAfter.Seconds())))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limitToken returns the token to count the request against. Only tokens
// checked by an auth middleware or listed as VIP qualify, so unverified
// bearer values cannot mint fresh buckets.
func limitToken(r *http.Request, policy ratelimit.Policy) string {
	if token := GetToken(r.Context()); token != "" {
		return token
	}
	if token := BearerToken(r); policy.TierFor(token) == ratelimit.TierVIP {
		return token
	}
	return ""
}
