package mw

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"subgraphx/internal/config"
	"subgraphx/internal/security"
)

type RateLimitConfig struct {
	ByJWT    config.RateBucket
	ByIP     config.RateBucket
	Verifier *security.RS256Verifier // optional, lets the limiter key by subject pre-auth
}

type RateLimitMiddleware struct {
	rdb *redis.Client
	cfg RateLimitConfig
}

func NewRateLimit(rdb *redis.Client, cfg RateLimitConfig) *RateLimitMiddleware {
	// sane defaults
	if cfg.ByJWT.TTL == 0 {
		cfg.ByJWT.TTL = 2 * time.Minute
	}
	if cfg.ByIP.TTL == 0 {
		cfg.ByIP.TTL = 2 * time.Minute
	}
	return &RateLimitMiddleware{rdb: rdb, cfg: cfg}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		now := time.Now()

		// by ip
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}

		ipKey := "rl:ip:" + ip
		okIP, _ := m.allow(ctx, ipKey, now, m.cfg.ByIP)

		// by JWT if present and valid
		okJWT := true

		sub := subjectFromContext(r)
		if sub == "" && m.cfg.Verifier != nil {
			if cl, err := m.cfg.Verifier.VerifyBearer(r.Header.Get("Authorization")); err == nil {
				if rc, ok := cl.(*jwt.RegisteredClaims); ok && rc.Subject != "" {
					sub = rc.Subject
				}
			}
		}
		if sub != "" {
			jwtKey := "rl:jwt:" + sub
			okJWT, _ = m.allow(ctx, jwtKey, now, m.cfg.ByJWT)
		}

		if !(okIP && okJWT) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func subjectFromContext(r *http.Request) string {
	if v := r.Context().Value(claimsCtxKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}

	return ""
}

// --- redis token bucket (Lua), atomic in one round trip ---
var luaTokenBucket = redis.NewScript(`
-- KEYS[1] = key
-- ARGV[1] = now_ms
-- ARGV[2] = refill_per_sec (integer)
-- ARGV[3] = burst (integer)
-- ARGV[4] = ttl_seconds
local key   = KEYS[1]
local now   = tonumber(ARGV[1])
local rate  = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl   = tonumber(ARGV[4])

-- read state
local last_ms = tonumber(redis.call('HGET', key, 'ts') or now)
local tokens  = tonumber(redis.call('HGET', key, 'tok') or burst)

-- replenish
if now > last_ms then
  local delta = (now - last_ms) / 1000.0
  tokens = math.min(burst, tokens + (delta * rate))
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tok', tokens, 'ts', now)
redis.call('EXPIRE', key, ttl)

return {allowed, tostring(tokens)}
`)

func clientIP(r *http.Request) string {
	// first hop in the proxy chain is the client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (m *RateLimitMiddleware) allow(ctx context.Context, key string, now time.Time, b config.RateBucket) (bool, string) {
	ttl := int(b.TTL.Seconds())
	if ttl <= 0 {
		ttl = 120
	}

	res, err := luaTokenBucket.Run(ctx, m.rdb, []string{key},
		now.UnixMilli(),
		b.RefillPerSec,
		b.Burst,
		ttl,
	).Result()
	if err != nil { // limiter failure must not take the API down
		return true, ""
	}

	arr, ok := res.([]any)
	if !ok || len(arr) < 2 {
		return false, ""
	}

	allowed, _ := arr[0].(int64)
	tokensLeft, _ := arr[1].(string)

	return allowed == 1, tokensLeft
}
