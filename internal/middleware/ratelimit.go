package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/gigexecs/gigexecs-api/internal/config"
)

// The bucket holds Max tokens and refills completely once per window.
// Returns {allowed, remaining, retry_after_ms, reset_at_ms}.
var bucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local window_ms = tonumber(ARGV[3])

	local state = redis.call('HMGET', key, 'tokens', 'window_start_ms')
	local tokens = tonumber(state[1])
	local start = tonumber(state[2])

	if tokens == nil or start == nil or now_ms - start >= window_ms then
		tokens = capacity
		start = now_ms
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = math.max(0, start + window_ms - now_ms)
	end

	redis.call('HSET', key, 'tokens', tokens, 'window_start_ms', start)
	redis.call('PEXPIRE', key, window_ms)

	return { allowed, tokens, retry_after_ms, start + window_ms }
`)

// Limiter enforces the named request limits in Redis.  A nil client or a
// disabled config turns every limit into a pass-through.
type Limiter struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
	now func() time.Time
}

func NewLimiter(cfg config.RateLimitConfig, rdb *redis.Client) *Limiter {
	return &Limiter{cfg: cfg, rdb: rdb, now: time.Now}
}

// Active reports whether limits are enforced.
func (l *Limiter) Active() bool { return l.cfg.Enabled && l.rdb != nil }

func (l *Limiter) key(t config.LimitType, client string) string {
	return l.cfg.Prefix + ":" + string(t) + ":" + client
}

// ClientID identifies the caller for limiting: the signed-in user, else
// the client IP.
func ClientID(c echo.Context) string {
	if u, ok := CurrentUser(c); ok && u.ID != "" {
		return "user:" + u.ID
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// Limit returns the middleware for one limit type.
func (l *Limiter) Limit(t config.LimitType) echo.MiddlewareFunc {
	lim, ok := l.cfg.Limits[t]
	if !l.Active() || !ok {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := l.key(t, ClientID(c))
			now := l.now()
			vals, err := bucketScript.Run(c.Request().Context(), l.rdb, []string{key},
				now.UnixMilli(), lim.Max, lim.Window.Milliseconds()).Int64Slice()
			if err != nil || len(vals) != 4 {
				if l.cfg.Debug {
					c.Logger().Warnf("ratelimit: redis error for key=%s: %v", key, err)
				}
				return next(c)
			}
			allowed, remaining, retryMs, resetMs := vals[0] == 1, vals[1], vals[2], vals[3]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(lim.Max))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			h.Set("X-RateLimit-Reset", time.UnixMilli(resetMs).UTC().Format(time.RFC3339))
			if allowed {
				return next(c)
			}

			secs := int(math.Ceil(float64(retryMs) / 1000))
			h.Set("Retry-After", strconv.Itoa(secs))
			if l.cfg.Debug {
				c.Logger().Infof("ratelimit: block key=%s retry=%dms", key, retryMs)
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":      lim.Message,
				"retryAfter": secs,
				"timestamp":  now.UTC().Format(time.RFC3339),
			})
		}
	}
}

var (
	ErrLimiterOff   = errors.New("rate limiter unavailable")
	ErrUnknownLimit = errors.New("unknown limit type")
)

// BucketStatus is a read-only view of one client's bucket.
type BucketStatus struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
	WindowMs  int64     `json:"windowMs"`
}

// Status reports a client's bucket without consuming a token.
func (l *Limiter) Status(ctx context.Context, client string, t config.LimitType) (BucketStatus, error) {
	if !l.Active() {
		return BucketStatus{}, ErrLimiterOff
	}
	lim, ok := l.cfg.Limits[t]
	if !ok {
		return BucketStatus{}, ErrUnknownLimit
	}
	now := l.now()
	out := BucketStatus{
		Limit:     lim.Max,
		Remaining: lim.Max,
		ResetTime: now.Add(lim.Window).UTC(),
		WindowMs:  lim.Window.Milliseconds(),
	}
	vals, err := l.rdb.HMGet(ctx, l.key(t, client), "tokens", "window_start_ms").Result()
	if err != nil {
		return out, fmt.Errorf("ratelimit: status: %w", err)
	}
	tokens, okT := asInt64(vals[0])
	start, okS := asInt64(vals[1])
	if okT && okS && now.UnixMilli()-start < lim.Window.Milliseconds() {
		out.Remaining = int(tokens)
		out.ResetTime = time.UnixMilli(start).Add(lim.Window).UTC()
	}
	return out, nil
}

// Clients counts the tracked buckets of one limit type.
func (l *Limiter) Clients(ctx context.Context, t config.LimitType) (int, error) {
	if !l.Active() {
		return 0, ErrLimiterOff
	}
	n := 0
	iter := l.rdb.Scan(ctx, 0, l.key(t, "*"), 200).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

// Types lists the configured limit types.
func (l *Limiter) Types() []string { return l.cfg.Types() }

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	}
	return 0, false
}
