package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/donut/internal/metrics"
)

// RateLimit is the budget for requests whose method matches and whose path
// starts with Prefix.
type RateLimit struct {
	Method   string
	Prefix   string
	Requests int
	Window   time.Duration
	// Shared budgets count every caller together and never lead to an
	// auto-block.
	Shared bool
}

// ipLimits apply before authentication, per client IP unless shared.
var ipLimits = []RateLimit{
	{Method: http.MethodPost, Prefix: "/slack/interactions", Requests: 600, Window: time.Minute, Shared: true},
	{Method: http.MethodPost, Prefix: "/rounds/", Requests: 60, Window: time.Hour},
	{Method: http.MethodGet, Prefix: "/rounds/", Requests: 60, Window: time.Minute},
	{Method: http.MethodGet, Prefix: "/admin/", Requests: 60, Window: time.Minute},
	{Method: http.MethodPut, Prefix: "/admin/", Requests: 30, Window: time.Minute},
	{Method: http.MethodPost, Prefix: "/admin/", Requests: 30, Window: time.Minute},
}

// operatorLimits apply after authentication to the operator as a whole,
// whichever host the trigger comes from.
var operatorLimits = []RateLimit{
	{Method: http.MethodPost, Prefix: "/rounds/start", Requests: 12, Window: time.Hour},
	{Method: http.MethodPost, Prefix: "/rounds/remind", Requests: 12, Window: time.Hour},
	{Method: http.MethodPost, Prefix: "/rounds/summary", Requests: 12, Window: time.Hour},
	{Method: http.MethodGet, Prefix: "/rounds/", Requests: 120, Window: time.Minute},
	{Method: http.MethodGet, Prefix: "/admin/", Requests: 120, Window: time.Minute},
	{Method: http.MethodPut, Prefix: "/admin/", Requests: 30, Window: time.Minute},
	{Method: http.MethodPost, Prefix: "/admin/", Requests: 30, Window: time.Minute},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from per-IP limits
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
}

// RateLimiter implements Redis-backed windowed rate limiting.
type RateLimiter struct {
	client           *redis.Client
	blocker          *IPBlocker
	logger           zerolog.Logger
	whitelist        []*net.IPNet
	whitelistIPs     map[string]bool
	autoBlockEnabled bool
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:           client,
		blocker:          NewIPBlocker(client),
		logger:           logger,
		whitelistIPs:     make(map[string]bool),
		autoBlockEnabled: cfg.AutoBlockEnabled,
	}

	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	// Check Fly.io header first
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// CheckAndIncrement records one request against key and reports whether it
// fits within limit for the current window.
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, resetAt time.Time, err error) {
	now := time.Now()
	bucket := now.Unix() / int64(window.Seconds())
	windowKey := fmt.Sprintf("%s:%d", key, bucket)
	resetAt = time.Unix((bucket+1)*int64(window.Seconds()), 0)

	pipe := rl.client.TxPipeline()
	countCmd := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, limit, resetAt, fmt.Errorf("rate limit counter %s: %w", key, err)
	}

	count := int(countCmd.Val())
	remaining = max(limit-count, 0)
	return count <= limit, remaining, resetAt, nil
}

func findLimit(limits []RateLimit, r *http.Request) *RateLimit {
	for i := range limits {
		if r.Method == limits[i].Method && strings.HasPrefix(r.URL.Path, limits[i].Prefix) {
			return &limits[i]
		}
	}
	return nil
}

func bucketName(l *RateLimit) string {
	return l.Method + ":" + l.Prefix
}

// Middleware enforces IP blocks and the pre-authentication limits.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		blocked, err := rl.blocker.IsBlocked(r.Context(), ip)
		if err != nil {
			rl.logger.Error().Err(err).Str("ip", ip).Msg("block lookup failed, allowing request")
		}
		if blocked {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit := findLimit(ipLimits, r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := "ratelimit:ip:" + ip + ":" + bucketName(limit)
		if limit.Shared {
			key = "ratelimit:shared:" + bucketName(limit)
		}
		if !rl.enforce(w, r, key, limit) {
			if !limit.Shared {
				rl.trackViolation(r.Context(), ip)
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Operator enforces the operator's own budget. Mount it after
// authentication so unauthenticated callers cannot spend it.
func (rl *RateLimiter) Operator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := findLimit(operatorLimits, r)
		if limit == nil || rl.enforce(w, r, "ratelimit:operator:"+bucketName(limit), limit) {
			next.ServeHTTP(w, r)
		}
	})
}

// enforce counts the request, sets the rate limit headers and writes a 429
// when the budget is spent. Counter failures let the request through.
func (rl *RateLimiter) enforce(w http.ResponseWriter, r *http.Request, key string, limit *RateLimit) bool {
	allowed, remaining, resetAt, err := rl.CheckAndIncrement(r.Context(), key, limit.Requests, limit.Window)
	if err != nil {
		rl.logger.Error().Err(err).Str("endpoint", r.URL.Path).Msg("rate limiter unavailable, allowing request")
		return true
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	if allowed {
		return true
	}

	w.Header().Set("Retry-After", strconv.Itoa(max(int(time.Until(resetAt).Seconds()), 1)))
	metrics.RateLimitHits.WithLabelValues(normalizePath(r.URL.Path)).Inc()
	rl.logger.Warn().
		Str("type", "security").
		Str("event", "rate_limit_exceeded").
		Str("ip", RealIP(r)).
		Str("endpoint", r.URL.Path).
		Str("key", key).
		Msg("rate limit exceeded")
	jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

// trackViolation counts rate limit violations and auto-blocks repeat offenders.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlockEnabled {
		return
	}

	key := "violations:ip:" + ip
	pipe := rl.client.TxPipeline()
	countCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("failed to record rate limit violation")
		return
	}

	count := countCmd.Val()
	if count < 10 {
		return
	}
	if err := rl.blocker.Block(ctx, ip, 24*time.Hour, "repeated rate limit violations"); err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("failed to block IP")
		return
	}
	rl.logger.Warn().
		Str("type", "security").
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", count).
		Msg("IP auto-blocked for repeated violations")
}

// IPBlocker manages temporary IP blocks.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string {
	return "blocked:ip:" + ip
}

// IsBlocked checks if an IP is blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) (bool, error) {
	n, err := b.client.Exists(ctx, blockKey(ip)).Result()
	if err != nil {
		return false, fmt.Errorf("check block for %s: %w", ip, err)
	}
	return n > 0, nil
}

// Block blocks an IP for the given duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) error {
	if err := b.client.Set(ctx, blockKey(ip), reason, duration).Err(); err != nil {
		return fmt.Errorf("block %s: %w", ip, err)
	}
	return nil
}
