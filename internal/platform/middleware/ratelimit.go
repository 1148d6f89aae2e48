package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/carelink/carelink/internal/platform/auth"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// MaxClients bounds the number of tracked callers. Idle callers are
	// forgotten after IdleTTL.
	MaxClients int
	IdleTTL    time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		MaxClients:        10000,
		IdleTTL:           10 * time.Minute,
	}
}

// rateKey identifies the caller: the authenticated actor when there is one,
// otherwise the client IP.
func rateKey(c echo.Context) string {
	if actor, ok := auth.ActorFromContext(c.Request().Context()); ok {
		return actor.Topic()
	}
	return "ip:" + c.RealIP()
}

// RateLimit applies a token bucket per caller.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	def := DefaultRateLimitConfig()
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	limiters := expirable.NewLRU[string, *rate.Limiter](cfg.MaxClients, nil, cfg.IdleTTL)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	limiterFor := func(key string) *rate.Limiter {
		if l, ok := limiters.Get(key); ok {
			return l
		}
		l := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize)
		limiters.Add(key, l)
		return l
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			l := limiterFor(rateKey(c))
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			r := l.Reserve()
			if !r.OK() {
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			if delay := r.Delay(); delay > 0 {
				r.Cancel()
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			h.Set("X-RateLimit-Remaining", strconv.Itoa(int(l.Tokens())))
			return next(c)
		}
	}
}
