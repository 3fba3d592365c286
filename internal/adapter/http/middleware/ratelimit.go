package middleware

import (
	"strconv"
	"time"

	redisStore "credit-mint-engine/internal/adapter/storage/redis"
	"credit-mint-engine/internal/service"
	"credit-mint-engine/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the rate limits per endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"mint":        {Limit: 20, Window: time.Minute},
		"preview":     {Limit: 10, Window: time.Minute},
		"assets":      {Limit: 300, Window: time.Minute},
		"dashboard":   {Limit: 60, Window: time.Minute},
		"deposit":     {Limit: 30, Window: time.Minute},
		"transfer":    {Limit: 30, Window: time.Minute},
		"supply_mint": {Limit: 60, Window: time.Minute},
	}
}

// RateLimiter counts requests per client and group and answers 429 once a
// window is used up. Redis errors let the request through.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := clientKey(c)

		result, err := store.Allow(c.Request.Context(), client+":"+group, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Str("client", client).Msg("rate limiter unavailable, request allowed")
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if result.Allowed {
			c.Next()
			return
		}

		h.Set("Retry-After", strconv.FormatInt(max(result.ResetAt-timeNow().Unix(), 1), 10))
		abort(c, apperror.ErrRateLimitExceeded())
	}
}

// clientKey prefers the signed caller, then the authenticated owner, then
// the client IP.
func clientKey(c *gin.Context) string {
	if caller := c.GetHeader(service.HeaderCaller); caller != "" {
		return "caller:" + caller
	}
	if owner := c.GetString(CtxOwnerID); owner != "" {
		return "owner:" + owner
	}
	return "ip:" + c.ClientIP()
}
