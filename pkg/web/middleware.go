package web

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/flowplane/flowplane/pkg/ratelimit"
)

// RateLimit charges one unit per request against the limiter, keyed by client
// IP.
func RateLimit(limiter ratelimit.Limiter) fiber.Handler {
	return limitByCost(limiter, func(fiber.Ctx) int64 {
		return 1
	}, "request rate limit exceeded, retry later")
}

// ThroughputLimit charges the request body size in bytes against the limiter,
// keyed by client IP. Body-less requests cost one byte so they still count.
func ThroughputLimit(limiter ratelimit.Limiter) fiber.Handler {
	return limitByCost(limiter, func(c fiber.Ctx) int64 {
		if cost := int64(len(c.Body())); cost > 0 {
			return cost
		}

		return 1
	}, "request byte budget exceeded, retry later")
}

// limitByCost rejects over-budget requests with a 429 problem document and a
// Retry-After header. Limiter backend failures fail open so a broken Redis
// never blocks the control plane.
func limitByCost(limiter ratelimit.Limiter, cost func(fiber.Ctx) int64, detail string) fiber.Handler {
	return func(c fiber.Ctx) error {
		result, err := limiter.Consume(c.Context(), c.IP(), cost(c))
		if err != nil {
			return c.Next()
		}

		if !result.Allowed {
			retryAfter := int(time.Until(result.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}

			c.Set("Retry-After", strconv.Itoa(retryAfter))

			problem := problems.NewStatusProblem(429).
				WithInstance(c.Path()).
				WithType("rate_limited").
				WithDetail(detail)

			return c.Status(fiber.StatusTooManyRequests).JSON(problem)
		}

		return c.Next()
	}
}
