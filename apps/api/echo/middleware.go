package echoapi

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/services/metrics"
)

// metricsMiddleware records the latency of every request, labelled by route pattern.
func metricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveHTTP(ctx.Request().Method, route, ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}

// redeemRateLimitMiddleware throttles redemptions per authenticated user.
// The limiter failing open keeps redemptions available when redis is down.
func redeemRateLimitMiddleware(limiter RedeemLimiter, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if limiter == nil {
				return next(ctx)
			}
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}

			res, err := limiter.AllowRedeem(ctx.Request().Context(), claims.Subject)
			if err != nil {
				logger.Error(fmt.Sprintf("echoapi.redeemRateLimit: %v", err), err)
				return next(ctx)
			}

			h := ctx.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
