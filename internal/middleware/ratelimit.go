// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware

import (
	"log/slog"

	"codeberg.org/truepet/adopet/internal/apperr"
	"codeberg.org/truepet/adopet/internal/ratelimit"
	"github.com/labstack/echo/v4"
)

// RateLimit guards a route with limiter, keyed by the client address.
// It runs before the handler and never touches the credential store.
// When the limiter backend fails the request is let through.
func RateLimit(name string, limiter ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ip := c.RealIP()

			allowed, retryAfter, err := limiter.Allow(ctx, ip)
			if err != nil {
				slog.WarnContext(ctx, "rate_limit_unavailable", "limiter", name, "error", err)
				return next(c)
			}
			if !allowed {
				slog.InfoContext(ctx, "rate_limited", "limiter", name, "ip", ip, "retry_after", retryAfter)
				return apperr.RateLimited(retryAfter)
			}
			return next(c)
		}
	}
}
