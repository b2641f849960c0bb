// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware

import (
	"codeberg.org/truepet/adopet/internal/auth"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// MaxRequestIDLength bounds an incoming X-Request-Id.
const MaxRequestIDLength = 64

// RequestID assigns each request a UUID, echoes it in X-Request-Id and
// stores it in the request context for log and audit correlation.
// An incoming X-Request-Id header is kept only when it is a short token of
// letters, digits, '-', '_' or '.'; anything else is replaced.
func RequestID() echo.MiddlewareFunc {
	assign := middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			c.SetRequest(c.Request().WithContext(auth.SetRequestID(c.Request().Context(), id)))
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := assign(next)
		return func(c echo.Context) error {
			req := c.Request()
			if id := req.Header.Get(echo.HeaderXRequestID); id != "" && !validRequestID(id) {
				req.Header.Del(echo.HeaderXRequestID)
			}
			return h(c)
		}
	}
}

func validRequestID(id string) bool {
	if len(id) > MaxRequestIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
