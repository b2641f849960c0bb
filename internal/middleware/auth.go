// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"codeberg.org/truepet/adopet/internal/auth"
	"codeberg.org/truepet/adopet/internal/services/token"
	"github.com/labstack/echo/v4"
)

// Message ids used by the route guards.
const (
	MsgUnauthorized = "error_unauthorized"
	MsgForbidden    = "error_forbidden"
)

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*token.Claims, error)
}

// RequireToken rejects requests without a valid bearer token and stores
// the verified caller in the request context.
func RequireToken(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, MsgUnauthorized)
			}

			claims, err := verifier.Verify(raw)
			if err != nil {
				slog.DebugContext(c.Request().Context(), "token_rejected", "error", err)
				return echo.NewHTTPError(http.StatusUnauthorized, MsgUnauthorized)
			}

			ctx := auth.SetPrincipal(c.Request().Context(), &auth.Principal{
				UserID: claims.UserID,
				Role:   claims.Role,
			})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireSelfOrAdmin allows the request when the path parameter param names
// the caller's own account, or when the caller is an administrator.
// It must run after RequireToken.
func RequireSelfOrAdmin(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := auth.GetPrincipal(c.Request().Context())
			if p == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, MsgUnauthorized)
			}

			id, err := strconv.ParseInt(c.Param(param), 10, 64)
			if err != nil || id <= 0 {
				return echo.NewHTTPError(http.StatusNotFound, "error_user_not_found")
			}
			if !p.CanAccess(id) {
				slog.WarnContext(c.Request().Context(), "access_denied", "user_id", p.UserID, "target_id", id)
				return echo.NewHTTPError(http.StatusForbidden, MsgForbidden)
			}
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(echo.HeaderAuthorization)
	scheme, raw, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
