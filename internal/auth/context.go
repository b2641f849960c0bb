// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth provides authentication context helpers.
package auth

import (
	"context"

	"codeberg.org/truepet/adopet/internal/ctxkeys"
	"codeberg.org/truepet/adopet/internal/models"
)

// Principal is the caller identity proven by a verified session token.
type Principal struct {
	UserID int64
	Role   models.Role
}

// IsAdmin reports whether the caller holds the administrator role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == models.RoleAdministrator
}

// CanAccess reports whether the caller may read or change the account userID.
func (p *Principal) CanAccess(userID int64) bool {
	return p != nil && (p.UserID == userID || p.IsAdmin())
}

// SetPrincipal returns a copy of ctx carrying p.
func SetPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxkeys.Principal{}, p)
}

// GetPrincipal returns the authenticated caller from the context, or nil if not authenticated.
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(ctxkeys.Principal{}).(*Principal); ok {
		return p
	}
	return nil
}

// SetRequestID returns a copy of ctx carrying the request correlation ID.
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxkeys.RequestID{}, id)
}

// GetRequestID returns the request correlation ID, or "" when unset.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxkeys.RequestID{}).(string)
	return id
}
