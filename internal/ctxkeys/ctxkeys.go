// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ctxkeys defines typed context keys used across packages.
package ctxkeys

// Principal is the context key for the authenticated caller.
type Principal struct{}

// Localizer is the context key for the request's i18n localizer.
type Localizer struct{}

// RequestID is the context key for the request correlation ID.
type RequestID struct{}
