// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package audit appends security-relevant events to the audit log.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"codeberg.org/truepet/adopet/internal/auth"
	"codeberg.org/truepet/adopet/internal/models"
)

// Store persists audit entries.
type Store interface {
	CreateAuditLog(ctx context.Context, userID *int64, action models.AuditAction, details *string) error
}

// Details is the structured payload attached to an entry.
type Details map[string]any

// Keys that are never written to the audit log.
var redactedKeys = []string{"senha", "password", "novasenha", "codigo", "code", "token", "secret", "twofactorcode"}

// Recorder writes audit entries. A failed write is logged and swallowed so
// it never aborts the operation being audited.
type Recorder struct {
	store Store
}

// NewRecorder creates a Recorder backed by store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record appends an entry for userID, which may be nil for anonymous events.
// The write survives cancellation of ctx.
func (r *Recorder) Record(ctx context.Context, userID *int64, action models.AuditAction, details Details) {
	payload := r.encode(ctx, action, details)

	if err := r.store.CreateAuditLog(context.WithoutCancel(ctx), userID, action, payload); err != nil {
		slog.ErrorContext(ctx, "audit_write_failed",
			"action", string(action),
			"user_id", userIDAttr(userID),
			"error", err,
		)
	}
}

// RecordUser is Record for a known user.
func (r *Recorder) RecordUser(ctx context.Context, userID int64, action models.AuditAction, details Details) {
	r.Record(ctx, &userID, action, details)
}

func (r *Recorder) encode(ctx context.Context, action models.AuditAction, details Details) *string {
	clean := make(Details, len(details)+1)
	for k, v := range details {
		if isRedacted(k) {
			continue
		}
		clean[k] = v
	}
	if id := auth.GetRequestID(ctx); id != "" {
		clean["requestId"] = id
	}
	if len(clean) == 0 {
		return nil
	}

	data, err := json.Marshal(clean)
	if err != nil {
		slog.WarnContext(ctx, "audit_details_dropped", "action", string(action), "error", err)
		return nil
	}
	s := string(data)
	return &s
}

func isRedacted(key string) bool {
	k := strings.ToLower(key)
	for _, r := range redactedKeys {
		if k == r {
			return true
		}
	}
	return false
}

func userIDAttr(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
