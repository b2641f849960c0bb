// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"strings"

	"codeberg.org/truepet/adopet/internal/models"
)

// CreateAuditLog appends an audit entry. The timestamp is assigned by the store.
func (r *Repository) CreateAuditLog(ctx context.Context, userID *int64, action models.AuditAction, details *string) error {
	_, err := r.exec(ctx,
		`INSERT INTO audit_logs (user_id, action, details) VALUES (?, ?, ?)`,
		userID, action, details)
	return err
}

// AuditFilter narrows ListAuditLogs. Zero values match everything.
type AuditFilter struct {
	UserID *int64
	Action models.AuditAction
	Limit  int
}

// ListAuditLogs returns matching entries, newest first.
func (r *Repository) ListAuditLogs(ctx context.Context, f AuditFilter) ([]models.AuditLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}

	query := `SELECT id, user_id, action, details, created_at FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var entries []models.AuditLogEntry
	if err := r.selectAll(ctx, &entries, query, args...); err != nil {
		return nil, err
	}
	return entries, nil
}
