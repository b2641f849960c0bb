// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/truepet/adopet/internal/models"
	"github.com/vinovest/sqlx"
)

// ReplaceResetCode deletes every code of the user and inserts the new one
// in a single transaction, so at most one code is live per user.
func (r *Repository) ReplaceResetCode(ctx context.Context, userID int64, codeHash string, expiresAt time.Time) error {
	return r.inTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`DELETE FROM password_reset_codes WHERE user_id = ?`), userID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			tx.Rebind(`INSERT INTO password_reset_codes (user_id, code_hash, expires_at) VALUES (?, ?, ?)`),
			userID, codeHash, expiresAt.UTC())
		return err
	})
}

// RedeemResetCode consumes a live code and stores the new password hash in
// one transaction. The delete is the single-use gate: when it removes no row
// the code was wrong, expired or already used, and ErrNotFound is returned.
func (r *Repository) RedeemResetCode(ctx context.Context, userID int64, codeHash string, now time.Time, passwordHash string) error {
	return r.inTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			tx.Rebind(`DELETE FROM password_reset_codes WHERE user_id = ? AND code_hash = ? AND expires_at > ?`),
			userID, codeHash, now.UTC())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}

		res, err = tx.ExecContext(ctx,
			tx.Rebind(`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`),
			passwordHash, userID)
		if err != nil {
			return err
		}
		if n, err = res.RowsAffected(); err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetResetCodes lists the stored codes of a user, including expired ones.
func (r *Repository) GetResetCodes(ctx context.Context, userID int64) ([]models.PasswordResetCode, error) {
	var codes []models.PasswordResetCode
	err := r.selectAll(ctx, &codes,
		`SELECT id, user_id, code_hash, expires_at, created_at FROM password_reset_codes WHERE user_id = ? ORDER BY id`,
		userID)
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// DeleteExpiredResetCodes removes codes that expired at or before now.
func (r *Repository) DeleteExpiredResetCodes(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM password_reset_codes WHERE expires_at <= ?`, now.UTC())
}
