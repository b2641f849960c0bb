// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"errors"

	"codeberg.org/truepet/adopet/internal/models"
)

const userColumns = `id, name, email, password_hash, role, two_factor_secret, two_factor_enabled,
	phone, city, bio, created_at, updated_at`

// CreateUser inserts a user and fills in its ID and timestamps.
// Returns ErrDuplicate when the email is taken.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	if user.Role == "" {
		user.Role = models.RoleOrdinary
	}

	var created models.User
	err := r.get(ctx, &created,
		`INSERT INTO users (name, email, password_hash, role, phone, city, bio)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING `+userColumns,
		user.Name, user.Email, user.PasswordHash, user.Role, user.Phone, user.City, user.Bio)
	if err != nil {
		return err
	}

	user.ID = created.ID
	user.CreatedAt = created.CreatedAt
	user.UpdatedAt = created.UpdatedAt
	return nil
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.get(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by normalized email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.get(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = ?`, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// EmailExists checks whether an account uses the given email.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.get(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email)
	return exists, err
}

// CountAdmins returns the number of administrator accounts.
func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.get(ctx, &count, `SELECT COUNT(*) FROM users WHERE role = ?`, models.RoleAdministrator)
	return count, err
}

// EnableTwoFactor stores a new TOTP secret and sets the enabled flag in one statement.
// Any previous secret is overwritten.
func (r *Repository) EnableTwoFactor(ctx context.Context, id int64, secret string) error {
	if secret == "" {
		return errors.New("two-factor secret must not be empty")
	}
	n, err := r.exec(ctx,
		`UPDATE users SET two_factor_secret = ?, two_factor_enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		secret, true, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DisableTwoFactor clears the TOTP secret and the enabled flag in one statement.
func (r *Repository) DisableTwoFactor(ctx context.Context, id int64) error {
	n, err := r.exec(ctx,
		`UPDATE users SET two_factor_secret = NULL, two_factor_enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		false, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile replaces the editable profile fields.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, upd models.ProfileUpdate) error {
	n, err := r.exec(ctx,
		`UPDATE users SET name = ?, phone = ?, city = ?, bio = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		upd.Name, upd.Phone, upd.City, upd.Bio, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserRole changes the role of a user.
func (r *Repository) SetUserRole(ctx context.Context, id int64, role models.Role) error {
	n, err := r.exec(ctx,
		`UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, role, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
