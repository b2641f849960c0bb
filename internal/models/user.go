// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
)

// Role is the closed set of account types.
type Role string

const (
	RoleOrdinary      Role = "ordinary"
	RoleOrganization  Role = "organization"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOrdinary, RoleOrganization, RoleAdministrator:
		return true
	}
	return false
}

// User is an account. The password hash and TOTP secret never leave the server.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID               int64     `db:"id" json:"id"`
	Name             string    `db:"name" json:"nome"`
	Email            string    `db:"email" json:"email"`
	PasswordHash     string    `db:"password_hash" json:"-"`
	Role             Role      `db:"role" json:"tipo"`
	TwoFactorSecret  *string   `db:"two_factor_secret" json:"-"`
	TwoFactorEnabled bool      `db:"two_factor_enabled" json:"twoFactorEnabled"`
	Phone            *string   `db:"phone" json:"telefone"`
	City             *string   `db:"city" json:"cidade"`
	Bio              *string   `db:"bio" json:"sobre"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

// HasTwoFactor reports whether login requires a TOTP code.
func (u *User) HasTwoFactor() bool {
	return u.TwoFactorEnabled && u.TwoFactorSecret != nil && *u.TwoFactorSecret != ""
}

// ProfileUpdate carries the editable profile fields. Nil pointers clear the field.
type ProfileUpdate struct {
	Name  string
	Phone *string
	City  *string
	Bio   *string
}
