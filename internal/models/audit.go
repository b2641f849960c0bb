// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// AuditAction is the closed vocabulary of audit log tags.
type AuditAction string

const (
	ActionLogin                      AuditAction = "login"
	ActionLoginFailed                AuditAction = "login_failed"
	ActionLoginServerError           AuditAction = "login_server_error"
	ActionCreateUser                 AuditAction = "create_user"
	ActionCreateUserServerError      AuditAction = "create_user_server_error"
	ActionEnableTwoFactor            AuditAction = "enable_two_factor"
	ActionEnableTwoFactorServerError AuditAction = "enable_two_factor_server_error"
	ActionDisableTwoFactor           AuditAction = "disable_two_factor"
	ActionDisableTwoFactorError      AuditAction = "disable_two_factor_server_error"
	ActionUpdateProfile              AuditAction = "update_profile"
	ActionUpdateProfileServerError   AuditAction = "update_profile_server_error"
	ActionRequestResetCode           AuditAction = "request_password_reset_code"
	ActionResetCodeDeliveryFailed    AuditAction = "request_password_reset_code_delivery_failed"
	ActionRequestResetServerError    AuditAction = "request_password_reset_code_server_error"
	ActionResetWithCodeSuccess       AuditAction = "password_reset_with_code_success"
	ActionResetInvalidCodeAttempt    AuditAction = "password_reset_invalid_code_attempt"
	ActionResetWithCodeServerError   AuditAction = "password_reset_with_code_server_error"
)

// AuditLogEntry is an append-only record of a security-relevant action.
type AuditLogEntry struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64       `db:"id" json:"id"`
	UserID    *int64      `db:"user_id" json:"userId"`
	Action    AuditAction `db:"action" json:"action"`
	Details   *string     `db:"details" json:"details,omitempty"` // JSON object
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
}
