// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"codeberg.org/truepet/adopet/internal/apperr"
)

// PasswordPolicy describes the fixed password rules.
type PasswordPolicy struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireDigit     bool
	SpecialChars     string
}

// DefaultPasswordPolicy is the policy for registration and password reset.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        8,
		MaxLength:        12,
		RequireUppercase: true,
		RequireDigit:     true,
		SpecialChars:     "!@#$%^&*",
	}
}

// Check returns the message IDs of every rule the password breaks, in a
// stable order. An empty result means the password is acceptable.
func (p PasswordPolicy) Check(password string) []string {
	var failures []string

	if n := utf8.RuneCountInString(password); n < p.MinLength || n > p.MaxLength {
		failures = append(failures, "error_password_length")
	}

	var hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(p.SpecialChars, r):
			hasSpecial = true
		}
	}

	if p.RequireUppercase && !hasUpper {
		failures = append(failures, "error_password_uppercase")
	}
	if p.RequireDigit && !hasDigit {
		failures = append(failures, "error_password_digit")
	}
	if p.SpecialChars != "" && !hasSpecial {
		failures = append(failures, "error_password_special")
	}
	return failures
}

// Password checks password against the default policy and reports the first
// broken rule tagged with field.
func Password(field, password string) error {
	if password == "" {
		return apperr.Validation(field, "error_password_required")
	}
	if failures := DefaultPasswordPolicy().Check(password); len(failures) > 0 {
		return apperr.Validation(field, failures[0])
	}
	return nil
}
