// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package validation

import (
	"net/mail"
	"slices"
	"strings"

	"codeberg.org/truepet/adopet/internal/apperr"
)

var (
	validExtensions   = []string{"com", "org", "net", "gov", "edu", "br", "uk", "fr", "de", "jp"}
	validSecondLevels = []string{"com", "org", "net", "gov", "edu", "co"}
)

// NormalizeEmail trims and lowercases an address. Lookups and uniqueness
// always use the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Email normalizes an address and checks its basic local@domain shape.
func Email(email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", apperr.Validation(FieldEmail, "error_email_required")
	}

	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "", apperr.Validation(FieldEmail, "error_email_invalid")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperr.Validation(FieldEmail, "error_email_invalid")
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 || slices.Contains(labels, "") {
		return "", apperr.Validation(FieldEmail, "error_email_invalid")
	}
	return email, nil
}

// RegistrationEmail applies Email and then restricts the domain suffix to
// the allowed extensions. Three-label domains need an allowed second-level
// label (com.br is always accepted). Deeper domains are rejected.
func RegistrationEmail(email string) (string, error) {
	email, err := Email(email)
	if err != nil {
		return "", err
	}

	_, domain, _ := strings.Cut(email, "@")
	labels := strings.Split(domain, ".")
	ext := labels[len(labels)-1]

	if !allowedDomain(labels, ext) {
		return "", apperr.Validation(FieldEmail, "error_email_extension")
	}
	return email, nil
}

func allowedDomain(labels []string, ext string) bool {
	if len(labels) > 3 || len(ext) < 2 || len(ext) > 4 {
		return false
	}
	if !slices.Contains(validExtensions, ext) {
		return false
	}
	if len(labels) == 3 {
		second := labels[1]
		if second == "com" && ext == "br" {
			return true
		}
		return slices.Contains(validSecondLevels, second)
	}
	return true
}
