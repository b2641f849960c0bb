// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package validation checks the shape of account input before it reaches
// the services. Every failure is an apperr validation error tagged with the
// offending JSON field.
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"codeberg.org/truepet/adopet/internal/apperr"
)

// JSON field names used in error tags.
const (
	FieldName        = "nome"
	FieldEmail       = "email"
	FieldPassword    = "senha"
	FieldNewPassword = "novaSenha"
	FieldPhone       = "telefone"
	FieldCity        = "cidade"
	FieldBio         = "sobre"
	FieldCode        = "codigo"
	FieldTOTP        = "twoFactorCode"
)

const (
	nameMin = 2
	nameMax = 100
	cityMax = 100
	bioMax  = 1000
)

var (
	phonePattern = regexp.MustCompile(`^\+?\d{10,15}$`)
	codePattern  = regexp.MustCompile(`^\d{6}$`)
)

// Name trims a display name and checks its length.
func Name(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation(FieldName, "error_name_required")
	}
	if n := utf8.RuneCountInString(name); n < nameMin || n > nameMax {
		return "", apperr.Validation(FieldName, "error_name_length")
	}
	return name, nil
}

// Phone validates an optional phone number. Blank values become nil.
func Phone(phone *string) (*string, error) {
	v := optional(phone)
	if v == nil {
		return nil, nil
	}
	if !phonePattern.MatchString(*v) {
		return nil, apperr.Validation(FieldPhone, "error_phone_invalid")
	}
	return v, nil
}

// City validates an optional city name.
func City(city *string) (*string, error) {
	v := optional(city)
	if v != nil && utf8.RuneCountInString(*v) > cityMax {
		return nil, apperr.Validation(FieldCity, "error_city_length")
	}
	return v, nil
}

// Bio validates an optional free-text description.
func Bio(bio *string) (*string, error) {
	v := optional(bio)
	if v != nil && utf8.RuneCountInString(*v) > bioMax {
		return nil, apperr.Validation(FieldBio, "error_bio_length")
	}
	return v, nil
}

// ResetCode checks that a recovery code is exactly six digits.
func ResetCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if !codePattern.MatchString(code) {
		return "", apperr.Validation(FieldCode, "error_code_format")
	}
	return code, nil
}

// TOTPCode normalizes a submitted authenticator code. An empty result means
// no code was supplied.
func TOTPCode(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), " ", "")
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
