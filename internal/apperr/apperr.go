// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package apperr defines the closed set of failures the account services
// can report to callers.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an application error. The set is closed; the HTTP layer
// maps every value to a status code.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindInvalidCredential
	KindTwoFactorRequired
	KindInvalidTwoFactorCode
	KindDuplicateEmail
	KindNotFound
	KindInvalidOrExpiredCode
	KindRateLimited
	KindDeliveryUnavailable
	KindInternal
)

var kindNames = map[Kind]string{
	KindValidation:           "validation_error",
	KindInvalidCredential:    "invalid_credential",
	KindTwoFactorRequired:    "two_factor_required",
	KindInvalidTwoFactorCode: "invalid_two_factor_code",
	KindDuplicateEmail:       "duplicate_email",
	KindNotFound:             "not_found",
	KindInvalidOrExpiredCode: "invalid_or_expired_code",
	KindRateLimited:          "rate_limited",
	KindDeliveryUnavailable:  "delivery_unavailable",
	KindInternal:             "internal_error",
}

// String returns the machine-readable code for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error type returned by the services for domain outcomes.
type Error struct { //nolint:govet // fieldalignment: readability over optimization
	Kind       Kind
	Field      string        // offending input field, empty when ambiguous
	Message    string        // i18n message ID
	RetryAfter time.Duration // only set for KindRateLimited
	Err        error         // underlying cause, never shown to clients
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Field == "" || t.Field == e.Field)
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func InvalidCredential(field string) *Error {
	msg := "error_invalid_credential"
	switch field {
	case "email":
		msg = "error_invalid_credential_email"
	case "senha":
		msg = "error_invalid_credential_password"
	}
	return &Error{Kind: KindInvalidCredential, Field: field, Message: msg}
}

func TwoFactorRequired() *Error {
	return &Error{Kind: KindTwoFactorRequired, Field: "twoFactorCode", Message: "error_two_factor_required"}
}

func InvalidTwoFactorCode() *Error {
	return &Error{Kind: KindInvalidTwoFactorCode, Field: "twoFactorCode", Message: "error_invalid_two_factor_code"}
}

func DuplicateEmail() *Error {
	return &Error{Kind: KindDuplicateEmail, Field: "email", Message: "error_duplicate_email"}
}

func NotFound(field, message string) *Error {
	return &Error{Kind: KindNotFound, Field: field, Message: message}
}

func InvalidOrExpiredCode() *Error {
	return &Error{Kind: KindInvalidOrExpiredCode, Field: "codigo", Message: "error_invalid_or_expired_code"}
}

func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: "error_rate_limited", RetryAfter: retryAfter}
}

func DeliveryUnavailable(cause error) *Error {
	return &Error{Kind: KindDeliveryUnavailable, Message: "error_delivery_unavailable", Err: cause}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "error_internal", Err: cause}
}
