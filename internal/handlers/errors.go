// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"codeberg.org/truepet/adopet/internal/apperr"
	"codeberg.org/truepet/adopet/internal/i18n"
	"github.com/labstack/echo/v4"
)

// ErrorBody is the JSON envelope for every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure. Message is localized.
type ErrorDetail struct {
	Code       string `json:"code"`
	Field      string `json:"field,omitempty"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"` // seconds
}

// StatusFor maps an error kind to its HTTP status code.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindInvalidCredential:
		return http.StatusUnauthorized
	case apperr.KindTwoFactorRequired:
		return http.StatusUnauthorized
	case apperr.KindInvalidTwoFactorCode:
		return http.StatusUnauthorized
	case apperr.KindDuplicateEmail:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidOrExpiredCode:
		return http.StatusBadRequest
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindDeliveryUnavailable:
		return http.StatusInternalServerError
	case apperr.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders errors returned by handlers and middleware as JSON.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := errorResponse(c, err)
	if body.Error.RetryAfter > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(body.Error.RetryAfter))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "error_response_failed", "error", err)
	}
}

func errorResponse(c echo.Context, err error) (int, ErrorBody) {
	ctx := c.Request().Context()

	if e, ok := apperr.As(err); ok {
		status := StatusFor(e.Kind)
		if status >= http.StatusInternalServerError {
			slog.ErrorContext(ctx, "request_failed", "code", e.Kind.String(), "error", e)
		}
		detail := ErrorDetail{
			Code:    e.Kind.String(),
			Field:   e.Field,
			Message: i18n.T(ctx, e.Message),
		}
		if e.Kind == apperr.KindRateLimited {
			detail.RetryAfter = int(math.Ceil(e.RetryAfter.Seconds()))
			if detail.RetryAfter < 1 {
				detail.RetryAfter = 1
			}
		}
		return status, ErrorBody{Error: detail}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, ErrorBody{Error: ErrorDetail{
			Code:    httpErrorCode(he.Code),
			Message: i18n.T(ctx, httpErrorMessage(he)),
		}}
	}

	slog.ErrorContext(ctx, "request_failed", "error", err)
	return http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{
		Code:    apperr.KindInternal.String(),
		Message: i18n.T(ctx, "error_internal"),
	}}
}

func httpErrorCode(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	default:
		return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
	}
}

// httpErrorMessage returns the message id carried by he, or a generic one
// for errors raised by echo itself.
func httpErrorMessage(he *echo.HTTPError) string {
	if msg, ok := he.Message.(string); ok && strings.HasPrefix(msg, "error_") {
		return msg
	}
	switch he.Code {
	case http.StatusUnauthorized:
		return "error_unauthorized"
	case http.StatusForbidden:
		return "error_forbidden"
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return "error_route_not_found"
	case http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return "error_invalid_body"
	}
	if he.Code >= http.StatusInternalServerError {
		return "error_internal"
	}
	return "error_validation"
}
