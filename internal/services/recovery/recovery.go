// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package recovery implements password recovery with short-lived numeric
// codes delivered by email.
//
// A user is in the "code requested" state while a live code row exists for
// them. Requesting a new code replaces the old one; redeeming deletes it.
package recovery

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"codeberg.org/truepet/adopet/internal/apperr"
	"codeberg.org/truepet/adopet/internal/models"
	"codeberg.org/truepet/adopet/internal/repository"
	"codeberg.org/truepet/adopet/internal/services/audit"
	"codeberg.org/truepet/adopet/internal/validation"
)

const (
	// DefaultTTL is how long a reset code stays redeemable.
	DefaultTTL = 15 * time.Minute
	// CodeDigits is the length of a reset code.
	CodeDigits = 6
)

var codeSpace = big.NewInt(1_000_000)

var errNoNotifier = errors.New("mail delivery is not configured")

// Notifier delivers a reset code to the account owner.
type Notifier interface {
	SendResetCode(ctx context.Context, toEmail, name, code string, ttl time.Duration) error
}

// PasswordHasher hashes the new password on redemption.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Controller runs the request and redeem phases of password recovery.
type Controller struct {
	repo     *repository.Repository
	notifier Notifier
	hasher   PasswordHasher
	audit    *audit.Recorder

	ttl    time.Duration
	now    func() time.Time
	random io.Reader
}

// Option configures a Controller.
type Option func(*Controller)

// WithTTL sets the code lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Controller) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithRandom replaces the randomness source used for codes.
func WithRandom(r io.Reader) Option {
	return func(c *Controller) { c.random = r }
}

// NewController creates a Controller. A nil notifier is allowed: every
// request then fails with DeliveryUnavailable after the code is stored.
func NewController(
	repo *repository.Repository,
	notifier Notifier,
	hasher PasswordHasher,
	recorder *audit.Recorder,
	opts ...Option,
) *Controller {
	c := &Controller{
		repo:     repo,
		notifier: notifier,
		hasher:   hasher,
		audit:    recorder,
		ttl:      DefaultTTL,
		now:      time.Now,
		random:   rand.Reader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the code lifetime.
func (c *Controller) TTL() time.Duration {
	return c.ttl
}

// RequestCode issues a fresh code for the account with the given email and
// mails it. The code never appears in the return value.
func (c *Controller) RequestCode(ctx context.Context, email string) error {
	email, err := validation.Email(email)
	if err != nil {
		return err
	}

	user, err := c.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(validation.FieldEmail, "error_email_not_found")
		}
		return c.serverError(ctx, nil, models.ActionRequestResetServerError, fmt.Errorf("failed to get user: %w", err))
	}

	code, err := c.generateCode()
	if err != nil {
		return c.serverError(ctx, &user.ID, models.ActionRequestResetServerError, err)
	}
	expiresAt := c.now().UTC().Add(c.ttl)

	if err := c.repo.ReplaceResetCode(context.WithoutCancel(ctx), user.ID, HashCode(code), expiresAt); err != nil {
		return c.serverError(ctx, &user.ID, models.ActionRequestResetServerError, fmt.Errorf("failed to store reset code: %w", err))
	}

	c.audit.RecordUser(ctx, user.ID, models.ActionRequestResetCode, audit.Details{
		"email":     user.Email,
		"expiresAt": expiresAt,
	})
	slog.InfoContext(ctx, "reset_code_issued", "user_id", user.ID, "expires_at", expiresAt)

	if err := c.deliver(ctx, user, code); err != nil {
		c.audit.RecordUser(ctx, user.ID, models.ActionResetCodeDeliveryFailed, audit.Details{"error": err.Error()})
		slog.ErrorContext(ctx, "reset_code_delivery_failed", "user_id", user.ID, "error", err)
		return apperr.DeliveryUnavailable(err)
	}

	return nil
}

// Redeem consumes a live code for the account and sets a new password.
// Wrong, expired and already used codes are indistinguishable to the caller.
func (c *Controller) Redeem(ctx context.Context, email, code, newPassword string) error {
	email, err := validation.Email(email)
	if err != nil {
		return err
	}
	code, err = validation.ResetCode(code)
	if err != nil {
		return err
	}
	if err := validation.Password(validation.FieldNewPassword, newPassword); err != nil {
		return err
	}

	user, err := c.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.audit.Record(ctx, nil, models.ActionResetInvalidCodeAttempt, audit.Details{
				"email": email, "reason": "unknown_email",
			})
			return apperr.InvalidOrExpiredCode()
		}
		return c.serverError(ctx, nil, models.ActionResetWithCodeServerError, fmt.Errorf("failed to get user: %w", err))
	}

	passwordHash, err := c.hasher.Hash(newPassword)
	if err != nil {
		return c.serverError(ctx, &user.ID, models.ActionResetWithCodeServerError, err)
	}

	err = c.repo.RedeemResetCode(context.WithoutCancel(ctx), user.ID, HashCode(code), c.now().UTC(), passwordHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.audit.RecordUser(ctx, user.ID, models.ActionResetInvalidCodeAttempt, audit.Details{
				"email": email, "reason": "no_live_code",
			})
			slog.WarnContext(ctx, "reset_code_rejected", "user_id", user.ID)
			return apperr.InvalidOrExpiredCode()
		}
		return c.serverError(ctx, &user.ID, models.ActionResetWithCodeServerError, fmt.Errorf("failed to redeem reset code: %w", err))
	}

	c.audit.RecordUser(ctx, user.ID, models.ActionResetWithCodeSuccess, audit.Details{"email": email})
	slog.InfoContext(ctx, "password_reset", "user_id", user.ID)
	return nil
}

// HashCode returns the stored form of a reset code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func (c *Controller) deliver(ctx context.Context, user *models.User, code string) error {
	if c.notifier == nil {
		return errNoNotifier
	}
	return c.notifier.SendResetCode(context.WithoutCancel(ctx), user.Email, user.Name, code, c.ttl)
}

// generateCode draws a uniformly distributed zero-padded numeric code.
func (c *Controller) generateCode() (string, error) {
	n, err := rand.Int(c.random, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate reset code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}

func (c *Controller) serverError(ctx context.Context, userID *int64, action models.AuditAction, err error) error {
	slog.ErrorContext(ctx, string(action), "error", err)
	c.audit.Record(ctx, userID, action, audit.Details{"error": err.Error()})
	return apperr.Internal(err)
}
