// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/truepet/adopet/internal/apperr"
	"codeberg.org/truepet/adopet/internal/config"
	"codeberg.org/truepet/adopet/internal/models"
	"codeberg.org/truepet/adopet/internal/repository"
	"codeberg.org/truepet/adopet/internal/services/audit"
	"codeberg.org/truepet/adopet/internal/services/token"
	"codeberg.org/truepet/adopet/internal/services/totp"
	"codeberg.org/truepet/adopet/internal/validation"
)

type Service struct {
	repo   *repository.Repository
	config *config.AuthConfig
	hasher *Hasher
	totp   *totp.Engine
	tokens *token.Issuer
	audit  *audit.Recorder
}

func NewService(
	repo *repository.Repository,
	cfg *config.AuthConfig,
	hasher *Hasher,
	totpEngine *totp.Engine,
	tokens *token.Issuer,
	recorder *audit.Recorder,
) *Service {
	return &Service{
		repo:   repo,
		config: cfg,
		hasher: hasher,
		totp:   totpEngine,
		tokens: tokens,
		audit:  recorder,
	}
}

// RegisterParams holds the parameters for user registration.
// Role is only honoured for trusted callers; HTTP registration leaves it empty.
type RegisterParams struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

// LoginParams holds the submitted login credentials.
type LoginParams struct {
	Email         string
	Password      string
	TwoFactorCode string
}

// LoginResult is returned on a fully authenticated login.
type LoginResult struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

// ProfileParams holds the editable profile fields.
type ProfileParams struct {
	Name  string
	Phone *string
	City  *string
	Bio   *string
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.User, error) {
	name, err := validation.Name(params.Name)
	if err != nil {
		return nil, err
	}
	email, err := validation.RegistrationEmail(params.Email)
	if err != nil {
		return nil, err
	}
	if err := validation.Password(validation.FieldPassword, params.Password); err != nil {
		return nil, err
	}

	role := params.Role
	if role == "" {
		role = models.RoleOrdinary
	}
	if !role.Valid() {
		return nil, apperr.Validation("tipo", "error_validation")
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, s.serverError(ctx, nil, models.ActionCreateUserServerError, fmt.Errorf("failed to check existing user: %w", err))
	}
	if exists {
		return nil, apperr.DuplicateEmail()
	}

	passwordHash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, s.serverError(ctx, nil, models.ActionCreateUserServerError, err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
	}
	if err := s.repo.CreateUser(context.WithoutCancel(ctx), user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.DuplicateEmail()
		}
		return nil, s.serverError(ctx, nil, models.ActionCreateUserServerError, fmt.Errorf("failed to create user: %w", err))
	}

	s.audit.RecordUser(ctx, user.ID, models.ActionCreateUser, audit.Details{
		"nome":  user.Name,
		"email": user.Email,
		"tipo":  string(user.Role),
	})
	slog.InfoContext(ctx, "register_success", "user_id", user.ID, "role", string(user.Role))

	return user, nil
}

// Login authenticates a user and issues a session token.
// Password correctness is confirmed before the second factor is considered.
func (s *Service) Login(ctx context.Context, params LoginParams) (*LoginResult, error) {
	email := validation.NormalizeEmail(params.Email)
	if email == "" {
		return nil, apperr.Validation(validation.FieldEmail, "error_email_required")
	}
	if params.Password == "" {
		return nil, apperr.Validation(validation.FieldPassword, "error_password_required")
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Equalize(params.Password)
			s.audit.Record(ctx, nil, models.ActionLoginFailed, audit.Details{
				"email": email, "field": validation.FieldEmail, "reason": "unknown_email",
			})
			slog.WarnContext(ctx, "login_failed", "reason", "user_not_found")
			return nil, s.credentialError(validation.FieldEmail)
		}
		return nil, s.serverError(ctx, nil, models.ActionLoginServerError, fmt.Errorf("failed to get user: %w", err))
	}

	if !s.hasher.Verify(user.PasswordHash, params.Password) {
		s.audit.RecordUser(ctx, user.ID, models.ActionLoginFailed, audit.Details{
			"email": email, "field": validation.FieldPassword, "reason": "wrong_password",
		})
		slog.WarnContext(ctx, "login_failed", "user_id", user.ID, "reason", "invalid_password")
		return nil, s.credentialError(validation.FieldPassword)
	}

	if user.HasTwoFactor() {
		code := validation.TOTPCode(params.TwoFactorCode)
		if code == "" {
			return nil, apperr.TwoFactorRequired()
		}
		if !s.totp.Validate(code, *user.TwoFactorSecret) {
			s.audit.RecordUser(ctx, user.ID, models.ActionLoginFailed, audit.Details{
				"email": email, "field": validation.FieldTOTP, "reason": "invalid_two_factor_code",
			})
			slog.WarnContext(ctx, "login_failed", "user_id", user.ID, "reason", "invalid_two_factor_code")
			return nil, apperr.InvalidTwoFactorCode()
		}
	}

	signed, expiresAt, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, s.serverError(ctx, &user.ID, models.ActionLoginServerError, err)
	}

	s.audit.RecordUser(ctx, user.ID, models.ActionLogin, audit.Details{"email": email})
	slog.InfoContext(ctx, "login_success", "user_id", user.ID)

	return &LoginResult{Token: signed, UserID: user.ID, ExpiresAt: expiresAt}, nil
}

// EnableTwoFactor generates a new TOTP secret for the user, replacing any
// previous one, and returns the enrollment data.
func (s *Service) EnableTwoFactor(ctx context.Context, userID int64) (*totp.Enrollment, error) {
	if _, err := s.user(ctx, userID, models.ActionEnableTwoFactorServerError); err != nil {
		return nil, err
	}

	enrollment, err := s.totp.Generate(userID)
	if err != nil {
		return nil, s.serverError(ctx, &userID, models.ActionEnableTwoFactorServerError, err)
	}
	if err := s.repo.EnableTwoFactor(context.WithoutCancel(ctx), userID, enrollment.Secret); err != nil {
		return nil, s.serverError(ctx, &userID, models.ActionEnableTwoFactorServerError, fmt.Errorf("failed to store totp secret: %w", err))
	}

	s.audit.RecordUser(ctx, userID, models.ActionEnableTwoFactor, nil)
	slog.InfoContext(ctx, "two_factor_enabled", "user_id", userID)
	return enrollment, nil
}

// DisableTwoFactor clears the user's TOTP secret and flag together.
func (s *Service) DisableTwoFactor(ctx context.Context, userID int64) error {
	if err := s.repo.DisableTwoFactor(context.WithoutCancel(ctx), userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("id", "error_user_not_found")
		}
		return s.serverError(ctx, &userID, models.ActionDisableTwoFactorError, fmt.Errorf("failed to clear totp secret: %w", err))
	}

	s.audit.RecordUser(ctx, userID, models.ActionDisableTwoFactor, nil)
	slog.InfoContext(ctx, "two_factor_disabled", "user_id", userID)
	return nil
}

// Profile returns the user with the given ID.
func (s *Service) Profile(ctx context.Context, userID int64) (*models.User, error) {
	return s.user(ctx, userID, "")
}

// UpdateProfile validates and stores the editable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, params ProfileParams) (*models.User, error) {
	name, err := validation.Name(params.Name)
	if err != nil {
		return nil, err
	}
	phone, err := validation.Phone(params.Phone)
	if err != nil {
		return nil, err
	}
	city, err := validation.City(params.City)
	if err != nil {
		return nil, err
	}
	bio, err := validation.Bio(params.Bio)
	if err != nil {
		return nil, err
	}

	upd := models.ProfileUpdate{Name: name, Phone: phone, City: city, Bio: bio}
	if err := s.repo.UpdateProfile(context.WithoutCancel(ctx), userID, upd); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("id", "error_user_not_found")
		}
		return nil, s.serverError(ctx, &userID, models.ActionUpdateProfileServerError, fmt.Errorf("failed to update profile: %w", err))
	}

	s.audit.RecordUser(ctx, userID, models.ActionUpdateProfile, audit.Details{"nome": name})
	return s.user(ctx, userID, models.ActionUpdateProfileServerError)
}

// CreateAdmin registers an administrator, or promotes the existing account
// with that email. It reports whether a new account was created.
func (s *Service) CreateAdmin(ctx context.Context, name, email, password string) (*models.User, bool, error) {
	user, err := s.Register(ctx, RegisterParams{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     models.RoleAdministrator,
	})
	if err == nil {
		return user, true, nil
	}
	if apperr.KindOf(err) != apperr.KindDuplicateEmail {
		return nil, false, err
	}

	existing, err := s.repo.GetUserByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		return nil, false, fmt.Errorf("failed to get user: %w", err)
	}
	if err := s.repo.SetUserRole(ctx, existing.ID, models.RoleAdministrator); err != nil {
		return nil, false, fmt.Errorf("failed to set admin: %w", err)
	}
	existing.Role = models.RoleAdministrator
	return existing, false, nil
}

// CountAdmins returns the number of administrators.
func (s *Service) CountAdmins(ctx context.Context) (int64, error) {
	return s.repo.CountAdmins(ctx)
}

func (s *Service) user(ctx context.Context, userID int64, failure models.AuditAction) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err == nil {
		return user, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("id", "error_user_not_found")
	}
	err = fmt.Errorf("failed to get user: %w", err)
	if failure == "" {
		slog.ErrorContext(ctx, "profile_lookup_failed", "user_id", userID, "error", err)
		return nil, apperr.Internal(err)
	}
	return nil, s.serverError(ctx, &userID, failure, err)
}

// credentialError hides which field was wrong when generic errors are configured.
func (s *Service) credentialError(field string) error {
	if s.config.GenericLoginErrors {
		return apperr.InvalidCredential("")
	}
	return apperr.InvalidCredential(field)
}

// serverError logs and audits an infrastructure fault and converts it to
// an internal error.
func (s *Service) serverError(ctx context.Context, userID *int64, action models.AuditAction, err error) error {
	slog.ErrorContext(ctx, string(action), "error", err)
	s.audit.Record(ctx, userID, action, audit.Details{"error": err.Error()})
	return apperr.Internal(err)
}
