// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"codeberg.org/truepet/adopet/internal/auth"
	"codeberg.org/truepet/adopet/internal/models"
	authsvc "codeberg.org/truepet/adopet/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains handlers for login, registration, two-factor
// management and profiles.
type AuthHandlers struct {
	auth *authsvc.Service
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *authsvc.Service) *AuthHandlers {
	return &AuthHandlers{auth: svc}
}

// LoginRequest is the request body for POST /login.
type LoginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"senha"`
	TwoFactorCode string `json:"twoFactorCode"`
}

// LoginResponse is returned on a successful login.
type LoginResponse struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login authenticates with email, password and, when enabled, a TOTP code.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.auth.Login(c.Request().Context(), authsvc.LoginParams{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, LoginResponse{
		Token:     result.Token,
		UserID:    result.UserID,
		ExpiresAt: result.ExpiresAt,
	})
}

// RegisterRequest is the request body for POST /cadastro.
type RegisterRequest struct {
	Name     string `json:"nome"`
	Email    string `json:"email"`
	Password string `json:"senha"`
}

// RegisterResponse describes the created account.
type RegisterResponse struct {
	ID    int64       `json:"id"`
	Name  string      `json:"nome"`
	Email string      `json:"email"`
	Role  models.Role `json:"tipo"`
}

// Register creates an ordinary account.
func (h *AuthHandlers) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := h.auth.Register(c.Request().Context(), authsvc.RegisterParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, RegisterResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	})
}

// EnableTwoFactorResponse carries the enrollment data for an authenticator app.
type EnableTwoFactorResponse struct {
	QRCode     string `json:"qrCode"`
	OTPAuthURL string `json:"otpauthUrl"`
}

// EnableTwoFactor enrolls the caller in TOTP, replacing any earlier secret.
func (h *AuthHandlers) EnableTwoFactor(c echo.Context) error {
	p := auth.GetPrincipal(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized)
	}

	enrollment, err := h.auth.EnableTwoFactor(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, EnableTwoFactorResponse{
		QRCode:     enrollment.QRCode,
		OTPAuthURL: enrollment.URL,
	})
}

// DisableTwoFactor turns TOTP off for the caller.
func (h *AuthHandlers) DisableTwoFactor(c echo.Context) error {
	p := auth.GetPrincipal(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized)
	}

	if err := h.auth.DisableTwoFactor(c.Request().Context(), p.UserID); err != nil {
		return err
	}
	return message(c, "msg_two_factor_disabled")
}

// ProfileRequest is the request body for PUT /perfil/:id.
type ProfileRequest struct {
	Name  string  `json:"nome"`
	Phone *string `json:"telefone"`
	City  *string `json:"cidade"`
	Bio   *string `json:"sobre"`
}

// Profile returns the account named by the id path parameter.
func (h *AuthHandlers) Profile(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	user, err := h.auth.Profile(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateProfile changes the editable fields of the account named by id.
func (h *AuthHandlers) UpdateProfile(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	var req ProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := h.auth.UpdateProfile(c.Request().Context(), id, authsvc.ProfileParams{
		Name:  req.Name,
		Phone: req.Phone,
		City:  req.City,
		Bio:   req.Bio,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func userID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, "error_user_not_found")
	}
	return id, nil
}
