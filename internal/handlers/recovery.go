// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"codeberg.org/truepet/adopet/internal/services/recovery"
	"github.com/labstack/echo/v4"
)

// RecoveryHandlers contains handlers for password recovery.
type RecoveryHandlers struct {
	recovery *recovery.Controller
}

// NewRecovery creates a new RecoveryHandlers instance.
func NewRecovery(ctrl *recovery.Controller) *RecoveryHandlers {
	return &RecoveryHandlers{recovery: ctrl}
}

// RequestCodeRequest is the request body for POST /solicitar-codigo-recuperacao.
type RequestCodeRequest struct {
	Email string `json:"email"`
}

// RequestCode mails a reset code to the account owner.
func (h *RecoveryHandlers) RequestCode(c echo.Context) error {
	var req RequestCodeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.recovery.RequestCode(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return message(c, "msg_reset_code_sent")
}

// ResetRequest is the request body for POST /redefinir-senha-com-codigo.
type ResetRequest struct {
	Email       string `json:"email"`
	Code        string `json:"codigo"`
	NewPassword string `json:"novaSenha"`
}

// ResetWithCode sets a new password using a mailed reset code.
func (h *RecoveryHandlers) ResetWithCode(c echo.Context) error {
	var req ResetRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.recovery.Redeem(c.Request().Context(), req.Email, req.Code, req.NewPassword); err != nil {
		return err
	}
	return message(c, "msg_password_reset")
}
