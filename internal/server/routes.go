// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"codeberg.org/truepet/adopet/internal/handlers"
	"codeberg.org/truepet/adopet/internal/middleware"
	"codeberg.org/truepet/adopet/internal/ratelimit"
	"codeberg.org/truepet/adopet/internal/repository"
	authsvc "codeberg.org/truepet/adopet/internal/services/auth"
	"codeberg.org/truepet/adopet/internal/services/recovery"
	"codeberg.org/truepet/adopet/internal/services/token"
	"github.com/labstack/echo/v4"
)

type routeDeps struct {
	repo            *repository.Repository
	tokens          *token.Issuer
	auth            *authsvc.Service
	recovery        *recovery.Controller
	loginLimiter    ratelimit.Limiter
	recoveryLimiter ratelimit.Limiter
}

func setupRoutes(e *echo.Echo, deps *routeDeps) {
	h := handlers.New(deps.repo)
	authH := handlers.NewAuth(deps.auth)
	recoveryH := handlers.NewRecovery(deps.recovery)

	requireToken := middleware.RequireToken(deps.tokens)
	selfOrAdmin := middleware.RequireSelfOrAdmin("id")

	// Public
	e.GET("/health", h.Health)
	e.POST("/login", authH.Login, middleware.RateLimit("login", deps.loginLimiter))
	e.POST("/cadastro", authH.Register)
	e.POST("/solicitar-codigo-recuperacao", recoveryH.RequestCode, middleware.RateLimit("recovery", deps.recoveryLimiter))
	e.POST("/redefinir-senha-com-codigo", recoveryH.ResetWithCode)

	// Bearer token required
	e.POST("/enable-two-factor", authH.EnableTwoFactor, requireToken)
	e.POST("/disable-two-factor", authH.DisableTwoFactor, requireToken)
	e.GET("/perfil/:id", authH.Profile, requireToken, selfOrAdmin)
	e.PUT("/perfil/:id", authH.UpdateProfile, requireToken, selfOrAdmin)
}
