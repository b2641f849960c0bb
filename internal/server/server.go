// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires the services into an echo application and runs it.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/truepet/adopet/internal/config"
	"codeberg.org/truepet/adopet/internal/database"
	"codeberg.org/truepet/adopet/internal/i18n"
	"codeberg.org/truepet/adopet/internal/ratelimit"
	"codeberg.org/truepet/adopet/internal/repository"
	"codeberg.org/truepet/adopet/internal/services/audit"
	authsvc "codeberg.org/truepet/adopet/internal/services/auth"
	"codeberg.org/truepet/adopet/internal/services/email"
	"codeberg.org/truepet/adopet/internal/services/recovery"
	"codeberg.org/truepet/adopet/internal/services/token"
	"codeberg.org/truepet/adopet/internal/services/totp"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

const shutdownTimeout = 10 * time.Second

// App is the assembled HTTP application.
type App struct {
	Echo    *echo.Echo
	Janitor *Janitor

	redis *redis.Client
}

// Option customizes App construction.
type Option func(*buildOptions)

type buildOptions struct {
	now        func() time.Time
	notifier   recovery.Notifier
	hasNotify  bool
	bcryptCost int
}

// WithClock replaces the time source of every time-dependent service.
func WithClock(now func() time.Time) Option {
	return func(o *buildOptions) { o.now = now }
}

// WithNotifier replaces the SMTP notifier. A nil notifier disables delivery.
func WithNotifier(n recovery.Notifier) Option {
	return func(o *buildOptions) {
		o.notifier = n
		o.hasNotify = true
	}
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(o *buildOptions) { o.bcryptCost = cost }
}

// New builds the application on an open, migrated database.
func New(ctx context.Context, cfg *config.Config, db *sqlx.DB, opts ...Option) (*App, error) {
	o := buildOptions{now: time.Now, bcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repo := repository.New(db, repository.WithQueryTimeout(cfg.Database.QueryTimeout))

	tokens, err := token.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, token.WithClock(o.now))
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	hasher := authsvc.NewHasher(o.bcryptCost)
	recorder := audit.NewRecorder(repo)

	authService := authsvc.NewService(repo, &cfg.Auth, hasher,
		totp.New(cfg.Auth.TOTPIssuer, totp.WithClock(o.now)), tokens, recorder)

	notifier := o.notifier
	if !o.hasNotify {
		notifier = newNotifier(&cfg.SMTP)
	}
	recoveryCtrl := recovery.NewController(repo, notifier, hasher, recorder,
		recovery.WithTTL(cfg.Auth.ResetCodeTTL), recovery.WithClock(o.now))

	app := &App{}
	loginLimiter, recoveryLimiter, pruners, err := app.newLimiters(ctx, &cfg.RateLimit, o.now)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	setupRoutes(e, &routeDeps{
		repo:            repo,
		tokens:          tokens,
		auth:            authService,
		recovery:        recoveryCtrl,
		loginLimiter:    loginLimiter,
		recoveryLimiter: recoveryLimiter,
	})

	app.Echo = e
	app.Janitor = NewJanitor(repo, DefaultSweepInterval, o.now, pruners...)
	return app, nil
}

// Close releases resources held by the application.
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

func (a *App) newLimiters(ctx context.Context, cfg *config.RateLimitConfig, now func() time.Time) (login, rec ratelimit.Limiter, pruners []ratelimit.Pruner, err error) {
	loginRule := ratelimit.Rule{Max: cfg.LoginMax, Window: cfg.LoginWindow}
	recoveryRule := ratelimit.Rule{Max: cfg.RecoveryMax, Window: cfg.RecoveryWindow}

	if cfg.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect rate limit store: %w", err)
		}
		a.redis = client
		slog.Info("rate_limit_backend", "backend", "redis")
		return ratelimit.NewRedis(client, "login", loginRule, ratelimit.WithClock(now)),
			ratelimit.NewRedis(client, "recovery", recoveryRule, ratelimit.WithClock(now)),
			nil, nil
	}

	slog.Info("rate_limit_backend", "backend", "memory")
	loginMem := ratelimit.NewMemory(loginRule, ratelimit.WithClock(now))
	recoveryMem := ratelimit.NewMemory(recoveryRule, ratelimit.WithClock(now))
	return loginMem, recoveryMem, []ratelimit.Pruner{loginMem, recoveryMem}, nil
}

// newNotifier returns the SMTP notifier, or nil when mail is not configured.
func newNotifier(cfg *config.SMTPConfig) recovery.Notifier {
	if !cfg.Enabled() {
		slog.Warn("mail_delivery_disabled", "reason", "smtp host or from address missing")
		return nil
	}
	svc, err := email.NewService(cfg)
	if err != nil {
		slog.Warn("mail_delivery_disabled", "error", err)
		return nil
	}
	return svc
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	SetupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := i18n.Init(); err != nil {
		return fmt.Errorf("failed to init i18n: %w", err)
	}

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			slog.Error("failed to close rate limit store", "error", closeErr)
		}
	}()

	go app.Janitor.Run(ctx)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"database", string(database.DialectFor(cfg.Database.DSN)),
	)
	return serve(ctx, app.Echo, cfg)
}

func serve(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	errChan := make(chan error, 2)
	var httpServer *http.Server

	switch tlsResult.Mode {
	case TLSModeOff:
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("server running", "url", cfg.Server.BaseURL)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeACME:
		go func() {
			slog.Info("server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, ":443", tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		httpServer = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("http redirect active", "addr", ":80")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeManual:
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, addr, tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown main server", "error", err)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown HTTP redirect server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer starts the Echo server with a custom TLS configuration.
func startTLSServer(e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.TLSServer.Serve(e.TLSListener)
}
