// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	TLS       TLSConfig
	Auth      AuthConfig
	SMTP      SMTPConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int      // in MB
	TrustProxy  bool     // take client address from X-Forwarded-For
	CORSOrigins []string // allowed browser origins
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN          string
	QueryTimeout time.Duration
}

type TLSConfig struct {
	Mode     string // auto, acme, manual, off
	CertDir  string // ACME certificate cache
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical for config structs
	JWTSecret          string
	TokenTTL           time.Duration
	TOTPIssuer         string
	GenericLoginErrors bool // hide which of email/password was wrong
	ResetCodeTTL       time.Duration
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
	Timeout  time.Duration
}

// Enabled reports whether enough settings are present to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type RateLimitConfig struct { //nolint:govet // fieldalignment not critical for config structs
	RedisURL       string // empty keeps counters in process memory
	LoginMax       int
	LoginWindow    time.Duration
	RecoveryMax    int
	RecoveryWindow time.Duration
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
			TrustProxy:  cmd.Bool("trust-proxy"),
			CORSOrigins: cmd.StringSlice("cors-origins"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN:          cmd.String("database-dsn"),
			QueryTimeout: cmd.Duration("database-query-timeout"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Auth: AuthConfig{
			JWTSecret:          cmd.String("jwt-secret"),
			TokenTTL:           cmd.Duration("token-ttl"),
			TOTPIssuer:         cmd.String("totp-issuer"),
			GenericLoginErrors: cmd.Bool("generic-login-errors"),
			ResetCodeTTL:       cmd.Duration("reset-code-ttl"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
			Timeout:  cmd.Duration("smtp-timeout"),
		},
		RateLimit: RateLimitConfig{
			RedisURL:       cmd.String("ratelimit-redis-url"),
			LoginMax:       int(cmd.Int("ratelimit-login-max")),
			LoginWindow:    cmd.Duration("ratelimit-login-window"),
			RecoveryMax:    int(cmd.Int("ratelimit-recovery-max")),
			RecoveryWindow: cmd.Duration("ratelimit-recovery-window"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

// MinJWTSecretLength is the shortest accepted HS256 signing key, in bytes.
const MinJWTSecretLength = 32

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required (set JWT_SECRET or auth.jwt_secret)")
	}
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("jwt secret must be at least %d bytes", MinJWTSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.RateLimit.LoginMax <= 0 || c.RateLimit.RecoveryMax <= 0 {
		return fmt.Errorf("rate limit maximums must be positive")
	}
	if c.RateLimit.LoginWindow <= 0 || c.RateLimit.RecoveryWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}
	return nil
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	scheme := "http"
	if shouldUseTLS(mode, host) {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}

func src(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: src("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   3000,
			Usage:   "Port to listen on",
			Sources: src("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: src("BASE_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: src("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.BoolFlag{
			Name:    "trust-proxy",
			Usage:   "Use X-Forwarded-For for the client address (only behind a reverse proxy)",
			Sources: src("TRUST_PROXY", "server.trust_proxy"),
		},
		&cli.StringSliceFlag{
			Name:    "cors-origins",
			Value:   []string{"http://localhost:3000", "http://127.0.0.1:5500"},
			Usage:   "Allowed CORS origins",
			Sources: src("CORS_ORIGINS", "server.cors_origins"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: src("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: src("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/adopet.db",
			Usage:   "Database DSN (SQLite path or postgres:// URL)",
			Sources: src("DATABASE_DSN", "database.dsn"),
		},
		&cli.DurationFlag{
			Name:    "database-query-timeout",
			Value:   5 * time.Second,
			Usage:   "Timeout for a single database round trip",
			Sources: src("DATABASE_QUERY_TIMEOUT", "database.query_timeout"),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, manual, off)",
			Sources: src("TLS_MODE", "tls.mode"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for ACME certificates",
			Sources: src("TLS_CERT_DIR", "tls.cert_dir"),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: src("TLS_EMAIL", "tls.email"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: src("TLS_CERT_FILE", "tls.cert_file"),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: src("TLS_KEY_FILE", "tls.key_file"),
		},
		// Auth flags
		&cli.StringFlag{
			Name:    "jwt-secret",
			Usage:   "Signing key for session tokens (required)",
			Sources: src("JWT_SECRET", "auth.jwt_secret"),
		},
		&cli.DurationFlag{
			Name:    "token-ttl",
			Value:   time.Hour,
			Usage:   "Session token lifetime",
			Sources: src("TOKEN_TTL", "auth.token_ttl"),
		},
		&cli.StringFlag{
			Name:    "totp-issuer",
			Value:   "TruePet",
			Usage:   "Issuer name shown in authenticator apps",
			Sources: src("TOTP_ISSUER", "auth.totp_issuer"),
		},
		&cli.BoolFlag{
			Name:    "generic-login-errors",
			Usage:   "Do not tell whether the email or the password was wrong",
			Sources: src("GENERIC_LOGIN_ERRORS", "auth.generic_login_errors"),
		},
		&cli.DurationFlag{
			Name:    "reset-code-ttl",
			Value:   15 * time.Minute,
			Usage:   "Lifetime of password reset codes",
			Sources: src("RESET_CODE_TTL", "auth.reset_code_ttl"),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host (mail delivery disabled when empty)",
			Sources: src("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: src("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: src("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: src("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: src("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "TruePet Adopet",
			Usage:   "Sender display name",
			Sources: src("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: src("SMTP_TLS", "smtp.tls"),
		},
		&cli.DurationFlag{
			Name:    "smtp-timeout",
			Value:   10 * time.Second,
			Usage:   "Timeout for one mail delivery",
			Sources: src("SMTP_TIMEOUT", "smtp.timeout"),
		},
		// Rate limit flags
		&cli.StringFlag{
			Name:    "ratelimit-redis-url",
			Usage:   "Redis URL for shared rate limit counters (in-memory when empty)",
			Sources: src("RATELIMIT_REDIS_URL", "ratelimit.redis_url"),
		},
		&cli.IntFlag{
			Name:    "ratelimit-login-max",
			Value:   5,
			Usage:   "Login attempts allowed per window and address",
			Sources: src("RATELIMIT_LOGIN_MAX", "ratelimit.login_max"),
		},
		&cli.DurationFlag{
			Name:    "ratelimit-login-window",
			Value:   time.Minute,
			Usage:   "Login rate limit window",
			Sources: src("RATELIMIT_LOGIN_WINDOW", "ratelimit.login_window"),
		},
		&cli.IntFlag{
			Name:    "ratelimit-recovery-max",
			Value:   3,
			Usage:   "Recovery code requests allowed per window and address",
			Sources: src("RATELIMIT_RECOVERY_MAX", "ratelimit.recovery_max"),
		},
		&cli.DurationFlag{
			Name:    "ratelimit-recovery-window",
			Value:   time.Minute,
			Usage:   "Recovery request rate limit window",
			Sources: src("RATELIMIT_RECOVERY_WINDOW", "ratelimit.recovery_window"),
		},
	}
}
