// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/truepet/adopet/internal/config"
	"codeberg.org/truepet/adopet/internal/testutil"
	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type codeSink struct {
	mu    sync.Mutex
	codes []string
}

func (s *codeSink) SendResetCode(_ context.Context, _, _, code string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
	return nil
}

func (s *codeSink) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:        "localhost",
			Port:        3000,
			MaxBodySize: 1,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Database: config.DatabaseConfig{QueryTimeout: 5 * time.Second},
		Auth: config.AuthConfig{
			JWTSecret:    "test-secret-0123456789abcdef012345",
			TokenTTL:     time.Hour,
			TOTPIssuer:   "TruePet",
			ResetCodeTTL: 15 * time.Minute,
		},
		RateLimit: config.RateLimitConfig{
			LoginMax:       5,
			LoginWindow:    time.Minute,
			RecoveryMax:    3,
			RecoveryWindow: time.Minute,
		},
	}
}

type harness struct {
	app   *App
	clock *testutil.Clock
	sink  *codeSink
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	db, _ := testutil.NewTestDB(t)
	clock := testutil.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	sink := &codeSink{}

	app, err := New(context.Background(), cfg, db,
		WithClock(clock.Now),
		WithNotifier(sink),
		WithBcryptCost(bcrypt.MinCost),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	return &harness{app: app, clock: clock, sink: sink}
}

func (h *harness) call(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "192.0.2.10:5555"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.app.Echo.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresSigningKey(t *testing.T) {
	db, _ := testutil.NewTestDB(t)
	cfg := testConfig()
	cfg.Auth.JWTSecret = ""

	_, err := New(context.Background(), cfg, db)

	assert.Error(t, err)
}

func TestScenario_AccountLifecycle(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := h.call(t, http.MethodPost, "/cadastro", map[string]string{
		"nome": "Alice", "email": "alice@example.com", "senha": "Passw0rd!",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID   int64  `json:"id"`
		Tipo string `json:"tipo"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "ordinary", created.Tipo)

	login := map[string]string{"email": "alice@example.com", "senha": "Passw0rd!"}
	rec = h.call(t, http.MethodPost, "/login", login, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var session struct {
		Token  string `json:"token"`
		UserID int64  `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, created.ID, session.UserID)
	auth := map[string]string{"Authorization": "Bearer " + session.Token}

	rec = h.call(t, http.MethodPost, "/enable-two-factor", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var enrollment struct {
		OTPAuthURL string `json:"otpauthUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enrollment))
	assert.Contains(t, enrollment.OTPAuthURL, "TruePet:"+itoa(created.ID))

	rec = h.call(t, http.MethodPost, "/login", login, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "two_factor_required")

	rec = h.call(t, http.MethodPost, "/disable-two-factor", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.call(t, http.MethodPost, "/login", map[string]string{
		"email": "alice@example.com", "senha": "Passw0rd!", "twoFactorCode": "123456",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.call(t, http.MethodGet, "/perfil/"+itoa(created.ID), nil, auth)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestScenario_PasswordRecovery(t *testing.T) {
	h := newHarness(t, testConfig())
	rec := h.call(t, http.MethodPost, "/cadastro", map[string]string{
		"nome": "Alice", "email": "alice@example.com", "senha": "Passw0rd!",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.call(t, http.MethodPost, "/solicitar-codigo-recuperacao", map[string]string{"email": "alice@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	code := h.sink.last()
	require.Len(t, code, 6)

	h.clock.Advance(16 * time.Minute)
	rec = h.call(t, http.MethodPost, "/redefinir-senha-com-codigo", map[string]string{
		"email": "alice@example.com", "codigo": code, "novaSenha": "N3wpass!x",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_or_expired_code")
}

func TestRecovery_NoMailConfigured(t *testing.T) {
	db, repo := testutil.NewTestDB(t)
	app, err := New(context.Background(), testConfig(), db, WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	h := &harness{app: app}
	testutil.NewTestUser(t, repo, "alice@example.com")

	rec := h.call(t, http.MethodPost, "/solicitar-codigo-recuperacao", map[string]string{"email": "alice@example.com"}, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "delivery_unavailable")
}

func TestLoginRateLimit_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RateLimit.RedisURL = "redis://" + mr.Addr()
	h := newHarness(t, cfg)
	assert.Empty(t, h.app.Janitor.pruners)

	body := map[string]string{"email": "nobody@example.com", "senha": "Passw0rd!"}
	for range 5 {
		rec := h.call(t, http.MethodPost, "/login", body, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := h.call(t, http.MethodPost, "/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	h.clock.Advance(61 * time.Second)
	rec = h.call(t, http.MethodPost, "/login", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNew_RedisUnreachable(t *testing.T) {
	db, _ := testutil.NewTestDB(t)
	cfg := testConfig()
	cfg.RateLimit.RedisURL = "redis://127.0.0.1:1"

	_, err := New(context.Background(), cfg, db)

	assert.Error(t, err)
}

func TestMiddleware_RequestIDAndSecurityHeaders(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := h.call(t, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))
}

func TestMiddleware_TrailingSlash(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := h.call(t, http.MethodGet, "/health/", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_CORS(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := h.call(t, http.MethodOptions, "/login", nil, map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, "http://localhost:3000", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = h.call(t, http.MethodOptions, "/login", nil, map[string]string{
		"Origin":                        "http://evil.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestMiddleware_BodyLimit(t *testing.T) {
	h := newHarness(t, testConfig())
	big := strings.Repeat("a", 2<<20)

	rec := h.call(t, http.MethodPost, "/cadastro", map[string]string{"nome": big}, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestIPExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.7")

	assert.Equal(t, "10.0.0.5", ipExtractor(false)(req))
	assert.Equal(t, "203.0.113.7", ipExtractor(true)(req))
}
