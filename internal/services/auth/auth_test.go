// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"codeberg.org/truepet/adopet/internal/apperr"
	"codeberg.org/truepet/adopet/internal/config"
	"codeberg.org/truepet/adopet/internal/models"
	"codeberg.org/truepet/adopet/internal/repository"
	"codeberg.org/truepet/adopet/internal/services/audit"
	"codeberg.org/truepet/adopet/internal/services/auth"
	"codeberg.org/truepet/adopet/internal/services/token"
	"codeberg.org/truepet/adopet/internal/services/totp"
	"codeberg.org/truepet/adopet/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	svc    *auth.Service
	repo   *repository.Repository
	clock  *testutil.Clock
	totp   *totp.Engine
	tokens *token.Issuer
	cfg    *config.AuthConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	clock := testutil.NewClock(time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC))

	cfg := &config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour, TOTPIssuer: "TruePet"}
	tokens, err := token.NewIssuer(cfg.JWTSecret, cfg.TokenTTL, token.WithClock(clock.Now))
	require.NoError(t, err)
	engine := totp.New(cfg.TOTPIssuer, totp.WithClock(clock.Now))

	svc := auth.NewService(repo, cfg, auth.NewHasher(bcrypt.MinCost), engine, tokens, audit.NewRecorder(repo))
	return &fixture{svc: svc, repo: repo, clock: clock, totp: engine, tokens: tokens, cfg: cfg}
}

func (f *fixture) register(t *testing.T, email string) *models.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Name: "Alice", Email: email, Password: testutil.DefaultPassword,
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) auditActions(t *testing.T) []models.AuditAction {
	t.Helper()
	entries, err := f.repo.ListAuditLogs(context.Background(), repository.AuditFilter{})
	require.NoError(t, err)
	actions := make([]models.AuditAction, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		actions = append(actions, entries[i].Action)
	}
	return actions
}

func requireKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok, "expected apperr.Error, got %v", err)
	require.Equal(t, kind, e.Kind, "got %v", err)
	return e
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	user, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Name: " Alice ", Email: "Alice@Example.com", Password: "Passw0rd!",
	})

	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, models.RoleOrdinary, user.Role)
	assert.NotEqual(t, "Passw0rd!", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Passw0rd!")))
	assert.Equal(t, []models.AuditAction{models.ActionCreateUser}, f.auditActions(t))
}

func TestRegister_PasswordNeverStoredInPlaintext(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice@example.com")

	stored, err := f.repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.PasswordHash, testutil.DefaultPassword)

	entries, err := f.repo.ListAuditLogs(context.Background(), repository.AuditFilter{})
	require.NoError(t, err)
	for _, e := range entries {
		if e.Details != nil {
			assert.NotContains(t, *e.Details, testutil.DefaultPassword)
		}
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	_, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Name: "Other", Email: "ALICE@example.com", Password: "Passw0rd!",
	})

	e := requireKind(t, err, apperr.KindDuplicateEmail)
	assert.Equal(t, "email", e.Field)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params auth.RegisterParams
		field  string
	}{
		{"short name", auth.RegisterParams{Name: "A", Email: "a@example.com", Password: "Passw0rd!"}, "nome"},
		{"bad extension", auth.RegisterParams{Name: "Alice", Email: "a@example.io", Password: "Passw0rd!"}, "email"},
		{"weak password", auth.RegisterParams{Name: "Alice", Email: "a@example.com", Password: "password"}, "senha"},
		{"unknown role", auth.RegisterParams{Name: "Alice", Email: "a@example.com", Password: "Passw0rd!", Role: "root"}, "tipo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.params)
			e := requireKind(t, err, apperr.KindValidation)
			assert.Equal(t, tt.field, e.Field)
		})
	}
}

func TestRegister_RoleOverride(t *testing.T) {
	f := newFixture(t)

	user, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Name: "Shelter", Email: "shelter@example.org", Password: "Passw0rd!", Role: models.RoleOrganization,
	})

	require.NoError(t, err)
	assert.Equal(t, models.RoleOrganization, user.Role)
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice@example.com")

	result, err := f.svc.Login(context.Background(), auth.LoginParams{
		Email: "alice@example.com", Password: testutil.DefaultPassword,
	})

	require.NoError(t, err)
	assert.Equal(t, user.ID, result.UserID)
	assert.Equal(t, f.clock.Now().Add(time.Hour), result.ExpiresAt)

	claims, err := f.tokens.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleOrdinary, claims.Role)

	assert.Equal(t, []models.AuditAction{models.ActionCreateUser, models.ActionLogin}, f.auditActions(t))
}

func TestLogin_TokenRoleMatchesStoredRole(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Name: "Shelter", Email: "shelter@example.org", Password: "Passw0rd!", Role: models.RoleOrganization,
	})
	require.NoError(t, err)

	result, err := f.svc.Login(context.Background(), auth.LoginParams{Email: "shelter@example.org", Password: "Passw0rd!"})
	require.NoError(t, err)

	claims, err := f.tokens.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOrganization, claims.Role)
}

func TestLogin_UnknownEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), auth.LoginParams{Email: "nobody@example.com", Password: "Passw0rd!"})

	e := requireKind(t, err, apperr.KindInvalidCredential)
	assert.Equal(t, "email", e.Field)

	entries, err := f.repo.ListAuditLogs(context.Background(), repository.AuditFilter{Action: models.ActionLoginFailed})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].UserID)
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice@example.com")

	_, err := f.svc.Login(context.Background(), auth.LoginParams{Email: "alice@example.com", Password: "Wr0ngpass!"})

	e := requireKind(t, err, apperr.KindInvalidCredential)
	assert.Equal(t, "senha", e.Field)

	entries, err := f.repo.ListAuditLogs(context.Background(), repository.AuditFilter{Action: models.ActionLoginFailed})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].UserID)
	assert.Equal(t, user.ID, *entries[0].UserID)
	require.NotNil(t, entries[0].Details)

	var details map[string]any
	require.NoError(t, json.Unmarshal([]byte(*entries[0].Details), &details))
	assert.Equal(t, "wrong_password", details["reason"])
	assert.NotContains(t, *entries[0].Details, "Wr0ngpass!")
}

func TestLogin_GenericErrors(t *testing.T) {
	f := newFixture(t)
	f.cfg.GenericLoginErrors = true
	f.register(t, "alice@example.com")

	_, err := f.svc.Login(context.Background(), auth.LoginParams{Email: "nobody@example.com", Password: "Passw0rd!"})
	e := requireKind(t, err, apperr.KindInvalidCredential)
	assert.Empty(t, e.Field)
	assert.Equal(t, "error_invalid_credential", e.Message)

	_, err = f.svc.Login(context.Background(), auth.LoginParams{Email: "alice@example.com", Password: "Wr0ngpass!"})
	e = requireKind(t, err, apperr.KindInvalidCredential)
	assert.Empty(t, e.Field)
}

func TestLogin_MissingFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), auth.LoginParams{Password: "x"})
	e := requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, "email", e.Field)

	_, err = f.svc.Login(context.Background(), auth.LoginParams{Email: "alice@example.com"})
	e = requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, "senha", e.Field)
}

func TestLogin_TwoFactorFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice@example.com")

	enrollment, err := f.svc.EnableTwoFactor(ctx, user.ID)
	require.NoError(t, err)
	assert.Contains(t, enrollment.URL, "TruePet:"+strconv.FormatInt(user.ID, 10))

	_, err = f.svc.Login(ctx, auth.LoginParams{Email: "alice@example.com", Password: testutil.DefaultPassword})
	requireKind(t, err, apperr.KindTwoFactorRequired)

	code, err := f.totp.Code(enrollment.Secret, f.clock.Now())
	require.NoError(t, err)
	result, err := f.svc.Login(ctx, auth.LoginParams{
		Email: "alice@example.com", Password: testutil.DefaultPassword, TwoFactorCode: code,
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.UserID)
}

func TestLogin_TwoFactorRequiresPasswordFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice@example.com")
	_, err := f.svc.EnableTwoFactor(ctx, user.ID)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, auth.LoginParams{Email: "alice@example.com", Password: "Wr0ngpass!"})

	requireKind(t, err, apperr.KindInvalidCredential)
}

func TestLogin_StaleTwoFactorCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice@example.com")
	enrollment, err := f.svc.EnableTwoFactor(ctx, user.ID)
	require.NoError(t, err)

	stale, err := f.totp.Code(enrollment.Secret, f.clock.Now().Add(-60*time.Second))
	require.NoError(t, err)
	current, err := f.totp.Code(enrollment.Secret, f.clock.Now())
	require.NoError(t, err)
	previous, err := f.totp.Code(enrollment.Secret, f.clock.Now().Add(-30*time.Second))
	require.NoError(t, err)
	next, err := f.totp.Code(enrollment.Secret, f.clock.Now().Add(30*time.Second))
	require.NoError(t, err)
	if stale == current || stale == previous || stale == next {
		t.Skip("stale code collides with an accepted window")
	}

	_, err = f.svc.Login(ctx, auth.LoginParams{
		Email: "alice@example.com", Password: testutil.DefaultPassword, TwoFactorCode: stale,
	})

	e := requireKind(t, err, apperr.KindInvalidTwoFactorCode)
	assert.Equal(t, "twoFactorCode", e.Field)
}

func TestEnableTwoFactor_ReEnrollInvalidatesOldSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice@example.com")

	first, err := f.svc.EnableTwoFactor(ctx, user.ID)
	require.NoError(t, err)
	second, err := f.svc.EnableTwoFactor(ctx, user.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	stored, err := f.repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TwoFactorSecret)
	assert.Equal(t, second.Secret, *stored.TwoFactorSecret)

	oldCode, err := f.totp.Code(first.Secret, f.clock.Now())
	require.NoError(t, err)
	newCode, err := f.totp.Code(second.Secret, f.clock.Now())
	require.NoError(t, err)
	if oldCode != newCode {
		_, err = f.svc.Login(ctx, auth.LoginParams{
			Email: "alice@example.com", Password: testutil.DefaultPassword, TwoFactorCode: oldCode,
		})
		requireKind(t, err, apperr.KindInvalidTwoFactorCode)
	}
}

func TestEnableTwoFactor_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.EnableTwoFactor(context.Background(), 999)

	requireKind(t, err, apperr.KindNotFound)
}

func TestDisableTwoFactor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice@example.com")
	enrollment, err := f.svc.EnableTwoFactor(ctx, user.ID)
	require.NoError(t, err)
	staleCode, err := f.totp.Code(enrollment.Secret, f.clock.Now())
	require.NoError(t, err)

	require.NoError(t, f.svc.DisableTwoFactor(ctx, user.ID))

	stored, err := f.repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.TwoFactorEnabled)
	assert.Nil(t, stored.TwoFactorSecret)

	result, err := f.svc.Login(ctx, auth.LoginParams{
		Email: "alice@example.com", Password: testutil.DefaultPassword, TwoFactorCode: staleCode,
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.UserID)

	assert.Contains(t, f.auditActions(t), models.ActionDisableTwoFactor)
	assert.Contains(t, f.auditActions(t), models.ActionEnableTwoFactor)
}

func TestDisableTwoFactor_UnknownUser(t *testing.T) {
	f := newFixture(t)

	err := f.svc.DisableTwoFactor(context.Background(), 999)

	requireKind(t, err, apperr.KindNotFound)
}

func TestScenario_RegisterLoginEnableDisable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, auth.RegisterParams{Name: "Alice", Email: "alice@example.com", Password: "Passw0rd!"})
	require.NoError(t, err)

	result, err := f.svc.Login(ctx, auth.LoginParams{Email: "alice@example.com", Password: "Passw0rd!"})
	require.NoError(t, err)
	claims, err := f.tokens.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOrdinary, claims.Role)

	enrollment, err := f.svc.EnableTwoFactor(ctx, user.ID)
	require.NoError(t, err)
	assert.Contains(t, enrollment.URL, strconv.FormatInt(user.ID, 10))

	_, err = f.svc.Login(ctx, auth.LoginParams{Email: "alice@example.com", Password: "Passw0rd!"})
	requireKind(t, err, apperr.KindTwoFactorRequired)

	require.NoError(t, f.svc.DisableTwoFactor(ctx, user.ID))

	_, err = f.svc.Login(ctx, auth.LoginParams{Email: "alice@example.com", Password: "Passw0rd!", TwoFactorCode: "000000"})
	require.NoError(t, err)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice@example.com")

	got, err := f.svc.Profile(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	_, err = f.svc.Profile(context.Background(), 999)
	requireKind(t, err, apperr.KindNotFound)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice@example.com")
	phone := "+5581999998888"
	city := "Recife"

	got, err := f.svc.UpdateProfile(context.Background(), user.ID, auth.ProfileParams{
		Name: "Alice Souza", Phone: &phone, City: &city,
	})

	require.NoError(t, err)
	assert.Equal(t, "Alice Souza", got.Name)
	require.NotNil(t, got.Phone)
	assert.Equal(t, phone, *got.Phone)
	assert.Nil(t, got.Bio)
	assert.Contains(t, f.auditActions(t), models.ActionUpdateProfile)
}

func TestUpdateProfile_Validation(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice@example.com")
	phone := "123"

	_, err := f.svc.UpdateProfile(context.Background(), user.ID, auth.ProfileParams{Name: "Alice", Phone: &phone})

	e := requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, "telefone", e.Field)
}

func TestUpdateProfile_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateProfile(context.Background(), 999, auth.ProfileParams{Name: "Nobody"})

	requireKind(t, err, apperr.KindNotFound)
}

func TestCreateAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin, created, err := f.svc.CreateAdmin(ctx, "Admin", "admin@example.com", "Adm1n!pass")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.RoleAdministrator, admin.Role)

	count, err := f.svc.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCreateAdmin_PromotesExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice@example.com")

	admin, created, err := f.svc.CreateAdmin(ctx, "Alice", "alice@example.com", "Adm1n!pass")

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, admin.ID)

	stored, err := f.repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdministrator, stored.Role)
}

func TestLogin_StoreFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	require.NoError(t, f.repo.DB().Close())

	_, err := f.svc.Login(context.Background(), auth.LoginParams{Email: "alice@example.com", Password: testutil.DefaultPassword})

	requireKind(t, err, apperr.KindInternal)
}
