package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/repository/memory"
	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	t.Parallel()
	tm := NewTokenManager("secret", time.Hour, 24*time.Hour)

	pair, err := tm.GeneratePair("user-1", domain.RoleSecurityStaff)
	require.NoError(t, err)

	claims, err := tm.ParseToken(pair.AccessToken, domain.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, domain.RoleSecurityStaff, claims.Role)
	assert.NotEmpty(t, claims.ID)

	_, err = tm.ParseToken(pair.RefreshToken, domain.TokenTypeAccess)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	refresh, err := tm.ParseToken(pair.RefreshToken, domain.TokenTypeRefresh)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, refresh.ID)
}

func TestTokenManager_Expired(t *testing.T) {
	t.Parallel()
	tm := NewTokenManager("secret", time.Minute, time.Hour)
	issued := time.Now()
	tm.now = func() time.Time { return issued }

	tok, _, err := tm.GenerateToken("user-1", domain.RoleAdmin, domain.TokenTypeAccess)
	require.NoError(t, err)

	tm.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tm.ParseToken(tok, domain.TokenTypeAccess)
	assert.Error(t, err)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	t.Parallel()
	tok, _, err := NewTokenManager("a", 0, 0).GenerateToken("u", domain.RoleAdmin, domain.TokenTypeAccess)
	require.NoError(t, err)
	_, err = NewTokenManager("b", 0, 0).ParseToken(tok, domain.TokenTypeAccess)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tok, err := BearerToken("Bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	for _, header := range []string{"", "abc", "Basic abc", "Bearer "} {
		_, err := BearerToken(header)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized), header)
	}
}

type stubRevocations struct {
	revoked map[string]bool
	err     error
}

func (s stubRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	return s.revoked[id], s.err
}

func newAuthApp(t *testing.T, revoked RevocationChecker) (*fiber.App, *TokenManager, map[domain.Role]string) {
	t.Helper()
	store := memory.New(nil)
	tm := NewTokenManager("secret", time.Hour, time.Hour)

	tokens := map[domain.Role]string{}
	for _, role := range []domain.Role{domain.RoleAuditor, domain.RoleSecurityStaff, domain.RoleAdmin} {
		user := &domain.User{Username: string(role), Email: string(role) + "@example.com", Role: role, IsActive: true}
		require.NoError(t, store.Users().Create(context.Background(), user))
		tok, _, err := tm.GenerateToken(user.ID, role, domain.TokenTypeAccess)
		require.NoError(t, err)
		tokens[role] = tok
	}

	mw := NewAuthMiddleware(tm, store.Users(), revoked, zap.NewNop())
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	api := app.Group("/", mw.Handle)
	api.Get("/read", RequireRole(domain.RoleAuditor), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })
	api.Post("/checkout", RequireRole(domain.RoleSecurityStaff), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })
	api.Post("/keys", RequireRole(domain.RoleAdmin), func(c *fiber.Ctx) error {
		p, ok := PrincipalFromContext(c)
		if assert.True(t, ok) {
			assert.Equal(t, domain.RoleAdmin, p.Actor().Role)
		}
		return c.SendStatus(http.StatusOK)
	})
	return app, tm, tokens
}

func TestRequireRole_Hierarchy(t *testing.T) {
	t.Parallel()
	app, _, tokens := newAuthApp(t, nil)

	tests := []struct {
		role   domain.Role
		method string
		path   string
		want   int
	}{
		{domain.RoleAuditor, http.MethodGet, "/read", http.StatusOK},
		{domain.RoleAuditor, http.MethodPost, "/checkout", http.StatusForbidden},
		{domain.RoleAuditor, http.MethodPost, "/keys", http.StatusForbidden},
		{domain.RoleSecurityStaff, http.MethodGet, "/read", http.StatusOK},
		{domain.RoleSecurityStaff, http.MethodPost, "/checkout", http.StatusOK},
		{domain.RoleSecurityStaff, http.MethodPost, "/keys", http.StatusForbidden},
		{domain.RoleAdmin, http.MethodGet, "/read", http.StatusOK},
		{domain.RoleAdmin, http.MethodPost, "/checkout", http.StatusOK},
		{domain.RoleAdmin, http.MethodPost, "/keys", http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		req := httptest.NewRequest(tt.method, tt.path, nil)
		req.Header.Set("Authorization", "Bearer "+tokens[tt.role])
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.StatusCode, "%s %s %s", tt.role, tt.method, tt.path)
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	t.Parallel()

	app, tm, tokens := newAuthApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	refresh, _, err := tm.GenerateToken("whoever", domain.RoleAdmin, domain.TokenTypeRefresh)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/read", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	unknown, _, err := tm.GenerateToken("no-such-user", domain.RoleAdmin, domain.TokenTypeAccess)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/read", nil)
	req.Header.Set("Authorization", "Bearer "+unknown)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.NotEmpty(t, tokens)
}

func TestAuthMiddleware_Revoked(t *testing.T) {
	t.Parallel()

	revocations := stubRevocations{revoked: map[string]bool{}}
	app, tm, tokens := newAuthApp(t, revocations)

	claims, err := tm.ParseToken(tokens[domain.RoleAdmin], domain.TokenTypeAccess)
	require.NoError(t, err)
	revocations.revoked[claims.ID] = true

	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	req.Header.Set("Authorization", "Bearer "+tokens[domain.RoleAdmin])
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/read", nil)
	req.Header.Set("Authorization", "Bearer "+tokens[domain.RoleAuditor])
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthMiddleware_RevocationOutageFailsOpen(t *testing.T) {
	t.Parallel()

	app, _, tokens := newAuthApp(t, stubRevocations{err: errors.New("redis down")})

	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	req.Header.Set("Authorization", "Bearer "+tokens[domain.RoleAuditor])
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPasswords(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("s3cretpass", 4)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "s3cretpass"))
	assert.Error(t, ComparePassword(hash, "wrong"))

	assert.NoError(t, ValidatePasswordStrength("abcd1234"))
	assert.Error(t, ValidatePasswordStrength("short1"))
	assert.Error(t, ValidatePasswordStrength("lettersonly"))
	assert.Error(t, ValidatePasswordStrength("1234567890"))
}

func TestTOTP(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	helper := NewTOTP("Custody")
	helper.now = func() time.Time { return now }

	secret, url, err := helper.GenerateSecret("ops@example.com")
	require.NoError(t, err)
	assert.Contains(t, url, "otpauth://totp/")

	code, err := totp.GenerateCode(secret, now)
	require.NoError(t, err)
	assert.True(t, helper.Validate(secret, code))
	assert.False(t, helper.Validate(secret, "000"))
	assert.False(t, helper.Validate("", code))

	stale, err := totp.GenerateCode(secret, now.Add(-5*time.Minute))
	require.NoError(t, err)
	if stale != code {
		assert.False(t, helper.Validate(secret, stale))
	}

	_, _, err = helper.GenerateSecret("bad:name")
	assert.Error(t, err)
}
