package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/custody-service/internal/cache"
	"github.com/spec-kit/custody-service/internal/config"
	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/repository/memory"
	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

type authFixture struct {
	svc     *AuthService
	store   *memory.Store
	revoked *cache.TokenDenylist
	admin   *domain.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memory.New(nil)
	denylist := cache.NewTokenDenylist(client, "test")
	cfg := config.Config{Auth: config.AuthConfig{
		JWTSecret:              "test-secret",
		AccessTokenTTLMinutes:  15,
		RefreshTokenTTLMinutes: 60,
		BcryptCost:             bcrypt.MinCost,
		TOTPIssuer:             "Custody Test",
	}}
	svc := NewAuthService(cfg, AuthDependencies{UserRepo: store.Users(), Revoker: denylist})

	admin, err := svc.Bootstrap(context.Background(), "root", "root@example.com", "changeme1")
	require.NoError(t, err)
	require.NotNil(t, admin)
	return &authFixture{svc: svc, store: store, revoked: denylist, admin: admin}
}

func (f *authFixture) actor(u *domain.User) domain.Actor {
	return domain.Actor{UserID: u.ID, Role: u.Role}
}

func TestAuthService_CreateUser(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	again, err := f.svc.Bootstrap(ctx, "other", "other@example.com", "changeme1")
	require.NoError(t, err)
	assert.Nil(t, again)

	tests := []struct {
		name  string
		actor domain.Actor
		input CreateUserInput
		code  string
	}{
		{name: "staff cannot create", actor: staffActor, input: CreateUserInput{Username: "a", Email: "a@x.io", Password: "secret123", Role: domain.RoleAuditor}, code: apperrors.CodeForbidden},
		{name: "weak password", actor: f.actor(f.admin), input: CreateUserInput{Username: "a", Email: "a@x.io", Password: "short", Role: domain.RoleAuditor}, code: apperrors.CodeValidation},
		{name: "unknown role", actor: f.actor(f.admin), input: CreateUserInput{Username: "a", Email: "a@x.io", Password: "secret123", Role: "janitor"}, code: apperrors.CodeValidation},
		{name: "bad email", actor: f.actor(f.admin), input: CreateUserInput{Username: "a", Email: "x", Password: "secret123", Role: domain.RoleAuditor}, code: apperrors.CodeValidation},
		{name: "duplicate username", actor: f.actor(f.admin), input: CreateUserInput{Username: "root", Email: "r2@x.io", Password: "secret123", Role: domain.RoleAuditor}, code: apperrors.CodeConflict},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateUser(ctx, tt.actor, tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.ToDomainError(err).Code)
		})
	}

	user, err := f.svc.CreateUser(ctx, f.actor(f.admin), CreateUserInput{Username: "guard", Email: "Guard@Example.com", Password: "secret123", Role: domain.RoleSecurityStaff})
	require.NoError(t, err)
	assert.Equal(t, "guard@example.com", user.Email)
	assert.True(t, user.IsActive)

	users, err := f.svc.ListUsers(ctx, f.actor(f.admin))
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "", "", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.svc.Login(ctx, "nobody", "changeme1", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = f.svc.Login(ctx, "root", "wrong-pass1", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	res, err := f.svc.Login(ctx, "root", "changeme1", "")
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
	assert.False(t, res.Requires2FA)

	claims, err := f.svc.TokenManager().ParseToken(res.Tokens.AccessToken, domain.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, claims.Role)

	stored, err := f.store.Users().GetByID(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)

	stored.IsActive = false
	require.NoError(t, f.store.Users().Update(ctx, stored))
	_, err = f.svc.Login(ctx, "root", "changeme1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inactive")
}

func TestAuthService_TwoFactor(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()
	actor := f.actor(f.admin)

	setup, err := f.svc.SetupTwoFA(ctx, actor)
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.URL, "otpauth://")

	_, err = f.svc.SetupTwoFA(ctx, actor)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	res, err := f.svc.Login(ctx, "root", "changeme1", "")
	require.NoError(t, err)
	assert.True(t, res.Requires2FA)
	assert.Nil(t, res.Tokens)

	_, err = f.svc.Login(ctx, "root", "changeme1", "000000x")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	code, err := totp.GenerateCode(setup.Secret, time.Now().UTC())
	require.NoError(t, err)
	res, err = f.svc.Login(ctx, "root", "changeme1", code)
	require.NoError(t, err)
	assert.NotNil(t, res.Tokens)

	require.NoError(t, f.svc.DisableTwoFA(ctx, actor))
	assert.True(t, apperrors.HasCode(f.svc.DisableTwoFA(ctx, actor), apperrors.CodeValidation))

	res, err = f.svc.Login(ctx, "root", "changeme1", "")
	require.NoError(t, err)
	assert.NotNil(t, res.Tokens)
}

func TestAuthService_RefreshAndLogout(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "root", "changeme1", "")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, res.Tokens.AccessToken)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	pair, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.Tokens.RefreshToken, pair.RefreshToken)

	_, err = f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	claims, err := f.svc.TokenManager().ParseToken(pair.AccessToken, domain.TokenTypeAccess)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, claims.Token(), pair.RefreshToken))

	revoked, err := f.revoked.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestAuthService_ChangePassword(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()
	actor := f.actor(f.admin)

	err := f.svc.ChangePassword(ctx, actor, "wrong-pass1", "newpass123")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	err = f.svc.ChangePassword(ctx, actor, "changeme1", "letters")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	require.NoError(t, f.svc.ChangePassword(ctx, actor, "changeme1", "newpass123"))

	_, err = f.svc.Login(ctx, "root", "changeme1", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	_, err = f.svc.Login(ctx, "root", "newpass123", "")
	assert.NoError(t, err)
}
