package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/custody-service/internal/auth"
	"github.com/spec-kit/custody-service/internal/config"
	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/repository"
	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

// TokenRevoker stores revoked token ids until they expire.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthService coordinates login, token and 2FA flows for operators.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	totp       *auth.TOTP
	revoked    TokenRevoker
	bcryptCost int
	clock      Clock
	logger     *zap.Logger
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Revoker  TokenRevoker
	TOTP     *auth.TOTP
	Logger   *zap.Logger
	Clock    Clock
}

// LoginResult is either a token pair or a request for the TOTP code.
type LoginResult struct {
	User        *domain.User
	Tokens      *domain.TokenPair
	Requires2FA bool
}

// CreateUserInput describes a new operator account.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Role     domain.Role
}

// TwoFASetup carries the generated secret for the authenticator app.
type TwoFASetup struct {
	Secret string
	URL    string
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	totp := deps.TOTP
	if totp == nil {
		totp = auth.NewTOTP(cfg.Auth.TOTPIssuer)
	}
	return &AuthService{
		users:      deps.UserRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL(), cfg.Auth.RefreshTTL()),
		totp:       totp,
		revoked:    deps.Revoker,
		bcryptCost: cfg.Auth.BcryptCost,
		clock:      deps.Clock.orDefault(),
		logger:     nopLogger(deps.Logger),
	}
}

// Login checks credentials and, when enabled, the TOTP code. A missing code
// for a 2FA account yields Requires2FA without tokens.
func (s *AuthService) Login(ctx context.Context, username, password, code string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.NewValidationError("username and password are required", nil)
	}
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewUnauthorized("invalid username or password")
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid username or password")
	}
	if !user.IsActive {
		return nil, apperrors.NewUnauthorized("account is inactive")
	}
	if user.TwoFAEnabled {
		code = strings.TrimSpace(code)
		if code == "" {
			return &LoginResult{User: user, Requires2FA: true}, nil
		}
		if user.TwoFASecret == nil || !s.totp.Validate(*user.TwoFASecret, code) {
			return nil, apperrors.NewUnauthorized("invalid 2FA code")
		}
	}

	pair, err := s.tokenMgr.GeneratePair(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	now := s.clock()
	user.LastLogin = &now
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Warn("record last login failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return &LoginResult{User: user, Tokens: pair}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented refresh
// token is revoked so each one is usable once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.tokenMgr.ParseToken(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid refresh token")
	}
	if s.revoked != nil {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		if revoked {
			return nil, apperrors.NewUnauthorized("refresh token revoked")
		}
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewUnauthorized("user not found")
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !user.IsActive {
		return nil, apperrors.NewUnauthorized("account is inactive")
	}
	if err := s.revoke(ctx, claims.Token()); err != nil {
		return nil, err
	}
	pair, err := s.tokenMgr.GeneratePair(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return pair, nil
}

// Logout revokes the current access token and, when given, the refresh token.
func (s *AuthService) Logout(ctx context.Context, access domain.Token, refreshToken string) error {
	if err := s.revoke(ctx, access); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokenMgr.ParseToken(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return apperrors.NewValidationError("invalid refresh token", nil)
	}
	if claims.UserID != access.UserID {
		return apperrors.NewForbidden("refresh token belongs to another user")
	}
	return s.revoke(ctx, claims.Token())
}

func (s *AuthService) revoke(ctx context.Context, tok domain.Token) error {
	if s.revoked == nil || tok.ID == "" {
		return nil
	}
	if err := s.revoked.Revoke(ctx, tok.ID, tok.ExpiresAt); err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

// SetupTwoFA generates a TOTP secret and enables 2FA for the caller.
func (s *AuthService) SetupTwoFA(ctx context.Context, actor domain.Actor) (*TwoFASetup, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if user.TwoFAEnabled {
		return nil, apperrors.NewValidationError("2FA is already enabled", nil)
	}
	secret, url, err := s.totp.GenerateSecret(user.Username)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user.TwoFASecret = &secret
	user.TwoFAEnabled = true
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("2FA enabled", zap.String("user_id", user.ID))
	return &TwoFASetup{Secret: secret, URL: url}, nil
}

// DisableTwoFA clears the caller's TOTP secret.
func (s *AuthService) DisableTwoFA(ctx context.Context, actor domain.Actor) error {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return err
	}
	user, err := s.loadUser(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if !user.TwoFAEnabled {
		return apperrors.NewValidationError("2FA is not enabled", nil)
	}
	user.TwoFAEnabled = false
	user.TwoFASecret = nil
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.MapError(err)
	}
	s.logger.Info("2FA disabled", zap.String("user_id", user.ID))
	return nil
}

// ChangePassword verifies the current password before storing the new hash.
func (s *AuthService) ChangePassword(ctx context.Context, actor domain.Actor, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return apperrors.NewValidationError("current and new password are required", nil)
	}
	user, err := s.loadUser(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("current password is incorrect")
	}
	if err := auth.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	return apperrors.MapError(s.users.Update(ctx, user))
}

// CreateUser adds an operator account. Admin only.
func (s *AuthService) CreateUser(ctx context.Context, actor domain.Actor, input CreateUserInput) (*domain.User, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	username, err := requireText("username", input.Username, 80)
	if err != nil {
		return nil, err
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(input.Email))
	if err != nil {
		return nil, apperrors.NewValidationError("invalid email", map[string]any{"email": input.Email})
	}
	if !input.Role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": input.Role})
	}
	if err := auth.ValidatePasswordStrength(input.Password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user := &domain.User{
		Username:     username,
		Email:        strings.ToLower(addr.Address),
		PasswordHash: hash,
		Role:         input.Role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// ListUsers lists operator accounts. Admin only.
func (s *AuthService) ListUsers(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	return users, apperrors.MapError(err)
}

// Bootstrap creates the first admin when no users exist yet.
func (s *AuthService) Bootstrap(ctx context.Context, username, email, password string) (*domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(users) > 0 {
		return nil, nil
	}
	return s.CreateUser(ctx, domain.Actor{Role: domain.RoleAdmin}, CreateUserInput{
		Username: username,
		Email:    email,
		Password: password,
		Role:     domain.RoleAdmin,
	})
}

func (s *AuthService) loadUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapLookup(err, "user", map[string]any{"user_id": id})
	}
	return user, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
