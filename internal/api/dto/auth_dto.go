package dto

import (
	"time"

	"github.com/spec-kit/custody-service/internal/domain"
)

// LoginRequest payload. TwoFACode is required once 2FA is enabled.
type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	TwoFACode string `json:"two_fa_code"`
}

// RefreshRequest payload.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest payload. The refresh token is optional.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// PasswordChangeRequest payload for authenticated password changes.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// CreateUserRequest payload.
type CreateUserRequest struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LoginResponse wraps the login outcome.
type LoginResponse struct {
	Requires2FA bool           `json:"requires_2fa"`
	User        *UserResponse  `json:"user,omitempty"`
	Tokens      *TokenResponse `json:"tokens,omitempty"`
}

// TwoFASetupResponse carries the new secret and provisioning URL.
type TwoFASetupResponse struct {
	Secret string `json:"secret"`
	QRURL  string `json:"qr_url"`
}

// UserResponse is an operator account without credentials.
type UserResponse struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	Role         domain.Role `json:"role"`
	IsActive     bool        `json:"is_active"`
	TwoFAEnabled bool        `json:"two_fa_enabled"`
	CreatedAt    time.Time   `json:"created_at"`
	LastLogin    *time.Time  `json:"last_login"`
}

// NewTokenResponse converts a token pair.
func NewTokenResponse(p *domain.TokenPair) *TokenResponse {
	if p == nil {
		return nil
	}
	return &TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    p.ExpiresAt,
	}
}

// NewUserResponse converts a user.
func NewUserResponse(u *domain.User) *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		IsActive:     u.IsActive,
		TwoFAEnabled: u.TwoFAEnabled,
		CreatedAt:    u.CreatedAt,
		LastLogin:    u.LastLogin,
	}
}
