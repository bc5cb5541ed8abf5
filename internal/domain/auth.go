package domain

import "time"

// TokenType differentiates access vs refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Token represents issued authentication token metadata.
type Token struct {
	ID        string
	UserID    string
	Role      Role
	Type      TokenType
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// TokenPair is returned on login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
