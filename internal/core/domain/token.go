package domain

import "time"

// TokenType discriminates access from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the codec-independent content of a token.
type Claims struct {
	Subject     string
	Username    string
	Authorities []string
	Type        TokenType
	ID          string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// TokenPair is issued by login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    time.Duration
	Principal    *Principal
}
