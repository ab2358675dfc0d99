package ports

import (
	"context"

	"github.com/sdcourse/auth-api/internal/core/domain"
)

// AuthService is the session issuer consumed by the auth endpoints.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*domain.Principal, error)
	Login(ctx context.Context, identifier, password string) (*domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
}

// Guard decides whether a presented access token satisfies a check.
type Guard interface {
	Authorize(ctx context.Context, token string, check domain.Check) (domain.AuthContext, error)
}
