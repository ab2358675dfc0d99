package service

import (
	"context"
	"fmt"

	"github.com/sdcourse/auth-api/internal/core/domain"
	"github.com/sdcourse/auth-api/internal/core/ports"
)

// AccessGuard makes the per-request authorization decision.
//
//	NoToken → TokenPresented → {Unauthenticated | Valid} → {Forbidden | Authorized}
//
// Every failure is terminal; a client leaves Unauthenticated only by logging in or
// refreshing.
type AccessGuard struct {
	codec ports.TokenCodec
}

func NewAccessGuard(codec ports.TokenCodec) *AccessGuard {
	return &AccessGuard{codec: codec}
}

// Authorize validates token and evaluates check against the resolved caller.
// Token failures wrap domain.ErrUnauthenticated together with the decode kind;
// an unmet check returns domain.ErrForbidden.
func (g *AccessGuard) Authorize(ctx context.Context, token string, check domain.Check) (domain.AuthContext, error) {
	if token == "" {
		return domain.AuthContext{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, domain.ErrTokenMissing)
	}

	claims, err := g.codec.Decode(token)
	if err != nil {
		return domain.AuthContext{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	if claims.Type != domain.TokenAccess {
		return domain.AuthContext{}, fmt.Errorf("%w: %w: expected access token", domain.ErrUnauthenticated, domain.ErrTokenMalformed)
	}

	caller := domain.AuthContext{
		Subject:   claims.Subject,
		Username:  claims.Username,
		Roles:     rolesFromAuthorities(claims.Authorities),
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt,
	}

	if err := check.Evaluate(ctx, caller); err != nil {
		return domain.AuthContext{}, err
	}
	return caller, nil
}

// rolesFromAuthorities keeps the authorities that name a known role.
func rolesFromAuthorities(authorities []string) []domain.Role {
	roles := make([]domain.Role, 0, len(authorities))
	for _, a := range authorities {
		if r, err := domain.ParseRole(a); err == nil {
			roles = append(roles, r)
		}
	}
	return roles
}
