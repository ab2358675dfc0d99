package ports

import (
	"context"
	"time"

	"github.com/sdcourse/auth-api/internal/core/domain"
)

// PasswordHasher produces and checks one-way password hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns nil only when password matches hash.
	Compare(hash, password string) error
}

// TokenCodec signs and verifies self-contained tokens.
type TokenCodec interface {
	Encode(claims domain.Claims, typ domain.TokenType, ttl time.Duration) (string, error)
	// Decode verifies the signature before trusting any claim. Failures wrap one of
	// domain.ErrTokenMalformed, domain.ErrTokenExpired or domain.ErrTokenBadSignature.
	Decode(token string) (domain.Claims, error)
}

// LoginThrottle counts failed logins per scope and key.
type LoginThrottle interface {
	Allowed(ctx context.Context, scope domain.ThrottleScope, key string) (bool, error)
	RecordFailure(ctx context.Context, scope domain.ThrottleScope, key string) error
	Reset(ctx context.Context, scope domain.ThrottleScope, key string) error
}

// AuditRecorder accepts audit events without blocking the caller.
type AuditRecorder interface {
	Record(event domain.AuditEvent)
}

// AuditRepository stores audit events.
type AuditRepository interface {
	Insert(ctx context.Context, event *domain.AuditEvent) error
}
