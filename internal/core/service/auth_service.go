package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sdcourse/auth-api/internal/core/domain"
	"github.com/sdcourse/auth-api/internal/core/ports"
	"github.com/sdcourse/auth-api/pkg/logger"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	minPasswordLen = 6
	maxPasswordLen = 72 // bcrypt input limit, in bytes
	minUsernameLen = 3
	maxUsernameLen = 50
)

var validate = validator.New()

// AuthService implements registration, login and token refresh.
type AuthService struct {
	repo       ports.PrincipalRepository
	hasher     ports.PasswordHasher
	verifier   *CredentialVerifier
	codec      ports.TokenCodec
	throttle   ports.LoginThrottle
	audit      ports.AuditRecorder
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        zerolog.Logger
}

// AuthOption configures optional collaborators of AuthService.
type AuthOption func(*AuthService)

// WithThrottle limits repeated failed logins per identifier.
func WithThrottle(t ports.LoginThrottle) AuthOption {
	return func(s *AuthService) { s.throttle = t }
}

// WithAudit records security events.
func WithAudit(r ports.AuditRecorder) AuthOption {
	return func(s *AuthService) { s.audit = r }
}

func NewAuthService(
	repo ports.PrincipalRepository,
	hasher ports.PasswordHasher,
	codec ports.TokenCodec,
	accessTTL, refreshTTL time.Duration,
	log zerolog.Logger,
	opts ...AuthOption,
) *AuthService {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	s := &AuthService{
		repo:       repo,
		hasher:     hasher,
		verifier:   NewCredentialVerifier(repo, hasher),
		codec:      codec,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a principal holding the USER role.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*domain.Principal, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := validateProfile(username, email, password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	now := time.Now().UTC()
	created, err := s.repo.Create(ctx, &domain.Principal{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Roles:        []domain.Role{domain.RoleUser},
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx).Info().Str("principal_id", created.ID).Str("username", created.Username).Msg("principal registered")
	s.record(domain.AuditEvent{Kind: domain.AuditRegistered, Subject: created.ID, Identifier: created.Username})
	return created, nil
}

// Login verifies credentials and issues an access and refresh token pair.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*domain.TokenPair, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	if !s.allowed(ctx, domain.ThrottleIdentifier, identifier) {
		s.record(domain.AuditEvent{Kind: domain.AuditLoginThrottled, Identifier: identifier})
		return nil, domain.ErrTooManyAttempts
	}

	// p is set on success and on a wrong password for a known account.
	p, err := s.verifier.Verify(ctx, identifier, password)
	if p != nil && !s.allowed(ctx, domain.ThrottleAccount, p.ID) {
		s.record(domain.AuditEvent{Kind: domain.AuditLoginThrottled, Subject: p.ID, Identifier: identifier})
		return nil, domain.ErrTooManyAttempts
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.recordFailure(ctx, identifier, p)
		}
		return nil, err
	}

	s.resetThrottle(ctx, identifier, p.ID)

	pair, err := s.issue(p)
	if err != nil {
		return nil, err
	}

	s.logger(ctx).Info().Str("principal_id", p.ID).Msg("login succeeded")
	s.record(domain.AuditEvent{Kind: domain.AuditLoginSucceeded, Subject: p.ID, Identifier: identifier})
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new pair. Authorities are read from
// storage, so role changes and deletions apply from the next refresh on.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		s.record(domain.AuditEvent{Kind: domain.AuditRefreshRejected, Detail: tokenFailure(err)})
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	if claims.Type != domain.TokenRefresh {
		s.record(domain.AuditEvent{Kind: domain.AuditRefreshRejected, Subject: claims.Subject, Detail: "wrong_type"})
		return nil, fmt.Errorf("%w: %w: expected refresh token", domain.ErrUnauthenticated, domain.ErrTokenMalformed)
	}

	p, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrPrincipalNotFound) {
			s.record(domain.AuditEvent{Kind: domain.AuditRefreshRejected, Subject: claims.Subject, Detail: "principal_not_found"})
			return nil, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("refresh: load principal: %w", err)
	}

	pair, err := s.issue(p)
	if err != nil {
		return nil, err
	}
	s.record(domain.AuditEvent{Kind: domain.AuditRefreshed, Subject: p.ID})
	return pair, nil
}

// EnsureAdmin creates the bootstrap administrator, or grants ADMIN to an existing
// principal with that username.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	existing, err := s.repo.FindByIdentifier(ctx, username)
	switch {
	case err == nil:
		if !existing.AddRole(domain.RoleAdmin) {
			return nil
		}
		existing.UpdatedAt = time.Now().UTC()
		if _, err := s.repo.Update(ctx, existing); err != nil {
			return fmt.Errorf("ensure admin: %w", err)
		}
		s.logger(ctx).Info().Str("principal_id", existing.ID).Msg("bootstrap admin role granted")
		return nil
	case !errors.Is(err, domain.ErrPrincipalNotFound):
		return fmt.Errorf("ensure admin: %w", err)
	}

	p, err := s.Register(ctx, username, email, password)
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	p.AddRole(domain.RoleAdmin)
	if _, err := s.repo.Update(ctx, p); err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	s.logger(ctx).Info().Str("principal_id", p.ID).Msg("bootstrap admin created")
	return nil
}

func (s *AuthService) issue(p *domain.Principal) (*domain.TokenPair, error) {
	refreshClaims := domain.Claims{Subject: p.ID, Username: p.Username}
	accessClaims := refreshClaims
	accessClaims.Authorities = p.Authorities()

	access, err := s.codec.Encode(accessClaims, domain.TokenAccess, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.Encode(refreshClaims, domain.TokenRefresh, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.accessTTL,
		Principal:    p,
	}, nil
}

// allowed fails open when the throttle store is unavailable.
func (s *AuthService) allowed(ctx context.Context, scope domain.ThrottleScope, key string) bool {
	if s.throttle == nil {
		return true
	}
	ok, err := s.throttle.Allowed(ctx, scope, key)
	if err != nil {
		s.logger(ctx).Warn().Err(err).Str("scope", string(scope)).Msg("login throttle check failed, continuing")
		return true
	}
	return ok
}

// recordFailure charges the presented identifier and, when it matched, the account.
func (s *AuthService) recordFailure(ctx context.Context, identifier string, p *domain.Principal) {
	event := domain.AuditEvent{Kind: domain.AuditLoginFailed, Identifier: identifier}
	if p != nil {
		event.Subject = p.ID
	}
	if s.throttle != nil {
		if err := s.throttle.RecordFailure(ctx, domain.ThrottleIdentifier, identifier); err != nil {
			s.logger(ctx).Warn().Err(err).Msg("failed to record login failure")
		}
		if p != nil {
			if err := s.throttle.RecordFailure(ctx, domain.ThrottleAccount, p.ID); err != nil {
				s.logger(ctx).Warn().Err(err).Str("principal_id", p.ID).Msg("failed to record login failure")
			}
		}
	}
	s.record(event)
}

func (s *AuthService) resetThrottle(ctx context.Context, identifier, principalID string) {
	if s.throttle == nil {
		return
	}
	if err := s.throttle.Reset(ctx, domain.ThrottleIdentifier, identifier); err != nil {
		s.logger(ctx).Warn().Err(err).Str("principal_id", principalID).Msg("failed to reset login throttle")
	}
	if err := s.throttle.Reset(ctx, domain.ThrottleAccount, principalID); err != nil {
		s.logger(ctx).Warn().Err(err).Str("principal_id", principalID).Msg("failed to reset login throttle")
	}
}

func (s *AuthService) record(e domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	s.audit.Record(stamp(e))
}

func stamp(e domain.AuditEvent) domain.AuditEvent {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return e
}

// tokenFailure names the decode failure kind without echoing token content.
func tokenFailure(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrTokenBadSignature):
		return "bad_signature"
	default:
		return "malformed"
	}
}

func validateProfile(username, email, password string) error {
	if n := len(username); n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("%w: username must be between %d and %d characters", domain.ErrInvalidInput, minUsernameLen, maxUsernameLen)
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	return validatePassword(password)
}

func validateEmail(email string) error {
	if err := validate.Var(email, "required,email,max=100"); err != nil {
		return fmt.Errorf("%w: email must be valid", domain.ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, minPasswordLen)
	}
	if len(password) > maxPasswordLen {
		return fmt.Errorf("%w: password must be at most %d bytes", domain.ErrInvalidInput, maxPasswordLen)
	}
	return nil
}

// logger prefers the request-scoped logger carried by ctx.
func (s *AuthService) logger(ctx context.Context) *zerolog.Logger {
	l := logger.From(ctx, s.log)
	return &l
}
