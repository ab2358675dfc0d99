package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sdcourse/auth-api/internal/core/domain"
	"github.com/sdcourse/auth-api/internal/core/ports"
	"github.com/sdcourse/auth-api/pkg/logger"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

var sortableFields = map[string]struct{}{
	"username":   {},
	"email":      {},
	"created_at": {},
}

// UserService manages principal profiles and roles.
type UserService struct {
	repo   ports.PrincipalRepository
	hasher ports.PasswordHasher
	audit  ports.AuditRecorder
	log    zerolog.Logger
}

func NewUserService(repo ports.PrincipalRepository, hasher ports.PasswordHasher, audit ports.AuditRecorder, log zerolog.Logger) *UserService {
	return &UserService{repo: repo, hasher: hasher, audit: audit, log: log}
}

// List returns a page of principals. Unknown sort fields fall back to username.
func (s *UserService) List(ctx context.Context, _ domain.AuthContext, page domain.PageRequest) (*domain.Page, error) {
	if page.Page < 0 {
		page.Page = 0
	}
	if page.Size <= 0 {
		page.Size = defaultPageSize
	}
	if page.Size > maxPageSize {
		page.Size = maxPageSize
	}
	if _, ok := sortableFields[page.SortBy]; !ok {
		page.SortBy = "username"
	}

	items, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}

	totalPages := int((total + int64(page.Size) - 1) / int64(page.Size))
	return &domain.Page{
		Items:      items,
		Total:      total,
		Page:       page.Page,
		Size:       page.Size,
		TotalPages: totalPages,
	}, nil
}

// ListAll returns every principal ordered by username.
func (s *UserService) ListAll(ctx context.Context, _ domain.AuthContext) ([]*domain.Principal, error) {
	items, _, err := s.repo.List(ctx, domain.PageRequest{SortBy: "username"})
	if err != nil {
		return nil, fmt.Errorf("list all principals: %w", err)
	}
	return items, nil
}

func (s *UserService) Get(ctx context.Context, _ domain.AuthContext, id string) (*domain.Principal, error) {
	return s.repo.FindByID(ctx, id)
}

// Me loads the caller's own principal from the subject the guard resolved.
func (s *UserService) Me(ctx context.Context, caller domain.AuthContext) (*domain.Principal, error) {
	return s.repo.FindByID(ctx, caller.Subject)
}

func (s *UserService) OwnerOf(ctx context.Context, id string) (string, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// Update applies the non-empty fields of in. Role changes are honoured only for admin
// callers and silently dropped otherwise.
func (s *UserService) Update(ctx context.Context, caller domain.AuthContext, id string, in ports.UpdatePrincipalInput) (*domain.Principal, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if u := strings.TrimSpace(in.Username); u != "" {
		if n := len(u); n < minUsernameLen || n > maxUsernameLen {
			return nil, fmt.Errorf("%w: username must be between %d and %d characters", domain.ErrInvalidInput, minUsernameLen, maxUsernameLen)
		}
		p.Username = u
	}
	if e := strings.TrimSpace(in.Email); e != "" {
		if err := validateEmail(e); err != nil {
			return nil, err
		}
		p.Email = e
	}
	if in.Password != "" {
		if err := validatePassword(in.Password); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("update principal: hash password: %w", err)
		}
		p.PasswordHash = hash
	}
	if len(in.Roles) > 0 && caller.IsAdmin() {
		roles, err := parseRoles(in.Roles)
		if err != nil {
			return nil, err
		}
		p.Roles = roles
	}

	p.UpdatedAt = time.Now().UTC()
	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return nil, err
	}

	s.logger(ctx).Info().Str("principal_id", updated.ID).Str("actor", caller.Subject).Msg("principal updated")
	s.record(domain.AuditEvent{Kind: domain.AuditUserUpdated, Subject: updated.ID, Actor: caller.Subject})
	return updated, nil
}

func (s *UserService) Delete(ctx context.Context, caller domain.AuthContext, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger(ctx).Info().Str("principal_id", id).Str("actor", caller.Subject).Msg("principal deleted")
	s.record(domain.AuditEvent{Kind: domain.AuditUserDeleted, Subject: id, Actor: caller.Subject})
	return nil
}

func (s *UserService) AssignRole(ctx context.Context, caller domain.AuthContext, id, role string) (*domain.Principal, error) {
	r, err := domain.ParseRole(role)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.AddRole(r) {
		return p, nil
	}
	return s.saveRoles(ctx, caller, p, domain.AuditRoleAssigned, r)
}

func (s *UserService) RemoveRole(ctx context.Context, caller domain.AuthContext, id, role string) (*domain.Principal, error) {
	r, err := domain.ParseRole(role)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.HasRole(r) {
		return p, nil
	}
	if err := p.RemoveRole(r); err != nil {
		return nil, err
	}
	return s.saveRoles(ctx, caller, p, domain.AuditRoleRemoved, r)
}

func (s *UserService) saveRoles(ctx context.Context, caller domain.AuthContext, p *domain.Principal, kind domain.AuditKind, r domain.Role) (*domain.Principal, error) {
	p.UpdatedAt = time.Now().UTC()
	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info().
		Str("principal_id", updated.ID).
		Str("role", string(r)).
		Str("change", string(kind)).
		Str("actor", caller.Subject).
		Msg("principal roles changed")
	s.record(domain.AuditEvent{Kind: kind, Subject: updated.ID, Actor: caller.Subject, Detail: string(r)})
	return updated, nil
}

func (s *UserService) record(e domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	s.audit.Record(stamp(e))
}

// parseRoles resolves and de-duplicates role names.
func parseRoles(names []string) ([]domain.Role, error) {
	seen := make(map[domain.Role]struct{}, len(names))
	roles := make([]domain.Role, 0, len(names))
	for _, n := range names {
		r, err := domain.ParseRole(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, n)
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		roles = append(roles, r)
	}
	return roles, nil
}

// logger prefers the request-scoped logger carried by ctx.
func (s *UserService) logger(ctx context.Context) *zerolog.Logger {
	l := logger.From(ctx, s.log)
	return &l
}
