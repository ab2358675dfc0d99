package ports

import (
	"context"

	"github.com/sdcourse/auth-api/internal/core/domain"
)

// PrincipalRepository persists principals. Implementations enforce case-insensitive
// uniqueness of username and email and report collisions as *domain.ConflictError.
type PrincipalRepository interface {
	Create(ctx context.Context, p *domain.Principal) (*domain.Principal, error)
	FindByID(ctx context.Context, id string) (*domain.Principal, error)
	// FindByIdentifier matches a username or an email, case-insensitively.
	FindByIdentifier(ctx context.Context, identifier string) (*domain.Principal, error)
	Update(ctx context.Context, p *domain.Principal) (*domain.Principal, error)
	Delete(ctx context.Context, id string) error
	// List returns one page and the total count. A zero page.Size returns every principal.
	List(ctx context.Context, page domain.PageRequest) ([]*domain.Principal, int64, error)
}
