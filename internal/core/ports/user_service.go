package ports

import (
	"context"

	"github.com/sdcourse/auth-api/internal/core/domain"
)

// UpdatePrincipalInput carries optional profile changes; empty fields are left untouched.
type UpdatePrincipalInput struct {
	Username string
	Email    string
	Password string
	Roles    []string
}

// UserService manages principals on behalf of an authenticated caller. Authorization
// has already been decided by the guard; the caller is passed for role-sensitive rules
// and auditing.
type UserService interface {
	List(ctx context.Context, caller domain.AuthContext, page domain.PageRequest) (*domain.Page, error)
	ListAll(ctx context.Context, caller domain.AuthContext) ([]*domain.Principal, error)
	Get(ctx context.Context, caller domain.AuthContext, id string) (*domain.Principal, error)
	Me(ctx context.Context, caller domain.AuthContext) (*domain.Principal, error)
	Update(ctx context.Context, caller domain.AuthContext, id string, in UpdatePrincipalInput) (*domain.Principal, error)
	Delete(ctx context.Context, caller domain.AuthContext, id string) error
	AssignRole(ctx context.Context, caller domain.AuthContext, id, role string) (*domain.Principal, error)
	RemoveRole(ctx context.Context, caller domain.AuthContext, id, role string) (*domain.Principal, error)
	// OwnerOf returns the principal id owning the user resource id, failing with
	// domain.ErrPrincipalNotFound when it does not exist.
	OwnerOf(ctx context.Context, id string) (string, error)
}
