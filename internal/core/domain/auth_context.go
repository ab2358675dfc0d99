package domain

import (
	"context"
	"errors"
	"time"
)

// AuthContext is the resolved identity of the caller for a single request.
type AuthContext struct {
	Subject   string
	Username  string
	Roles     []Role
	TokenID   string
	ExpiresAt time.Time
}

// HasRole reports whether the caller's token carried r.
func (a AuthContext) HasRole(r Role) bool {
	for _, have := range a.Roles {
		if have == r {
			return true
		}
	}
	return false
}

func (a AuthContext) IsAdmin() bool { return a.HasRole(RoleAdmin) }

// OwnerLookup resolves the owning principal id of the resource being accessed.
type OwnerLookup func(ctx context.Context) (string, error)

type checkKind int

const (
	checkAuthenticated checkKind = iota
	checkRole
	checkOwner
)

// Check is the requirement an operation places on its caller.
type Check struct {
	kind  checkKind
	role  Role
	owner OwnerLookup
}

// Authenticated accepts any caller holding a valid access token.
func Authenticated() Check { return Check{kind: checkAuthenticated} }

// RequireRole accepts callers whose token carries r.
func RequireRole(r Role) Check { return Check{kind: checkRole, role: r} }

// OwnerOrAdmin accepts admins, or callers whose subject equals the id returned by lookup.
func OwnerOrAdmin(lookup OwnerLookup) Check { return Check{kind: checkOwner, owner: lookup} }

// Evaluate applies the check to an already authenticated caller.
// Admins satisfy ownership without the lookup being called. For everyone else a
// missing resource is reported as ErrForbidden so ids cannot be probed.
func (c Check) Evaluate(ctx context.Context, caller AuthContext) error {
	switch c.kind {
	case checkAuthenticated:
		return nil
	case checkRole:
		if caller.HasRole(c.role) {
			return nil
		}
		return ErrForbidden
	case checkOwner:
		if caller.IsAdmin() {
			return nil
		}
		if c.owner == nil {
			return ErrForbidden
		}
		ownerID, err := c.owner(ctx)
		if errors.Is(err, ErrPrincipalNotFound) {
			return ErrForbidden
		}
		if err != nil {
			return err
		}
		if ownerID == "" || ownerID != caller.Subject {
			return ErrForbidden
		}
		return nil
	}
	return ErrForbidden
}

// String names the check for logs and metrics.
func (c Check) String() string {
	switch c.kind {
	case checkRole:
		return "role:" + string(c.role)
	case checkOwner:
		return "owner_or_admin"
	}
	return "authenticated"
}
