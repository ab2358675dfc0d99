package domain

import (
	"strings"
	"time"
)

// Role is one of the fixed authorities a principal may hold.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// ParseRole resolves a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	}
	return "", ErrInvalidRole
}

// Principal is a user account able to authenticate.
type Principal struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRole reports whether r is among the principal's persisted roles.
func (p *Principal) HasRole(r Role) bool {
	for _, have := range p.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// Authorities returns the role names in token form.
func (p *Principal) Authorities() []string {
	out := make([]string, len(p.Roles))
	for i, r := range p.Roles {
		out[i] = string(r)
	}
	return out
}

// AddRole grants r. It reports false when the role was already held.
func (p *Principal) AddRole(r Role) bool {
	if p.HasRole(r) {
		return false
	}
	p.Roles = append(p.Roles, r)
	return true
}

// RemoveRole revokes r, refusing to leave the principal without any role.
func (p *Principal) RemoveRole(r Role) error {
	if !p.HasRole(r) {
		return nil
	}
	if len(p.Roles) == 1 {
		return ErrLastRole
	}
	kept := make([]Role, 0, len(p.Roles)-1)
	for _, have := range p.Roles {
		if have != r {
			kept = append(kept, have)
		}
	}
	p.Roles = kept
	return nil
}

// NormalizeKey is the case-folded form used for uniqueness and lookup.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// PageRequest selects a slice of principals. Page is 0-based.
type PageRequest struct {
	Page   int
	Size   int
	SortBy string
	Desc   bool
}

// Page is a slice of principals plus totals.
type Page struct {
	Items      []*Principal
	Total      int64
	Page       int
	Size       int
	TotalPages int
}
