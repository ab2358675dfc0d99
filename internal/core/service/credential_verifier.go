package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sdcourse/auth-api/internal/core/domain"
	"github.com/sdcourse/auth-api/internal/core/ports"
)

// CredentialVerifier checks a username-or-email and password against stored hashes.
type CredentialVerifier struct {
	repo   ports.PrincipalRepository
	hasher ports.PasswordHasher
	// dummyHash is compared against when no principal matches, so unknown
	// identifiers cost as much as wrong passwords.
	dummyHash string
}

func NewCredentialVerifier(repo ports.PrincipalRepository, hasher ports.PasswordHasher) *CredentialVerifier {
	dummy, _ := hasher.Hash("not-a-real-password")
	return &CredentialVerifier{repo: repo, hasher: hasher, dummyHash: dummy}
}

// Verify returns the matching principal, or domain.ErrInvalidCredentials for both an
// unknown identifier and a wrong password. On a wrong password the matched principal
// is returned alongside the error so the failure can be charged to the account.
func (v *CredentialVerifier) Verify(ctx context.Context, identifier, password string) (*domain.Principal, error) {
	if identifier == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	p, err := v.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrPrincipalNotFound) {
			_ = v.hasher.Compare(v.dummyHash, password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("verify credentials: %w", err)
	}

	if v.hasher.Compare(p.PasswordHash, password) != nil {
		return p, domain.ErrInvalidCredentials
	}
	return p, nil
}
