package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sdcourse/auth-api/internal/core/domain"
	"github.com/sdcourse/auth-api/internal/infrastructure/security"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubPrincipalRepo struct {
	mu      sync.Mutex
	byID    map[string]*domain.Principal
	seq     int
	findErr error
}

func newStubPrincipalRepo() *stubPrincipalRepo {
	return &stubPrincipalRepo{byID: make(map[string]*domain.Principal)}
}

func clonePrincipal(p *domain.Principal) *domain.Principal {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Roles = append([]domain.Role(nil), p.Roles...)
	return &clone
}

func (r *stubPrincipalRepo) conflict(p *domain.Principal) error {
	for id, have := range r.byID {
		if id == p.ID {
			continue
		}
		if domain.NormalizeKey(have.Username) == domain.NormalizeKey(p.Username) {
			return domain.NewConflict("username")
		}
		if domain.NormalizeKey(have.Email) == domain.NormalizeKey(p.Email) {
			return domain.NewConflict("email")
		}
	}
	return nil
}

func (r *stubPrincipalRepo) Create(_ context.Context, p *domain.Principal) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.conflict(p); err != nil {
		return nil, err
	}
	r.seq++
	stored := clonePrincipal(p)
	stored.ID = fmt.Sprintf("p-%d", r.seq)
	r.byID[stored.ID] = stored
	return clonePrincipal(stored), nil
}

func (r *stubPrincipalRepo) FindByID(_ context.Context, id string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrPrincipalNotFound
	}
	return clonePrincipal(p), nil
}

func (r *stubPrincipalRepo) FindByIdentifier(_ context.Context, identifier string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	key := domain.NormalizeKey(identifier)
	for _, p := range r.byID {
		if domain.NormalizeKey(p.Username) == key {
			return clonePrincipal(p), nil
		}
	}
	for _, p := range r.byID {
		if domain.NormalizeKey(p.Email) == key {
			return clonePrincipal(p), nil
		}
	}
	return nil, domain.ErrPrincipalNotFound
}

func (r *stubPrincipalRepo) Update(_ context.Context, p *domain.Principal) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; !ok {
		return nil, domain.ErrPrincipalNotFound
	}
	if err := r.conflict(p); err != nil {
		return nil, err
	}
	r.byID[p.ID] = clonePrincipal(p)
	return clonePrincipal(p), nil
}

func (r *stubPrincipalRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return domain.ErrPrincipalNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *stubPrincipalRepo) List(_ context.Context, page domain.PageRequest) ([]*domain.Principal, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*domain.Principal, 0, len(r.byID))
	for _, p := range r.byID {
		all = append(all, clonePrincipal(p))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	if page.Desc {
		sort.SliceStable(all, func(i, j int) bool { return all[i].Username > all[j].Username })
	}

	if page.Size == 0 {
		return all, int64(len(all)), nil
	}
	start := page.Page * page.Size
	if start > len(all) {
		start = len(all)
	}
	end := start + page.Size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

// put stores p directly, bypassing registration.
func (r *stubPrincipalRepo) put(p *domain.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = clonePrincipal(p)
}

type stubThrottle struct {
	max      int
	failures map[string]int
	err      error
}

func newStubThrottle(max int) *stubThrottle {
	return &stubThrottle{max: max, failures: make(map[string]int)}
}

func throttleKey(scope domain.ThrottleScope, key string) string {
	return string(scope) + ":" + domain.NormalizeKey(key)
}

func (s *stubThrottle) Allowed(_ context.Context, scope domain.ThrottleScope, key string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.failures[throttleKey(scope, key)] < s.max, nil
}

func (s *stubThrottle) RecordFailure(_ context.Context, scope domain.ThrottleScope, key string) error {
	if s.err != nil {
		return s.err
	}
	s.failures[throttleKey(scope, key)]++
	return nil
}

func (s *stubThrottle) Reset(_ context.Context, scope domain.ThrottleScope, key string) error {
	delete(s.failures, throttleKey(scope, key))
	return nil
}

func (s *stubThrottle) count(scope domain.ThrottleScope, key string) int {
	return s.failures[throttleKey(scope, key)]
}

type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *recordingAudit) Record(e domain.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) kinds() []domain.AuditKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recordingAudit) last() domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return domain.AuditEvent{}
	}
	return r.events[len(r.events)-1]
}

// countingHasher counts Compare calls.
type countingHasher struct {
	*security.BcryptHasher
	compares int
}

func (h *countingHasher) Compare(hash, password string) error {
	h.compares++
	return h.BcryptHasher.Compare(hash, password)
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	auth     *AuthService
	users    *UserService
	guard    *AccessGuard
	repo     *stubPrincipalRepo
	hasher   *countingHasher
	codec    *security.JWTCodec
	throttle *stubThrottle
	audit    *recordingAudit
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := security.HMACKey([]byte(testSecret))
	if err != nil {
		t.Fatalf("hmac key: %v", err)
	}
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := security.NewJWTCodec(key, security.WithIssuer("auth-api"), security.WithClock(clk.Now))

	f := &fixture{
		repo:     newStubPrincipalRepo(),
		hasher:   &countingHasher{BcryptHasher: security.NewBcryptHasher(bcrypt.MinCost)},
		codec:    codec,
		throttle: newStubThrottle(3),
		audit:    &recordingAudit{},
		clock:    clk,
	}
	f.auth = NewAuthService(f.repo, f.hasher, codec, 15*time.Minute, 7*24*time.Hour, zerolog.Nop(),
		WithThrottle(f.throttle),
		WithAudit(f.audit),
	)
	f.users = NewUserService(f.repo, f.hasher, f.audit, zerolog.Nop())
	f.guard = NewAccessGuard(codec)
	return f
}

func (f *fixture) register(t *testing.T, username, email, password string) *domain.Principal {
	t.Helper()
	p, err := f.auth.Register(context.Background(), username, email, password)
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return p
}

func (f *fixture) login(t *testing.T, identifier, password string) *domain.TokenPair {
	t.Helper()
	pair, err := f.auth.Login(context.Background(), identifier, password)
	if err != nil {
		t.Fatalf("login %s: %v", identifier, err)
	}
	return pair
}

// grant sets roles directly in storage.
func (f *fixture) grant(t *testing.T, id string, roles ...domain.Role) {
	t.Helper()
	p, err := f.repo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find %s: %v", id, err)
	}
	p.Roles = roles
	f.repo.put(p)
}

func mustBeKind(t *testing.T, err error, kinds ...error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error wrapping %v, got nil", kinds)
	}
	for _, k := range kinds {
		if !errors.Is(err, k) {
			t.Fatalf("expected %v to wrap %v", err, k)
		}
	}
}
