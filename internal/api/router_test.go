package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sdcourse/auth-api/internal/api/handler"
	"github.com/sdcourse/auth-api/internal/core/domain"
	"github.com/sdcourse/auth-api/internal/core/service"
	"github.com/sdcourse/auth-api/internal/infrastructure/security"
)

// memRepo is an in-memory PrincipalRepository.
type memRepo struct {
	mu   sync.Mutex
	byID map[string]domain.Principal
	seq  int
}

func (r *memRepo) taken(p *domain.Principal) error {
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

func (r *memRepo) Create(_ context.Context, p *domain.Principal) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.taken(p); err != nil {
		return nil, err
	}
	r.seq++
	stored := *p
	stored.ID = fmt.Sprintf("u%d", r.seq)
	stored.Roles = append([]domain.Role(nil), p.Roles...)
	r.byID[stored.ID] = stored
	out := stored
	return &out, nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrPrincipalNotFound
	}
	p.Roles = append([]domain.Role(nil), p.Roles...)
	return &p, nil
}

func (r *memRepo) FindByIdentifier(_ context.Context, identifier string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := domain.NormalizeKey(identifier)
	for _, p := range r.byID {
		if domain.NormalizeKey(p.Username) == key || domain.NormalizeKey(p.Email) == key {
			p.Roles = append([]domain.Role(nil), p.Roles...)
			return &p, nil
		}
	}
	return nil, domain.ErrPrincipalNotFound
}

func (r *memRepo) Update(_ context.Context, p *domain.Principal) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; !ok {
		return nil, domain.ErrPrincipalNotFound
	}
	if err := r.taken(p); err != nil {
		return nil, err
	}
	stored := *p
	stored.Roles = append([]domain.Role(nil), p.Roles...)
	r.byID[p.ID] = stored
	return &stored, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return domain.ErrPrincipalNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *memRepo) List(_ context.Context, page domain.PageRequest) ([]*domain.Principal, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*domain.Principal, 0, len(r.byID))
	for _, p := range r.byID {
		all = append(all, &p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	if page.Size == 0 {
		return all, int64(len(all)), nil
	}
	start := min(page.Page*page.Size, len(all))
	end := min(start+page.Size, len(all))
	return all[start:end], int64(len(all)), nil
}

type testServer struct {
	e    *echo.Echo
	auth *service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	key, err := security.HMACKey([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	codec := security.NewJWTCodec(key, security.WithIssuer("auth-api"))
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	repo := &memRepo{byID: make(map[string]domain.Principal)}
	log := zerolog.Nop()

	auth := service.NewAuthService(repo, hasher, codec, 15*time.Minute, time.Hour, log)
	e := NewRouter(Dependencies{
		Auth:       auth,
		Users:      service.NewUserService(repo, hasher, nil, log),
		Guard:      service.NewAccessGuard(codec),
		Health:     map[string]handler.Pinger{},
		Log:        log,
		Registerer: prometheus.NewRegistry(),
	})
	return &testServer{e: e, auth: auth}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

type session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID    string   `json:"id"`
		Roles []string `json:"roles"`
	} `json:"user"`
}

func (s *testServer) login(t *testing.T, identifier, password string) session {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/login", "",
		fmt.Sprintf(`{"usernameOrEmail":%q,"password":%q}`, identifier, password))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRouter_SessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register", "",
		`{"username":"alice","email":"alice@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/auth/register", "",
		`{"username":"ALICE","email":"other@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"username"`)

	alice := s.login(t, "Alice@Example.com", "secret1")
	assert.Equal(t, []string{"USER"}, alice.User.Roles)

	rec = s.do(t, http.MethodGet, "/api/users/me", alice.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	// A refresh token is not an access token.
	rec = s.do(t, http.MethodGet, "/api/users/me", alice.RefreshToken, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/refresh", "", fmt.Sprintf(`{"refreshToken":%q}`, alice.RefreshToken))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/refresh", "", fmt.Sprintf(`{"refreshToken":%q}`, alice.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_Unauthenticated(t *testing.T) {
	s := newTestServer(t)

	for _, token := range []string{"", "not-a-jwt"} {
		rec := s.do(t, http.MethodGet, "/api/users/me", token, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Bearer", rec.Header().Get(echo.HeaderWWWAuthenticate))
		assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())
	}

	rec := s.do(t, http.MethodPost, "/api/auth/login", "", `{"usernameOrEmail":"ghost","password":"whatever"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())
}

func TestRouter_RoleBasedAccess(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.auth.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	_, err = s.auth.Register(ctx, "bob", "bob@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, s.auth.EnsureAdmin(ctx, "root", "root@example.com", "rootpass"))

	alice := s.login(t, "alice", "secret1")
	bob := s.login(t, "bob", "secret1")
	root := s.login(t, "root", "rootpass")

	rec := s.do(t, http.MethodGet, "/api/users", alice.AccessToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/users/list", alice.AccessToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/users/list", root.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var everyone []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &everyone))
	assert.Len(t, everyone, 3)

	rec = s.do(t, http.MethodGet, "/api/users?size=2", root.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalElements":3`)
	assert.Contains(t, rec.Body.String(), `"totalPages":2`)

	// Owners reach their own record only.
	rec = s.do(t, http.MethodGet, "/api/users/"+alice.User.ID, alice.AccessToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/users/"+bob.User.ID, alice.AccessToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/users/"+bob.User.ID, root.AccessToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Unknown ids look the same as foreign ones to non-admins.
	rec = s.do(t, http.MethodGet, "/api/users/u404", alice.AccessToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/users/u404", root.AccessToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Role changes reach the token on the next refresh, not before.
	rec = s.do(t, http.MethodPost, "/api/users/"+alice.User.ID+"/roles/admin", root.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/users", alice.AccessToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/refresh?refreshToken="+alice.RefreshToken, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var refreshed session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refreshed))

	rec = s.do(t, http.MethodGet, "/api/users", refreshed.AccessToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/users/"+bob.User.ID+"/roles/USER", root.AccessToken, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/users/"+bob.User.ID, root.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/refresh", "", fmt.Sprintf(`{"refreshToken":%q}`, bob.RefreshToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
