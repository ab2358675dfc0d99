package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sdcourse/auth-api/internal/core/domain"
)

func TestHTTPErrorHandler(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    int
		message string
		field   string
	}{
		{"conflict", domain.NewConflict("email"), http.StatusConflict, "email is already taken", "email"},
		{"throttled", domain.ErrTooManyAttempts, http.StatusTooManyRequests, "too many failed login attempts, try again later", ""},
		{"bad credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials", ""},
		{"expired token", fmt.Errorf("%w: %w", domain.ErrUnauthenticated, domain.ErrTokenExpired), http.StatusUnauthorized, "authentication required", ""},
		{"bad signature", fmt.Errorf("%w: %w", domain.ErrUnauthenticated, domain.ErrTokenBadSignature), http.StatusUnauthorized, "authentication required", ""},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, "access forbidden", ""},
		{"not found", domain.ErrPrincipalNotFound, http.StatusNotFound, "user not found", ""},
		{"invalid role", domain.ErrInvalidRole, http.StatusBadRequest, "invalid role", ""},
		{"last role", domain.ErrLastRole, http.StatusUnprocessableEntity, domain.ErrLastRole.Error(), ""},
		{"echo error", echo.NewHTTPError(http.StatusBadRequest, "invalid payload"), http.StatusBadRequest, "invalid payload", ""},
		{"unexpected", errors.New("mongo: connection reset"), http.StatusInternalServerError, "internal server error", ""},
	}

	handle := NewHTTPErrorHandler(zerolog.Nop())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/users/me", nil), rec)

			handle(tc.err, c)

			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if resp.Error != tc.message || resp.Field != tc.field {
				t.Fatalf("unexpected body %+v", resp)
			}

			challenge := rec.Header().Get(echo.HeaderWWWAuthenticate)
			if (tc.code == http.StatusUnauthorized) != (challenge == "Bearer") {
				t.Fatalf("unexpected WWW-Authenticate %q for %d", challenge, tc.code)
			}
		})
	}
}

func TestHTTPErrorHandler_HeadHasNoBody(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodHead, "/api/users/me", nil), rec)

	NewHTTPErrorHandler(zerolog.Nop())(domain.ErrForbidden, c)

	if rec.Code != http.StatusForbidden || rec.Body.Len() != 0 {
		t.Fatalf("expected bare 403, got %d %q", rec.Code, rec.Body.String())
	}
}
