package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sdcourse/auth-api/internal/api/metrics"
	"github.com/sdcourse/auth-api/internal/core/domain"
	"github.com/sdcourse/auth-api/internal/core/ports"
	"github.com/sdcourse/auth-api/pkg/logger"
)

const callerKey = "auth_context"

// CheckFunc builds the check for the current request, e.g. from path params.
type CheckFunc func(c echo.Context) domain.Check

// Authenticated admits any valid access token.
func Authenticated() CheckFunc {
	return func(echo.Context) domain.Check { return domain.Authenticated() }
}

// Role admits tokens carrying r.
func Role(r domain.Role) CheckFunc {
	return func(echo.Context) domain.Check { return domain.RequireRole(r) }
}

// OwnerOrAdmin admits admins, or the owner of the resource named by path param.
func OwnerOrAdmin(param string, ownerOf func(ctx context.Context, id string) (string, error)) CheckFunc {
	return func(c echo.Context) domain.Check {
		id := c.Param(param)
		return domain.OwnerOrAdmin(func(ctx context.Context) (string, error) {
			return ownerOf(ctx, id)
		})
	}
}

// Authorize extracts the bearer token, asks guard to evaluate check and
// publishes the resulting AuthContext on the echo context. Failures are
// returned for the HTTP error handler to render.
func Authorize(guard ports.Guard, check CheckFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			chk := check(c)

			token, err := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				observe(chk, err)
				return err
			}

			caller, err := guard.Authorize(c.Request().Context(), token, chk)
			if err != nil {
				observe(chk, err)
				return err
			}

			observe(chk, nil)
			c.Set(callerKey, caller)
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithSubject(req.Context(), caller.Subject)))
			return next(c)
		}
	}
}

// Caller returns the AuthContext published by Authorize.
func Caller(c echo.Context) (domain.AuthContext, bool) {
	caller, ok := c.Get(callerKey).(domain.AuthContext)
	return caller, ok
}

// bearerToken returns "" when no header is present so the guard reports a missing token.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: %w: invalid authorization header", domain.ErrUnauthenticated, domain.ErrTokenMalformed)
	}
	return strings.TrimSpace(token), nil
}

func observe(chk domain.Check, err error) {
	switch {
	case err == nil:
		metrics.AuthorizationDecisionsTotal.WithLabelValues("allowed", chk.String()).Inc()
	case errors.Is(err, domain.ErrUnauthenticated):
		metrics.AuthorizationDecisionsTotal.WithLabelValues("unauthenticated", chk.String()).Inc()
		metrics.TokenRejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
	case errors.Is(err, domain.ErrForbidden):
		metrics.AuthorizationDecisionsTotal.WithLabelValues("forbidden", chk.String()).Inc()
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenMissing):
		return "missing"
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrTokenBadSignature):
		return "bad_signature"
	default:
		return "malformed"
	}
}
