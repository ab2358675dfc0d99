package handler

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/sdcourse/auth-api/internal/api/middleware"
	"github.com/sdcourse/auth-api/internal/core/domain"
)

// callerFrom returns the AuthContext published by the Authorize middleware.
// A route reaching a handler without it is a wiring mistake and still fails
// closed with 401.
func callerFrom(c echo.Context) (domain.AuthContext, error) {
	caller, ok := middleware.Caller(c)
	if !ok || caller.Subject == "" {
		return domain.AuthContext{}, fmt.Errorf("%w: missing authentication context", domain.ErrUnauthenticated)
	}
	return caller, nil
}
