package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sdcourse/auth-api/internal/core/domain"
	"github.com/sdcourse/auth-api/internal/core/ports"
)

// UserHandler serves /api/users. Every route sits behind the Authorize
// middleware, which has already decided access.
type UserHandler struct {
	users ports.UserService
}

func NewUserHandler(users ports.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// List returns a page of users.
//
// @Summary      List users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        page     query     int     false  "0-based page index"
// @Param        size     query     int     false  "Page size"
// @Param        sortBy   query     string  false  "username, email or created_at"
// @Param        sortDir  query     string  false  "asc or desc"
// @Success      200      {object}  pageResponse
// @Failure      401      {object}  map[string]string
// @Failure      403      {object}  map[string]string
// @Router       /api/users [get]
func (h *UserHandler) List(c echo.Context) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}

	var (
		req     domain.PageRequest
		sortDir string
	)
	if err := echo.QueryParamsBinder(c).
		Int("page", &req.Page).
		Int("size", &req.Size).
		String("sortBy", &req.SortBy).
		String("sortDir", &sortDir).
		BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid paging parameters")
	}
	req.Desc = strings.EqualFold(sortDir, "desc")

	page, err := h.users.List(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPageResponse(page))
}

// ListAll returns every user without paging.
//
// @Summary      List all users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   userResponse
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /api/users/list [get]
func (h *UserHandler) ListAll(c echo.Context) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	items, err := h.users.ListAll(c.Request().Context(), caller)
	if err != nil {
		return err
	}
	out := make([]userResponse, len(items))
	for i, p := range items {
		out[i] = toUserResponse(p)
	}
	return c.JSON(http.StatusOK, out)
}

// Me returns the authenticated user.
//
// @Summary      Current user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  userResponse
// @Failure      401  {object}  map[string]string
// @Router       /api/users/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	p, err := h.users.Me(c.Request().Context(), caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(p))
}

// Get returns one user.
//
// @Summary      Get user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  userResponse
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/users/{id} [get]
func (h *UserHandler) Get(c echo.Context) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	p, err := h.users.Get(c.Request().Context(), caller, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(p))
}

// Update changes profile fields. Roles are applied only for admins.
//
// @Summary      Update user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string             true  "User ID"
// @Param        body  body      updateUserRequest  true  "Fields to change"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/users/{id} [put]
func (h *UserHandler) Update(c echo.Context) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}

	var req updateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p, err := h.users.Update(c.Request().Context(), caller, c.Param("id"), ports.UpdatePrincipalInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Roles:    req.Roles,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(p))
}

// Delete removes a user.
//
// @Summary      Delete user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  messageResponse
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/users/{id} [delete]
func (h *UserHandler) Delete(c echo.Context) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	if err := h.users.Delete(c.Request().Context(), caller, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "user deleted successfully"})
}

// AssignRole grants a role.
//
// @Summary      Assign role
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string  true  "User ID"
// @Param        role  path      string  true  "ADMIN or USER"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/users/{id}/roles/{role} [post]
func (h *UserHandler) AssignRole(c echo.Context) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	p, err := h.users.AssignRole(c.Request().Context(), caller, c.Param("id"), c.Param("role"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(p))
}

// RemoveRole revokes a role. A user's last role cannot be removed.
//
// @Summary      Remove role
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string  true  "User ID"
// @Param        role  path      string  true  "ADMIN or USER"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /api/users/{id}/roles/{role} [delete]
func (h *UserHandler) RemoveRole(c echo.Context) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	p, err := h.users.RemoveRole(c.Request().Context(), caller, c.Param("id"), c.Param("role"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(p))
}
