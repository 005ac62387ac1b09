package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/devhub-auth/internal/model"
)

// ProfileService is the part of *profile.Coordinator the user endpoints use.
type ProfileService interface {
	GetProfile(ctx context.Context, userID string) (model.UserSummary, error)
	UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (model.UserSummary, error)
	DeleteProfile(ctx context.Context, userID string) error
}

// UserHandler serves /v1/users. Every route is authenticated; mutations are
// additionally restricted to the caller's own id by the router.
type UserHandler struct {
	profiles ProfileService
}

func NewUserHandler(profiles ProfileService) *UserHandler {
	return &UserHandler{profiles: profiles}
}

// Me: GET /v1/users/me.
func (h *UserHandler) Me(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	u, err := h.profiles.GetProfile(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// Get: GET /v1/users/:id.
func (h *UserHandler) Get(c echo.Context) error {
	u, err := h.profiles.GetProfile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// Update: PATCH /v1/users/:id. The change is visible to reads at once and
// made durable asynchronously, hence 202.
func (h *UserHandler) Update(c echo.Context) error {
	var req updateProfileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	u, err := h.profiles.UpdateProfile(c.Request().Context(), c.Param("id"), req.patch())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, u)
}

// Delete: DELETE /v1/users/:id. Soft delete.
func (h *UserHandler) Delete(c echo.Context) error {
	if err := h.profiles.DeleteProfile(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}
