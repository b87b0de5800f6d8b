package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"payflow/internal/middleware"
	"payflow/internal/repository"
)

// RoleHandler lists a tenant's roles so an admin can pick a role when
// inviting a user.
type RoleHandler struct {
	store repository.Store
}

func NewRoleHandler(store repository.Store) *RoleHandler {
	return &RoleHandler{store: store}
}

func (h *RoleHandler) List(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
	}

	roles, err := h.store.RolesByTenant(c.Request().Context(), caller.TenantID)
	if err != nil {
		return respondError(c, err)
	}

	items := make([]echo.Map, 0, len(roles))
	for _, role := range roles {
		items = append(items, echo.Map{
			"id":          role.ID,
			"name":        role.Name,
			"permissions": role.PermissionSet().Strings(),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
