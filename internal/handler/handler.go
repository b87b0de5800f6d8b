package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"payflow/internal/apperr"
	"payflow/pkg/logger"
)

// respondError translates a service error kind into an HTTP response.
// Internal and data-integrity failures are logged and masked.
func respondError(c echo.Context, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindConflict:
		return c.JSON(http.StatusConflict, echo.Map{"error": apperr.MessageOf(err)})
	case apperr.KindUnauthorized:
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": apperr.MessageOf(err)})
	case apperr.KindForbidden:
		return c.JSON(http.StatusForbidden, echo.Map{"error": apperr.MessageOf(err)})
	case apperr.KindNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": apperr.MessageOf(err)})
	case apperr.KindBadRequest:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": apperr.MessageOf(err)})
	default:
		logger.FromEcho(c).Error("request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// pagination is the meta block attached to list responses.
type pagination struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}
