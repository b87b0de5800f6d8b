package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"payflow/internal/permission"
	"payflow/internal/repository"
	"payflow/internal/service"
	"payflow/pkg/jwtutil"
	"payflow/pkg/logger"
	"payflow/prometheus"
)

const callerContextKey = "caller"

// Auth is the per-request session boundary: it turns a bearer access token
// into a Caller with freshly resolved permissions.
type Auth struct {
	tokens *jwtutil.Issuer
	store  repository.Store
	auth   *service.AuthService
}

func NewAuth(tokens *jwtutil.Issuer, store repository.Store, auth *service.AuthService) *Auth {
	return &Auth{tokens: tokens, store: store, auth: auth}
}

// Authenticate validates the JWT token from the Authorization header, loads
// the subject and resolves its permission set.
func (a *Auth) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromEcho(c)

		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Warn("Missing Authorization header")
			prometheus.RecordAuthError("missing_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Warn("Invalid Authorization header format")
			prometheus.RecordAuthError("invalid_auth_format")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
		}

		claims, err := a.tokens.VerifyAccessToken(parts[1])
		if err != nil {
			if errors.Is(err, jwtutil.ErrExpiredToken) {
				prometheus.RecordAuthError("token_expired")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token expired"})
			}
			prometheus.RecordAuthError("invalid_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}

		user, err := a.store.UserByID(c.Request().Context(), claims.UserID)
		if err != nil || !user.IsActive {
			prometheus.RecordAuthError("unknown_principal")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}

		perms, err := a.auth.ResolvePermissions(c.Request().Context(), user.ID)
		if err != nil {
			log.Error("Failed to resolve permissions", zap.String("user_id", user.ID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}

		c.Set(callerContextKey, service.Caller{
			UserID:      user.ID,
			TenantID:    user.TenantID,
			Permissions: perms,
		})
		return next(c)
	}
}

// RequirePermissions gates a route on the caller holding every listed key.
// An empty requirement always passes. Failing the check is 403, distinct
// from the 401 of a failed authentication.
func RequirePermissions(keys ...permission.Key) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, ok := CallerFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}
			if !caller.Permissions.HasAll(keys...) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
			}
			return next(c)
		}
	}
}

// CallerFrom retrieves the authenticated caller set by Authenticate.
func CallerFrom(c echo.Context) (service.Caller, bool) {
	caller, ok := c.Get(callerContextKey).(service.Caller)
	return caller, ok
}
