package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"payflow/internal/middleware"
	"payflow/internal/service"
	"payflow/pkg/logger"
	"payflow/prometheus"
)

const refreshCookieName = "refresh_token"

// AuthHandler exposes the identity operations over HTTP. The refresh token
// travels exclusively in an HTTP-only cookie scoped to the auth endpoints.
type AuthHandler struct {
	auth       *service.AuthService
	env        string
	refreshTTL time.Duration
}

func NewAuthHandler(auth *service.AuthService, env string, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{auth: auth, env: env, refreshTTL: refreshTTL}
}

func (h *AuthHandler) Register(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RegisterCounter.Inc()

	var req service.RegisterInput
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse registration request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.CompanyName == "" || req.Email == "" || req.Password == "" || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "companyName, email, password and name are required"})
	}

	result, err := h.auth.Register(c.Request().Context(), req)
	if err != nil {
		prometheus.RecordAuthError("register_failed")
		return respondError(c, err)
	}

	h.setRefreshCookie(c, result.RefreshToken)
	prometheus.IncreaseActiveTokens()

	return c.JSON(http.StatusCreated, echo.Map{
		"user":        result.User,
		"tenant":      result.Tenant,
		"accessToken": result.AccessToken,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.LoginCounter.Inc()

	var req service.LoginInput
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse login request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	result, err := h.auth.Login(c.Request().Context(), req)
	if err != nil {
		prometheus.RecordAuthError("login_failure")
		return respondError(c, err)
	}

	h.setRefreshCookie(c, result.RefreshToken)
	prometheus.IncreaseActiveTokens()

	return c.JSON(http.StatusOK, echo.Map{
		"user":        result.User,
		"tenant":      result.Tenant,
		"permissions": result.Permissions,
		"accessToken": result.AccessToken,
	})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	prometheus.RefreshCounter.Inc()

	var token string
	if cookie, err := c.Cookie(refreshCookieName); err == nil {
		token = cookie.Value
	}

	result, err := h.auth.Refresh(c.Request().Context(), token)
	if err != nil {
		prometheus.RecordAuthError("refresh_failure")
		return respondError(c, err)
	}

	h.setRefreshCookie(c, result.RefreshToken)

	return c.JSON(http.StatusOK, echo.Map{
		"user":        result.User,
		"tenant":      result.Tenant,
		"permissions": result.Permissions,
		"accessToken": result.AccessToken,
	})
}

// Logout clears the refresh cookie. Previously issued refresh tokens stay
// valid until their own expiry; there is no server-side registry.
func (h *AuthHandler) Logout(c echo.Context) error {
	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHandler) CreateInvite(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.InviteCounter.With(map[string]string{"operation": "create"}).Inc()

	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
	}

	var req service.InviteInput
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse invite request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}

	result, err := h.auth.CreateInvite(c.Request().Context(), caller, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *AuthHandler) AcceptInvite(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.InviteCounter.With(map[string]string{"operation": "accept"}).Inc()

	var req service.AcceptInviteInput
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse accept-invite request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Password == "" || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password and name are required"})
	}

	result, err := h.auth.AcceptInvite(c.Request().Context(), c.Param("token"), req)
	if err != nil {
		return respondError(c, err)
	}

	h.setRefreshCookie(c, result.RefreshToken)

	return c.JSON(http.StatusCreated, echo.Map{
		"user":        result.User,
		"accessToken": result.AccessToken,
	})
}

func (h *AuthHandler) Me(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
	}

	result, err := h.auth.GetMe(c.Request().Context(), caller.UserID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"user":        result.User,
		"tenant":      result.Tenant,
		"permissions": result.Permissions,
	})
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   h.env == "production",
		SameSite: http.SameSiteLaxMode,
		Path:     "/auth",
		MaxAge:   int(h.refreshTTL.Seconds()),
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   h.env == "production",
		SameSite: http.SameSiteLaxMode,
		Path:     "/auth",
		MaxAge:   -1,
	})
}
