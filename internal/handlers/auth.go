package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/service"
	jwthelp "github.com/Skotchmaster/vending_machine/pkg/jwt"
	"github.com/Skotchmaster/vending_machine/pkg/logging"
	authmw "github.com/Skotchmaster/vending_machine/pkg/middleware/auth"
)

type AuthHandler struct {
	Auth         *service.AuthService
	CookieSecure bool
}

func (h *AuthHandler) Register(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth.register")

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	user, err := h.Auth.Register(c.Request().Context(), service.RegisterInput{
		Username:        req.Username,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		Role:            req.Role,
	})
	if err != nil {
		return err
	}

	l.Info("user_registered", "status", 201, "user_id", user.ID)
	return c.JSON(http.StatusCreated, newUserResponse(user, ""))
}

func (h *AuthHandler) Login(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth.login")

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := h.Auth.Login(c.Request().Context(), req.Username, req.Password, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		if errors.Is(err, domain.ErrTooManySessions) {
			return c.JSON(http.StatusBadRequest, errorBody{Detail: activeSessionDetail, ActiveSessions: true})
		}
		return err
	}

	c.SetCookie(jwthelp.CreateCookie(jwthelp.AccessCookie, res.AccessToken, "/", res.AccessExp, h.CookieSecure))
	c.SetCookie(jwthelp.CreateCookie(jwthelp.RefreshCookie, res.RefreshToken, "/", res.RefreshExp, h.CookieSecure))

	l.Info("login_success", "status", 200, "user_id", res.User.ID)
	return c.JSON(http.StatusOK, tokenResponse{
		Access:     res.AccessToken,
		Refresh:    res.RefreshToken,
		AccessExp:  res.AccessExp.Unix(),
		RefreshExp: res.RefreshExp.Unix(),
	})
}

// Refresh reads the refresh credential from the body, falling back to the
// refresh cookie.
func (h *AuthHandler) Refresh(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth.refresh")

	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Refresh == "" {
		if cookie, err := c.Cookie(jwthelp.RefreshCookie); err == nil {
			req.Refresh = cookie.Value
		}
	}
	if req.Refresh == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh token is required")
	}

	res, err := h.Auth.Refresh(c.Request().Context(), req.Refresh)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotActive) || errors.Is(err, service.ErrInvalidRefreshToken) {
			h.clearCookies(c)
		}
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Token is invalid or expired")
		}
		return err
	}

	c.SetCookie(jwthelp.CreateCookie(jwthelp.AccessCookie, res.AccessToken, "/", res.AccessExp, h.CookieSecure))
	return c.JSON(http.StatusOK, tokenResponse{Access: res.AccessToken, AccessExp: res.AccessExp.Unix()})
}

func (h *AuthHandler) Me(c echo.Context) error {
	user, err := h.Auth.Me(c.Request().Context(), authmw.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newUserResponse(user, authmw.SessionID(c)))
}

func (h *AuthHandler) Sessions(c echo.Context) error {
	sessions, err := h.Auth.ActiveSessions(c.Request().Context(), authmw.UserID(c))
	if err != nil {
		return err
	}

	current := authmw.SessionID(c)
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			SessionID:    s.SessionID,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			ExpiresAt:    s.ExpiresAt,
			Current:      s.SessionID == current,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) Logout(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth.logout")

	userID := authmw.UserID(c)
	if err := h.Auth.Logout(c.Request().Context(), userID, authmw.SessionID(c)); err != nil {
		return err
	}
	h.clearCookies(c)

	l.Info("logout_success", "status", 200, "user_id", userID)
	return c.JSON(http.StatusOK, map[string]string{"detail": "Successfully logged out."})
}

func (h *AuthHandler) LogoutAll(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth.logout_all")

	userID := authmw.UserID(c)
	n, err := h.Auth.LogoutAll(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	h.clearCookies(c)

	l.Info("logout_all_success", "status", 200, "user_id", userID, "sessions", n)
	return c.JSON(http.StatusOK, map[string]any{
		"detail":           "All sessions terminated.",
		"revoked_sessions": n,
	})
}

func (h *AuthHandler) clearCookies(c echo.Context) {
	c.SetCookie(jwthelp.DeleteCookie(jwthelp.AccessCookie, "/", h.CookieSecure))
	c.SetCookie(jwthelp.DeleteCookie(jwthelp.RefreshCookie, "/", h.CookieSecure))
}
