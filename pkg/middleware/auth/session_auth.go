package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	jwthelp "github.com/Skotchmaster/vending_machine/pkg/jwt"
	"github.com/Skotchmaster/vending_machine/pkg/logging"
	"github.com/Skotchmaster/vending_machine/pkg/tokens"
)

const (
	ctxUserID    = "user_id"
	ctxRole      = "role"
	ctxSessionID = "session_id"
	ctxAuthVia   = "auth_via"
)

const SessionTerminated = "This session has been terminated."

// SessionValidator reports whether sessionID is still an active session of
// the account.
type SessionValidator interface {
	Validate(ctx context.Context, accountID uint, sessionID string) (bool, error)
}

type SessionAuth struct {
	JWTSecret []byte
	Sessions  SessionValidator
	Secure    bool
}

func NewSessionAuth(secret []byte, sessions SessionValidator, secure bool) *SessionAuth {
	return &SessionAuth{JWTSecret: secret, Sessions: sessions, Secure: secure}
}

// BearerToken returns the credential from the Authorization header, or ""
// when the header is absent or not a bearer credential.
func BearerToken(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth accepts a bearer credential or the access cookie and, on top
// of the signature check, asks the session registry whether the session
// behind the credential is still active.
func (m *SessionAuth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		l := logging.FromContext(c.Request().Context()).With("mw", "session_auth")

		raw, via := BearerToken(c.Request()), "bearer"
		if raw == "" {
			if cookie, err := c.Cookie(jwthelp.AccessCookie); err == nil {
				raw, via = cookie.Value, "cookie"
			}
		}
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authentication credentials were not provided.")
		}

		claims, err := tokens.AccessClaimsFromToken(raw, m.JWTSecret)
		if err != nil {
			if via == "cookie" {
				m.clearCookies(c)
			}
			if errors.Is(err, jwt.ErrTokenExpired) {
				return echo.NewHTTPError(http.StatusUnauthorized, "access token expired")
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}

		userID, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil || claims.SessionID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}

		active, err := m.Sessions.Validate(c.Request().Context(), uint(userID), claims.SessionID)
		if err != nil {
			l.Error("session_check_failed", "user_id", userID, "error", err)
			return err
		}
		if !active {
			l.Warn("session_terminated", "status", 401, "user_id", userID)
			if via == "cookie" {
				m.clearCookies(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, SessionTerminated)
		}

		c.Set(ctxUserID, uint(userID))
		c.Set(ctxRole, claims.Role)
		c.Set(ctxSessionID, claims.SessionID)
		c.Set(ctxAuthVia, via)
		return next(c)
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := Role(c)
			for _, r := range roles {
				if r == role {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "You do not have permission to perform this action.")
		}
	}
}

func (m *SessionAuth) clearCookies(c echo.Context) {
	c.SetCookie(jwthelp.DeleteCookie(jwthelp.AccessCookie, "/", m.Secure))
	c.SetCookie(jwthelp.DeleteCookie(jwthelp.RefreshCookie, "/", m.Secure))
}

func UserID(c echo.Context) uint {
	id, _ := c.Get(ctxUserID).(uint)
	return id
}

func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

func SessionID(c echo.Context) string {
	s, _ := c.Get(ctxSessionID).(string)
	return s
}

// ViaCookie reports whether the request authenticated with the access cookie.
func ViaCookie(c echo.Context) bool {
	v, _ := c.Get(ctxAuthVia).(string)
	return v == "cookie"
}
