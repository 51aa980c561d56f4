package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/prontuario/proamp/internal/core/domain"
	"github.com/prontuario/proamp/internal/core/ports"
)

// Context keys set by Session.
const (
	ContextUser    = "user"
	ContextSession = "session"
)

// SessionCookie is the name of the cookie carrying the signed session token.
const SessionCookie = "sessionid"

// Session resolves the session cookie and injects the user and its server
// session into the context. Missing or dead sessions end the request with
// domain.ErrSessionExpired.
func Session(auth ports.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ck, err := c.Cookie(SessionCookie)
			if err != nil || ck.Value == "" {
				return domain.ErrSessionExpired
			}

			user, sess, err := auth.Authenticate(c.Request().Context(), ck.Value)
			if err != nil {
				return err
			}

			c.Set(ContextUser, user)
			c.Set(ContextSession, sess)
			return next(c)
		}
	}
}
