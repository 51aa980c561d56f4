package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/prontuario/proamp/internal/api/middleware"
	"github.com/prontuario/proamp/internal/core/domain"
)

// ctxUser returns the account resolved by the Session middleware. Its
// absence means the route was mounted without the middleware.
func ctxUser(c echo.Context) (*domain.User, error) {
	user, _ := c.Get(middleware.ContextUser).(*domain.User)
	if user == nil {
		return nil, domain.ErrSessionExpired
	}
	return user, nil
}
