package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TokenParser validates an access token and returns the identity it carries.
type TokenParser interface {
	ParseAccess(token string) (string, error)
}

// RequireLogin rejects requests without a valid Bearer access token and
// stashes the authenticated identity in the request context.
func RequireLogin(p TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			identity, err := p.ParseAccess(strings.TrimPrefix(header, prefix))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set("identity", identity)
			return next(c)
		}
	}
}
