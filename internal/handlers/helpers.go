package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shelftrack/shelftrack/internal/apperr"
)

func identityFrom(c echo.Context) string {
	v, _ := c.Get("identity").(string)
	return v
}

func httpStatus(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPrecondition:
		return http.StatusPreconditionFailed
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(httpStatus(err), echo.Map{
		"status":  "error",
		"code":    apperr.CodeOf(err),
		"message": err.Error(),
	})
}

// respond wraps data and, when the mutation produced one, the non-fatal
// warning (a failed audit append) so callers can tell it apart from the
// primary result.
func respond(c echo.Context, status int, data any, warn error) error {
	body := echo.Map{"data": data}
	if warn != nil {
		body["warning"] = warn.Error()
	}
	return c.JSON(status, body)
}
