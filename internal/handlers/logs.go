package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shelftrack/shelftrack/internal/apperr"
	"github.com/shelftrack/shelftrack/internal/backend"
	"github.com/shelftrack/shelftrack/internal/models"
	"github.com/shelftrack/shelftrack/internal/repository"
)

type LogHandler struct {
	Backend *backend.Backend
}

// List returns one store's audit trail, newest first. Logs are read-only at
// this surface; they are written only as mutation side effects.
func (h *LogHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	identity := identityFrom(c)
	storeID := c.Param("id")

	logs, err := backend.GetAll[models.Log](ctx, h.Backend, repository.LogsQuery(identity, storeID))
	if err != nil {
		return errorJSON(c, apperr.Network("network-error", "cannot load logs", err))
	}
	return respond(c, http.StatusOK, logs, nil)
}
