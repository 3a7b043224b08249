package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shelftrack/shelftrack/internal/logging"
	"github.com/shelftrack/shelftrack/internal/models"
	"github.com/shelftrack/shelftrack/internal/repository"
)

type StoreHandler struct {
	Stores *repository.Repository[models.Store]
}

func (h *StoreHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	identity := identityFrom(c)

	stores, err := h.Stores.List(ctx, repository.StoresQuery(identity))
	if err != nil {
		return errorJSON(c, err)
	}
	return respond(c, http.StatusOK, stores, nil)
}

func (h *StoreHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "stores.create")
	identity := identityFrom(c)

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	store := models.Store{Name: req.Name, Description: req.Description}
	warn, err := h.Stores.Create(ctx, identity, &store)
	if err != nil {
		l.Warn("store_create_failed", "error", err)
		return errorJSON(c, err)
	}

	l.Info("store_create_success", "store_id", store.ID)
	return respond(c, http.StatusCreated, store, warn)
}

func (h *StoreHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "stores.update")
	identity := identityFrom(c)
	id := c.Param("id")

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	store, warn, err := h.Stores.Update(ctx, identity, id, func(s *models.Store) error {
		if req.Name != nil {
			s.Name = *req.Name
		}
		if req.Description != nil {
			s.Description = *req.Description
		}
		return nil
	})
	if err != nil {
		l.Warn("store_update_failed", "store_id", id, "error", err)
		return errorJSON(c, err)
	}

	return respond(c, http.StatusOK, store, warn)
}

func (h *StoreHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "stores.delete")
	identity := identityFrom(c)
	id := c.Param("id")

	warn, err := h.Stores.Delete(ctx, identity, id)
	if err != nil {
		l.Warn("store_delete_failed", "store_id", id, "error", err)
		return errorJSON(c, err)
	}

	l.Info("store_delete_success", "store_id", id)
	if warn != nil {
		return respond(c, http.StatusOK, nil, warn)
	}
	return c.NoContent(http.StatusNoContent)
}
