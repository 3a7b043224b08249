package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shelftrack/shelftrack/internal/logging"
	"github.com/shelftrack/shelftrack/internal/models"
	"github.com/shelftrack/shelftrack/internal/repository"
)

type ProductHandler struct {
	Products *repository.Repository[models.Product]
	Stores   *repository.Repository[models.Store]
}

func (h *ProductHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	identity := identityFrom(c)
	storeID := c.Param("id")

	products, err := h.Products.List(ctx, repository.ProductsQuery(identity, storeID))
	if err != nil {
		return errorJSON(c, err)
	}
	return respond(c, http.StatusOK, products, nil)
}

func (h *ProductHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "products.create")
	identity := identityFrom(c)
	storeID := c.Param("id")

	var req struct {
		Name     string  `json:"name"`
		Price    float64 `json:"price"`
		Quantity uint    `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	// The referenced store must exist and belong to the caller.
	if _, err := h.Stores.Get(ctx, identity, storeID); err != nil {
		l.Warn("product_create_failed", "store_id", storeID, "error", err)
		return errorJSON(c, err)
	}

	product := models.Product{
		StoreID:     storeID,
		DisplayName: req.Name,
		Price:       req.Price,
		Quantity:    req.Quantity,
	}
	warn, err := h.Products.Create(ctx, identity, &product)
	if err != nil {
		l.Warn("product_create_failed", "store_id", storeID, "error", err)
		return errorJSON(c, err)
	}

	l.Info("product_create_success", "product_id", product.ID)
	return respond(c, http.StatusCreated, product, warn)
}

func (h *ProductHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "products.update")
	identity := identityFrom(c)
	id := c.Param("id")

	var req struct {
		Name     *string  `json:"name"`
		Price    *float64 `json:"price"`
		Quantity *uint    `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	product, warn, err := h.Products.Update(ctx, identity, id, func(p *models.Product) error {
		if req.Name != nil {
			p.DisplayName = *req.Name
		}
		if req.Price != nil {
			p.Price = *req.Price
		}
		if req.Quantity != nil {
			p.Quantity = *req.Quantity
		}
		return nil
	})
	if err != nil {
		l.Warn("product_update_failed", "product_id", id, "error", err)
		return errorJSON(c, err)
	}

	return respond(c, http.StatusOK, product, warn)
}

func (h *ProductHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "products.delete")
	identity := identityFrom(c)
	id := c.Param("id")

	warn, err := h.Products.Delete(ctx, identity, id)
	if err != nil {
		l.Warn("product_delete_failed", "product_id", id, "error", err)
		return errorJSON(c, err)
	}

	l.Info("product_delete_success", "product_id", id)
	if warn != nil {
		return respond(c, http.StatusOK, nil, warn)
	}
	return c.NoContent(http.StatusNoContent)
}
