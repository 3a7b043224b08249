package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/shelftrack/shelftrack/internal/authsvc"
	"github.com/shelftrack/shelftrack/internal/handlers"
	authmw "github.com/shelftrack/shelftrack/internal/middleware/auth"
)

type Deps struct {
	Auth           *authsvc.Service
	AuthHandler    *handlers.AuthHandler
	StoreHandler   *handlers.StoreHandler
	ProductHandler *handlers.ProductHandler
	LogHandler     *handlers.LogHandler
	SearchHandler  *handlers.SearchHandler
	WatchHandler   *handlers.WatchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.Logout)
	v1.POST("/refresh", d.AuthHandler.Refresh)

	private := v1.Group("", authmw.RequireLogin(d.Auth))

	private.GET("/stores", d.StoreHandler.List)
	private.POST("/stores", d.StoreHandler.Create)
	private.PATCH("/stores/:id", d.StoreHandler.Update)
	private.DELETE("/stores/:id", d.StoreHandler.Delete)

	private.GET("/stores/:id/products", d.ProductHandler.List)
	private.POST("/stores/:id/products", d.ProductHandler.Create)
	private.PATCH("/products/:id", d.ProductHandler.Update)
	private.DELETE("/products/:id", d.ProductHandler.Delete)

	private.GET("/stores/:id/logs", d.LogHandler.List)

	private.GET("/search", d.SearchHandler.Handler)

	private.GET("/watch/stores", d.WatchHandler.Stores)
	private.GET("/watch/stores/:id/products", d.WatchHandler.Products)
}
