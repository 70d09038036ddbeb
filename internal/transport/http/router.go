package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/handlers"
	authmw "github.com/Skotchmaster/vending_machine/pkg/middleware/auth"
	"github.com/Skotchmaster/vending_machine/pkg/middleware/csrf"
)

type Deps struct {
	Ping           func(ctx context.Context) error
	Gatherer       prometheus.Gatherer
	Auth           *authmw.SessionAuth
	CookieSecure   bool
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	VendingHandler *handlers.VendingHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.HTTPErrorHandler = handlers.ErrorHandler

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ping != nil {
			if err := d.Ping(c.Request().Context()); err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api", csrf.Middleware(csrf.Config{Secure: d.CookieSecure}))

	buyer := authmw.RequireRole(string(domain.RoleBuyer))
	seller := authmw.RequireRole(string(domain.RoleSeller))

	users := api.Group("/users")

	users.POST("", d.AuthHandler.Register)
	users.POST("/login", d.AuthHandler.Login)
	users.POST("/login/refresh", d.AuthHandler.Refresh)

	me := users.Group("", d.Auth.RequireAuth)

	me.GET("/me", d.AuthHandler.Me)
	me.GET("/sessions", d.AuthHandler.Sessions)
	me.POST("/logout", d.AuthHandler.Logout)
	me.POST("/logout/all", d.AuthHandler.LogoutAll)
	me.POST("/deposit", d.VendingHandler.Deposit, buyer)
	me.POST("/reset-deposit", d.VendingHandler.ResetDeposit, buyer)

	products := api.Group("/products", d.Auth.RequireAuth)

	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)
	products.POST("", d.ProductHandler.CreateProduct, seller)
	products.POST("/buy", d.VendingHandler.Buy, buyer)
	products.PUT("/:id", d.ProductHandler.UpdateProduct, seller)
	products.PATCH("/:id", d.ProductHandler.PatchProduct, seller)
	products.DELETE("/:id", d.ProductHandler.DeleteProduct, seller)
}
