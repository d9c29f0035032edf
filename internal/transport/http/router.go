package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/mandymgr/helseriet-backend/internal/handlers"
	"github.com/mandymgr/helseriet-backend/internal/service/token"
)

type Deps struct {
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	CartHandler    *handlers.CartHandler
	OrderHandler   *handlers.OrderHandler
	WebhookHandler *handlers.WebhookHandler
	SearchHandler  *handlers.SearchHandler
	TokenService   *token.TokenService
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)
	v1.GET("/search", d.SearchHandler.Search)

	// Provider callbacks carry no user session.
	v1.POST("/payments/vipps/webhook", d.WebhookHandler.HandleVippsWebhook)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	cart := v1.Group("/cart", d.TokenService.AutoRefreshMiddleware)
	cart.GET("", d.CartHandler.GetCart)
	cart.POST("", d.CartHandler.AddToCart)
	cart.DELETE("/:id", d.CartHandler.DeleteOneFromCart)
	cart.DELETE("/:id/all", d.CartHandler.DeleteAllFromCart)

	orders := v1.Group("/orders", d.TokenService.AutoRefreshMiddleware)
	orders.POST("", d.OrderHandler.CreateOrder)
	orders.GET("", d.OrderHandler.ListOrders)
	orders.GET("/:id", d.OrderHandler.GetOrder)
	orders.POST("/:id/cancel", d.OrderHandler.CancelOrder)
	orders.GET("/:id/payment-status", d.OrderHandler.GetPaymentStatus)

	admin := v1.Group("/admin", d.TokenService.AutoRefreshMiddlewareAdmin)
	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)
	admin.PATCH("/orders/:id/status", d.OrderHandler.UpdateOrderStatus)
	admin.POST("/orders/:id/capture", d.OrderHandler.CapturePayment)
	admin.POST("/orders/:id/cancel-payment", d.OrderHandler.CancelPayment)
	admin.POST("/orders/:id/refresh-payment", d.OrderHandler.RefreshPaymentStatus)
}
