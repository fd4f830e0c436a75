package server

import (
	"coffeeshop/internal/handler"
	"coffeeshop/internal/middleware"
	"coffeeshop/internal/repository"

	"github.com/labstack/echo/v4"
)

// 全ハンドラ
type Handlers struct {
	Health     *handler.HealthHandler
	Auth       *handler.AuthHandler
	Product    *handler.ProductHandler
	Cart       *handler.CartHandler
	Order      *handler.OrderHandler
	Payment    *handler.PaymentHandler
	AdminOrder *handler.AdminOrderHandler
}

func RegisterRoutes(e *echo.Echo, h Handlers, verifier middleware.TokenVerifier, userRepo repository.UserRepository) {
	h.Health.RegisterRoutes(e)
	h.Auth.RegisterRoutes(e, verifier, userRepo)
	h.Product.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e, verifier, userRepo)
	h.Order.RegisterRoutes(e, verifier, userRepo)
	h.Payment.RegisterRoutes(e, verifier, userRepo)
	h.AdminOrder.RegisterRoutes(e, verifier, userRepo)
}
