package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sakashimaa/book-market/services/market/internal/transport/http/handler"
	"github.com/sakashimaa/book-market/services/market/internal/transport/http/middleware"
)

type Handlers struct {
	Book   *handler.BookHandler
	Cart   *handler.CartHandler
	Order  *handler.OrderHandler
	Seller *handler.SellerHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers, tokens middleware.TokenValidator, gatherer prometheus.Gatherer) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api", middleware.NewAuthMiddleware(tokens))

	api.Get("/books/:id", h.Book.FindByID)

	cart := api.Group("/cart")
	cart.Get("", h.Cart.Get)
	cart.Post("", h.Cart.Replace)
	cart.Delete("", h.Cart.Clear)
	cart.Post("/item", h.Cart.AddItem)
	cart.Put("/item/:id", h.Cart.UpdateItem)
	cart.Delete("/item/:id", h.Cart.RemoveItem)

	order := api.Group("/orders")
	order.Post("", h.Order.Create)
	order.Get("", h.Order.ListMine)
	order.Get("/seller", h.Order.ListSeller)
	order.Post("/:id/verify-payment", h.Order.VerifyPayment)
	order.Get("/:id", h.Order.FindByID)
	order.Put("/:id/status", h.Order.UpdateStatus)

	seller := api.Group("/seller")
	seller.Get("/stats", h.Seller.Stats)
	seller.Get("/orders", h.Order.ListSeller)
}
