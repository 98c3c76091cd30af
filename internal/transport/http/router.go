package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beerlab/internal/handlers"
)

type Deps struct {
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	OrderHandler   *handlers.OrderHandler
	SearchHandler  *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")

	api.POST("/register", d.AuthHandler.Register)
	api.POST("/login", d.AuthHandler.Login)
	api.POST("/user/balance", d.AuthHandler.TopUpBalance)

	products := api.Group("/product")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/types", d.ProductHandler.GetProductTypes)
	products.GET("/search", d.SearchHandler.Search)
	products.GET("/:id", d.ProductHandler.GetProduct)
	products.POST("", d.ProductHandler.CreateProduct)
	products.PUT("", d.ProductHandler.UpdateProduct)
	products.DELETE("/:id", d.ProductHandler.DeleteProduct)

	orders := api.Group("/order")
	orders.POST("", d.OrderHandler.AddToOrder)
	orders.POST("/reduce/:id", d.OrderHandler.ReduceQuantity)
	orders.DELETE("/:orderId/delete/:productId", d.OrderHandler.DeleteProductFromOrder)
	orders.GET("", d.OrderHandler.GetAllOrders)
	orders.GET("/current", d.OrderHandler.GetQueue)
	orders.GET("/open", d.OrderHandler.GetOpenOrder)
	orders.GET("/my", d.OrderHandler.GetMyOrders)
	orders.GET("/history", d.OrderHandler.GetOrderHistory)
	orders.POST("/confirm", d.OrderHandler.ConfirmOrder)
	orders.POST("/orderPosition/:id", d.OrderHandler.GetQueuePosition)
	orders.GET("/:id", d.OrderHandler.GetOrder)
	orders.POST("/:id", d.OrderHandler.ChangeStatus)
}
