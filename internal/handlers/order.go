package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"beerlab/internal/logging"
	"beerlab/internal/middleware"
	"beerlab/internal/service"
)

type OrderHandler struct {
	Svc       *service.OrderService
	Producer  EventPublisher
	JWTSecret []byte
}

func (h *OrderHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(event["userID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func pathID(c echo.Context, name string) (uint, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

// AddToOrder merges a product into the caller's open order, creating the
// order on first use.
func (h *OrderHandler) AddToOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.add_product")

	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint `json:"productId"`
		Quantity  int  `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("add_product_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Svc.AddProduct(ctx, userID, req.ProductID, req.Quantity)
	middleware.RecordOrderOperation("add_product", err == nil)
	if err != nil {
		l.Warn("add_product_error", "error", err)
		return httpError(err)
	}

	h.publish(c, map[string]any{
		"type":      "product_added_to_order",
		"userID":    userID,
		"orderID":   order.ID,
		"productID": req.ProductID,
		"quantity":  req.Quantity,
	})
	l.Info("add_product_success", "orderID", order.ID)
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ReduceQuantity(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint `json:"productId"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Svc.ReduceItem(c.Request().Context(), orderID, req.ProductID)
	middleware.RecordOrderOperation("reduce_quantity", err == nil)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) DeleteProductFromOrder(c echo.Context) error {
	orderID, err := pathID(c, "orderId")
	if err != nil {
		return err
	}
	productID, err := pathID(c, "productId")
	if err != nil {
		return err
	}

	order, err := h.Svc.RemoveProduct(c.Request().Context(), orderID, productID)
	middleware.RecordOrderOperation("remove_product", err == nil)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

// ConfirmOrder queues the open order; body carries the payment method
// (1 = balance, 2 = cash).
func (h *OrderHandler) ConfirmOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.confirm")

	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		Method int `json:"method"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Svc.ConfirmOrder(ctx, userID, req.Method)
	middleware.RecordOrderOperation("confirm", err == nil)
	if err != nil {
		l.Warn("confirm_error", "error", err)
		return httpError(err)
	}

	h.publish(c, map[string]any{
		"type":    "order_confirmed",
		"userID":  userID,
		"orderID": order.ID,
		"status":  order.Status,
	})
	l.Info("confirm_success", "orderID", order.ID, "status", order.Status)
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ChangeStatus(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		OrderStatus string `json:"orderStatus"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Svc.ChangeStatus(c.Request().Context(), orderID, req.OrderStatus)
	middleware.RecordOrderOperation("change_status", err == nil)
	if err != nil {
		return httpError(err)
	}

	h.publish(c, map[string]any{
		"type":    "order_status_changed",
		"userID":  order.UserID,
		"orderID": order.ID,
		"status":  order.Status,
	})
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	order, err := h.Svc.Order(c.Request().Context(), orderID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) GetAllOrders(c echo.Context) error {
	orders, err := h.Svc.AllOrders(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, orders)
}

// GetQueue returns confirmed orders sorted oldest-confirmed first.
func (h *OrderHandler) GetQueue(c echo.Context) error {
	orders, err := h.Svc.Queue(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetQueuePosition(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	pos, err := h.Svc.QueuePosition(c.Request().Context(), orderID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pos)
}

func (h *OrderHandler) GetOpenOrder(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	order, err := h.Svc.OpenOrder(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) GetMyOrders(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	orders, err := h.Svc.UserOrders(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrderHistory(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	orders, err := h.Svc.CompletedUserOrders(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, orders)
}
