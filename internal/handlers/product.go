package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"

	"beerlab/internal/logging"
	"beerlab/internal/models"
	"beerlab/internal/service"
	"beerlab/internal/service/search"
	"beerlab/internal/util"
)

type ProductHandler struct {
	Svc      *service.CatalogService
	Producer EventPublisher
	ES       *elasticsearch.Client
	Index    string
}

func (h *ProductHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "product_events", fmt.Sprint(event["productID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func (h *ProductHandler) index(c echo.Context, p *models.Product) {
	if h.ES == nil {
		return
	}
	if err := search.Index(c.Request().Context(), h.ES, h.Index, p); err != nil {
		c.Logger().Errorf("ES index error: %v", err)
	}
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	from, limit := util.Calculate(page, size)

	products, err := h.Svc.Products(c.Request().Context(), from, limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, products)
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	product, err := h.Svc.Product(c.Request().Context(), uint(id))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetProductTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Svc.Types())
}

// addOrUpdate handles both POST and PUT: multipart form with an optional
// "file" part and the product metadata as a JSON string in "productDto"
// (multipart upload shape kept for client compatibility).
func (h *ProductHandler) addOrUpdate(c echo.Context, eventType string) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.add_or_update")

	dto := c.FormValue("productDto")
	if dto == "" {
		l.Warn("product_error", "status", 400, "reason", "missing productDto")
		return echo.NewHTTPError(http.StatusBadRequest, "missing productDto")
	}

	var product models.Product
	if err := json.Unmarshal([]byte(dto), &product); err != nil {
		l.Warn("product_error", "status", 400, "reason", "invalid productDto", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid productDto")
	}

	fileHeader, err := c.FormFile("file")
	if err == nil && fileHeader != nil {
		f, err := fileHeader.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		defer f.Close()

		saved, err := h.Svc.AddOrUpdate(ctx, &product, f, fileHeader.Filename)
		if err != nil {
			return httpError(err)
		}
		h.publish(c, map[string]any{"type": eventType, "productID": saved.ID, "brand": saved.Brand})
		h.index(c, saved)
		return c.JSON(http.StatusOK, saved)
	}

	saved, err := h.Svc.AddOrUpdate(ctx, &product, nil, "")
	if err != nil {
		return httpError(err)
	}
	h.publish(c, map[string]any{"type": eventType, "productID": saved.ID, "brand": saved.Brand})
	h.index(c, saved)
	return c.JSON(http.StatusOK, saved)
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	return h.addOrUpdate(c, "product_created")
}

func (h *ProductHandler) UpdateProduct(c echo.Context) error {
	return h.addOrUpdate(c, "product_updated")
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	product, err := h.Svc.Delete(c.Request().Context(), uint(id))
	if err != nil {
		return httpError(err)
	}

	h.publish(c, map[string]any{"type": "product_deleted", "productID": product.ID})
	if h.ES != nil {
		if err := search.Remove(c.Request().Context(), h.ES, h.Index, product.ID); err != nil {
			c.Logger().Errorf("ES delete error: %v", err)
		}
	}

	return c.JSON(http.StatusOK, product)
}
