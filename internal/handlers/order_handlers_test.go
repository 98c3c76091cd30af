package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"beerlab/internal/models"
	"beerlab/internal/service"
)

type stubPublisher struct {
	events []map[string]any
}

func (s *stubPublisher) PublishEvent(ctx context.Context, topic, key string, event interface{}) error {
	if m, ok := event.(map[string]any); ok {
		s.events = append(s.events, m)
	}
	return nil
}

var testSecret = []byte("test-secret")

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.User{},
		&models.Order{},
		&models.OrderItem{},
		&models.Report{},
	))
	return db
}

func accessCookie(t *testing.T, userID uint) *http.Cookie {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": "user",
		"exp":  time.Now().Add(15 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return &http.Cookie{Name: "accessToken", Value: token, Path: "/"}
}

func doJSON(t *testing.T, method, target string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	return rec, c
}

func seedOrderFixtures(t *testing.T, db *gorm.DB) (models.User, models.Product) {
	t.Helper()
	user := models.User{Username: "guest", PasswordHash: "x", Role: "user", Balance: 100}
	require.NoError(t, db.Create(&user).Error)
	product := models.Product{
		Brand:        "lager",
		Price:        5,
		MinimalPrice: 3,
		Quantity:     10,
		ProductType:  models.TypeBeer,
	}
	require.NoError(t, db.Create(&product).Error)
	return user, product
}

func TestAddToOrderHandler(t *testing.T) {
	db := newTestDB(t)
	user, product := seedOrderFixtures(t, db)
	pub := &stubPublisher{}
	h := &OrderHandler{Svc: service.NewOrderService(db), Producer: pub, JWTSecret: testSecret}

	body := map[string]any{"productId": product.ID, "quantity": 2}
	rec, c := doJSON(t, http.MethodPost, "/api/order", body, accessCookie(t, user.ID))

	require.NoError(t, h.AddToOrder(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, models.StatusNotPaid, resp.Status)
	require.Len(t, resp.Items, 1)
	require.InDelta(t, 10.0, resp.TotalPrice, 1e-9)

	require.Len(t, pub.events, 1)
	require.Equal(t, "product_added_to_order", pub.events[0]["type"])
}

func TestAddToOrderRequiresAuth(t *testing.T) {
	db := newTestDB(t)
	_, product := seedOrderFixtures(t, db)
	h := &OrderHandler{Svc: service.NewOrderService(db), Producer: &stubPublisher{}, JWTSecret: testSecret}

	body := map[string]any{"productId": product.ID, "quantity": 1}
	_, c := doJSON(t, http.MethodPost, "/api/order", body)

	err := h.AddToOrder(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestAddToOrderOutOfStockMapsToConflict(t *testing.T) {
	db := newTestDB(t)
	user, product := seedOrderFixtures(t, db)
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", product.ID).Update("quantity", 0).Error)
	h := &OrderHandler{Svc: service.NewOrderService(db), Producer: &stubPublisher{}, JWTSecret: testSecret}

	body := map[string]any{"productId": product.ID, "quantity": 1}
	_, c := doJSON(t, http.MethodPost, "/api/order", body, accessCookie(t, user.ID))

	err := h.AddToOrder(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusConflict, he.Code)
}

func TestChangeStatusRejectsUnknownValue(t *testing.T) {
	db := newTestDB(t)
	user, product := seedOrderFixtures(t, db)
	svc := service.NewOrderService(db)
	order, err := svc.AddProduct(context.Background(), user.ID, product.ID, 1)
	require.NoError(t, err)

	h := &OrderHandler{Svc: svc, Producer: &stubPublisher{}, JWTSecret: testSecret}

	body := map[string]any{"orderStatus": "TELEPORTED"}
	_, c := doJSON(t, http.MethodPost, "/api/order/1", body)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatUint(uint64(order.ID), 10))

	err = h.ChangeStatus(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, he.Code)
}

func TestConfirmOrderInsufficientBalance(t *testing.T) {
	db := newTestDB(t)
	user, product := seedOrderFixtures(t, db)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("balance", 5).Error)
	svc := service.NewOrderService(db)
	_, err := svc.AddProduct(context.Background(), user.ID, product.ID, 2)
	require.NoError(t, err)

	h := &OrderHandler{Svc: svc, Producer: &stubPublisher{}, JWTSecret: testSecret}

	body := map[string]any{"method": service.PayBalance}
	_, c := doJSON(t, http.MethodPost, "/api/order/confirm", body, accessCookie(t, user.ID))

	err = h.ConfirmOrder(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusConflict, he.Code)
}

func TestQueuePositionEndpoint(t *testing.T) {
	db := newTestDB(t)
	user, product := seedOrderFixtures(t, db)
	svc := service.NewOrderService(db)
	_, err := svc.AddProduct(context.Background(), user.ID, product.ID, 1)
	require.NoError(t, err)
	order, err := svc.ConfirmOrder(context.Background(), user.ID, service.PayCash)
	require.NoError(t, err)

	h := &OrderHandler{Svc: svc, Producer: &stubPublisher{}, JWTSecret: testSecret}

	rec, c := doJSON(t, http.MethodPost, "/api/order/orderPosition/1", nil)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatUint(uint64(order.ID), 10))

	require.NoError(t, h.GetQueuePosition(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "0\n", rec.Body.String())
}
