package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"beerlab/internal/models"
)

func TestRegisterCreatesUser(t *testing.T) {
	db := newTestDB(t)
	pub := &stubPublisher{}
	h := &AuthHandler{DB: db, JWTSecret: testSecret, Producer: pub}

	body := map[string]any{"username": "guest", "password": "secret"}
	rec, c := doJSON(t, http.MethodPost, "/api/register", body)

	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "guest", resp.Username)

	require.Len(t, pub.events, 1)
	require.Equal(t, "user_registered", pub.events[0]["type"])
}

func TestRegisterDuplicateUsernameConflicts(t *testing.T) {
	db := newTestDB(t)
	h := &AuthHandler{DB: db, JWTSecret: testSecret, Producer: &stubPublisher{}}

	require.NoError(t, db.Create(&models.User{Username: "guest", PasswordHash: "x", Role: "user"}).Error)

	body := map[string]any{"username": "guest", "password": "secret"}
	_, c := doJSON(t, http.MethodPost, "/api/register", body)

	err := h.Register(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusConflict, he.Code)
}

func TestRegisterStorageFailureIsNotAConflict(t *testing.T) {
	db := newTestDB(t)
	h := &AuthHandler{DB: db, JWTSecret: testSecret, Producer: &stubPublisher{}}

	// a broken users table must surface as a server error, not as
	// "user already exists"
	require.NoError(t, db.Migrator().DropTable(&models.User{}))

	body := map[string]any{"username": "guest", "password": "secret"}
	_, c := doJSON(t, http.MethodPost, "/api/register", body)

	err := h.Register(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusInternalServerError, he.Code)
}
