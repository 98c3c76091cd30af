package service

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"beerlab/internal/models"
)

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

func seedProduct(t *testing.T, db *gorm.DB, brand string, price, minimal float64, quantity int) models.Product {
	t.Helper()
	p := models.Product{
		Brand:        brand,
		Description:  brand + " description",
		Price:        price,
		MinimalPrice: minimal,
		Quantity:     quantity,
		ProductType:  models.TypeBeer,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func seedUser(t *testing.T, db *gorm.DB, balance float64) models.User {
	t.Helper()
	u := models.User{
		Username:     "test_user",
		PasswordHash: "irrelevant",
		Role:         "user",
		Balance:      balance,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}
