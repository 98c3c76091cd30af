package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"beerlab/internal/logging"
	"beerlab/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.Report{}))
	return db
}

func newTestScheduler(t *testing.T) (*Scheduler, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return New(db, time.Minute, logging.New("error")), db
}

func seedProduct(t *testing.T, db *gorm.DB, brand string, price, minimal float64, quantity int) models.Product {
	t.Helper()
	p := models.Product{
		Brand:        brand,
		Price:        price,
		MinimalPrice: minimal,
		Quantity:     quantity,
		ProductType:  models.TypeBeer,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func setQuantity(t *testing.T, db *gorm.DB, id uint, quantity int) {
	t.Helper()
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", id).Update("quantity", quantity).Error)
}

func price(t *testing.T, db *gorm.DB, id uint) float64 {
	t.Helper()
	var p models.Product
	require.NoError(t, db.First(&p, id).Error)
	return p.Price
}

func TestFirstTickSeedsBaselineAndCreatesReport(t *testing.T) {
	s, db := newTestScheduler(t)
	p := seedProduct(t, db, "lager", 10, 8, 50)

	require.NoError(t, s.AdjustPrices(context.Background()))

	require.Equal(t, 10.0, price(t, db, p.ID))

	var reports int64
	require.NoError(t, db.Model(&models.Report{}).Count(&reports).Error)
	require.EqualValues(t, 1, reports)
}

func TestPriceRisesOnHighConsumption(t *testing.T) {
	s, db := newTestScheduler(t)
	p := seedProduct(t, db, "lager", 10, 8, 40)

	ctx := context.Background()
	require.NoError(t, s.AdjustPrices(ctx)) // seeds baseline

	setQuantity(t, db, p.ID, 29) // 11 sold
	require.NoError(t, s.AdjustPrices(ctx))
	require.Equal(t, 11.0, price(t, db, p.ID))

	setQuantity(t, db, p.ID, 18) // 11 sold again
	require.NoError(t, s.AdjustPrices(ctx))
	require.Equal(t, 12.0, price(t, db, p.ID))
}

func TestPriceNeverDropsBelowMinimal(t *testing.T) {
	s, db := newTestScheduler(t)
	p := seedProduct(t, db, "lager", 10, 8, 40)

	ctx := context.Background()
	require.NoError(t, s.AdjustPrices(ctx))

	// no sales: every tick decrements until the floor holds
	for i := 0; i < 6; i++ {
		require.NoError(t, s.AdjustPrices(ctx))
	}
	require.Equal(t, 8.0, price(t, db, p.ID))
}

func TestDeltaOfExactlyTenLeavesPriceUnchanged(t *testing.T) {
	s, db := newTestScheduler(t)
	p := seedProduct(t, db, "lager", 10, 8, 40)

	ctx := context.Background()
	require.NoError(t, s.AdjustPrices(ctx))

	setQuantity(t, db, p.ID, 30) // exactly 10 sold
	require.NoError(t, s.AdjustPrices(ctx))
	require.Equal(t, 10.0, price(t, db, p.ID))
}

func TestRestockDecreasesPriceWhileAboveFloor(t *testing.T) {
	s, db := newTestScheduler(t)
	p := seedProduct(t, db, "lager", 10, 8, 40)

	ctx := context.Background()
	require.NoError(t, s.AdjustPrices(ctx))

	setQuantity(t, db, p.ID, 60) // negative delta: restock
	require.NoError(t, s.AdjustPrices(ctx))
	require.Equal(t, 9.0, price(t, db, p.ID))
}

func TestProductAppearingMidStreamIsSkippedUntilSeeded(t *testing.T) {
	s, db := newTestScheduler(t)
	seedProduct(t, db, "lager", 10, 8, 40)

	ctx := context.Background()
	require.NoError(t, s.AdjustPrices(ctx))

	late := seedProduct(t, db, "stout", 12, 9, 40)
	require.NoError(t, s.AdjustPrices(ctx))
	require.Equal(t, 12.0, price(t, db, late.ID))

	setQuantity(t, db, late.ID, 20)
	require.NoError(t, s.AdjustPrices(ctx))
	require.Equal(t, 13.0, price(t, db, late.ID))
}

func TestAdjustPricesDoesNotWriteBackStaleStock(t *testing.T) {
	s, db := newTestScheduler(t)
	p := seedProduct(t, db, "lager", 10, 8, 50)

	ctx := context.Background()
	require.NoError(t, s.AdjustPrices(ctx)) // seeds baseline

	// an order commits right after the task reads the catalog; the price
	// write must not restore the pre-sale quantity
	sold := false
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("sale_mid_tick", func(tx *gorm.DB) {
		if sold || tx.Statement.Table != "products" {
			return
		}
		sold = true
		require.NoError(t, db.Exec("UPDATE products SET quantity = quantity - 10 WHERE id = ?", p.ID).Error)
	}))

	require.NoError(t, s.AdjustPrices(ctx))

	var got models.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	require.Equal(t, 40, got.Quantity)
	// the read itself saw no sales, so the price still steps down
	require.Equal(t, 9.0, got.Price)
}

func TestPopularityRankedByConsumption(t *testing.T) {
	s, db := newTestScheduler(t)
	a := seedProduct(t, db, "lager", 10, 8, 50)
	b := seedProduct(t, db, "stout", 10, 8, 50)
	c := seedProduct(t, db, "cider", 10, 8, 50)
	d := seedProduct(t, db, "porter", 10, 8, 50)

	ctx := context.Background()
	require.NoError(t, s.RankPopularity(ctx)) // seeds baseline

	setQuantity(t, db, a.ID, 45) // 5 sold
	setQuantity(t, db, b.ID, 47) // 3 sold
	setQuantity(t, db, c.ID, 49) // 1 sold
	setQuantity(t, db, d.ID, 50) // none

	require.NoError(t, s.RankPopularity(ctx))

	var report models.Report
	require.NoError(t, db.Last(&report).Error)
	require.Equal(t, []string{"lager", "stout", "cider"}, report.MostPopularProducts)
}

func TestPopularityIsKeyedByIdentityNotPosition(t *testing.T) {
	s, db := newTestScheduler(t)
	a := seedProduct(t, db, "lager", 10, 8, 50)
	b := seedProduct(t, db, "stout", 10, 8, 50)

	ctx := context.Background()
	require.NoError(t, s.RankPopularity(ctx))

	// delete the first product; the survivor's consumption must still be
	// attributed to it, not to whatever now sits at its list position
	require.NoError(t, db.Delete(&models.Product{}, a.ID).Error)
	setQuantity(t, db, b.ID, 40)

	require.NoError(t, s.RankPopularity(ctx))

	var report models.Report
	require.NoError(t, db.Last(&report).Error)
	require.Equal(t, []string{"stout"}, report.MostPopularProducts)
}

func TestTickIsolatesPanics(t *testing.T) {
	s, _ := newTestScheduler(t)

	require.NotPanics(t, func() {
		s.tick(context.Background(), "boom", func(context.Context) error {
			panic("tick gone wrong")
		})
	})
}
