// Package scheduler runs the periodic pricing and popularity jobs. Both
// tasks hold private in-memory baselines captured at the previous tick;
// the baselines are process-lifetime state and reset on restart.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"

	"beerlab/internal/models"
	"beerlab/internal/service"
)

const (
	// Units sold since the last tick above which the price is raised.
	saleThreshold = 10
	priceStep     = 1.0
	topProducts   = 3
)

type Scheduler struct {
	DB       *gorm.DB
	Interval time.Duration
	Log      *slog.Logger

	reports *service.ReportService

	// quantity at the previous pricing tick, keyed by product ID
	prevQuantities map[uint]int
	// quantity at the previous popularity tick, keyed by product ID
	prevPopularity map[uint]int
}

func New(db *gorm.DB, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		DB:       db,
		Interval: interval,
		Log:      log,
		reports:  service.NewReportService(db),
	}
}

// Run starts both tasks on their own tickers and blocks until ctx is
// cancelled. A tick that fails or panics is logged and does not prevent the
// next one.
func (s *Scheduler) Run(ctx context.Context) {
	go s.loop(ctx, "adjust_prices", s.AdjustPrices)
	go s.loop(ctx, "rank_popularity", s.RankPopularity)
	<-ctx.Done()
}

func (s *Scheduler) loop(ctx context.Context, name string, task func(context.Context) error) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, name, task)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, name string, task func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("scheduler tick panic", "task", name, "panic", r)
		}
	}()
	if err := task(ctx); err != nil {
		s.Log.Error("scheduler tick failed", "task", name, "error", err)
	}
}

// AdjustPrices moves each product's price by the consumption delta since the
// previous tick: more than saleThreshold units sold raises the price by one
// step, less than saleThreshold lowers it by one step but never below
// MinimalPrice. The very first tick only seeds the baseline.
func (s *Scheduler) AdjustPrices(ctx context.Context) error {
	var products []models.Product
	if err := s.DB.WithContext(ctx).Order("id ASC").Find(&products).Error; err != nil {
		return err
	}

	if s.prevQuantities != nil {
		for i := range products {
			p := &products[i]
			prev, ok := s.prevQuantities[p.ID]
			if !ok {
				continue
			}
			delta := prev - p.Quantity
			if delta > saleThreshold {
				p.Price += priceStep
			} else if delta < saleThreshold && p.MinimalPrice < p.Price {
				p.Price -= priceStep
				if p.Price < p.MinimalPrice {
					p.Price = p.MinimalPrice
				}
			}
			// Price is the only column this task owns. Writing the whole
			// struct would push the quantity read above back into the row
			// and erase any sale committed since.
			err := s.DB.WithContext(ctx).Model(&models.Product{}).
				Where("id = ?", p.ID).
				Update("price", p.Price).Error
			if err != nil {
				return err
			}
		}
	}

	if _, err := s.reports.Ensure(ctx); err != nil {
		return err
	}

	s.prevQuantities = snapshotQuantities(products)
	return nil
}

// RankPopularity computes per-product consumption since its own previous
// snapshot and writes the top brands into the report.
func (s *Scheduler) RankPopularity(ctx context.Context) error {
	report, err := s.reports.Ensure(ctx)
	if err != nil {
		return err
	}

	var products []models.Product
	if err := s.DB.WithContext(ctx).Order("id ASC").Find(&products).Error; err != nil {
		return err
	}

	if s.prevPopularity != nil {
		type consumption struct {
			id    uint
			brand string
			sold  int
		}
		ranked := make([]consumption, 0, len(products))
		for i := range products {
			prev, ok := s.prevPopularity[products[i].ID]
			if !ok {
				continue
			}
			ranked = append(ranked, consumption{
				id:    products[i].ID,
				brand: products[i].Brand,
				sold:  prev - products[i].Quantity,
			})
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].sold != ranked[j].sold {
				return ranked[i].sold > ranked[j].sold
			}
			return ranked[i].id < ranked[j].id
		})
		if len(ranked) > topProducts {
			ranked = ranked[:topProducts]
		}

		brands := make([]string, len(ranked))
		for i, r := range ranked {
			brands[i] = r.brand
		}
		report.MostPopularProducts = brands
		if err := s.DB.WithContext(ctx).Save(report).Error; err != nil {
			return err
		}
	}

	s.prevPopularity = snapshotQuantities(products)
	return nil
}

func snapshotQuantities(products []models.Product) map[uint]int {
	snap := make(map[uint]int, len(products))
	for i := range products {
		snap[products[i].ID] = products[i].Quantity
	}
	return snap
}
