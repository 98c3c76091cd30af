package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"beerlab/internal/models"
)

// ReportService reads the aggregate report the scheduler maintains.
type ReportService struct {
	DB *gorm.DB
}

func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{DB: db}
}

func (s *ReportService) Latest(ctx context.Context) (*models.Report, error) {
	var report models.Report
	if err := s.DB.WithContext(ctx).Last(&report).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: report", ErrNotFound)
		}
		return nil, err
	}
	return &report, nil
}

// Ensure returns the latest report, creating an empty one when none exists.
// Absence is a recoverable condition, not an error.
func (s *ReportService) Ensure(ctx context.Context) (*models.Report, error) {
	report, err := s.Latest(ctx)
	if err == nil {
		return report, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	fresh := models.Report{MostPopularProducts: []string{}}
	if err := s.DB.WithContext(ctx).Create(&fresh).Error; err != nil {
		return nil, err
	}
	return &fresh, nil
}
