package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gorm.io/gorm"

	"beerlab/internal/models"
	"beerlab/internal/storage"
)

// CatalogService is CRUD over products plus the image-asset lifecycle:
// the external image is released exactly once per delete and once per
// replace-with-new-image update.
type CatalogService struct {
	DB     *gorm.DB
	Images storage.ImageStore
}

func NewCatalogService(db *gorm.DB, images storage.ImageStore) *CatalogService {
	return &CatalogService{DB: db, Images: images}
}

// Products returns one page of the catalog ordered by ID.
func (s *CatalogService) Products(ctx context.Context, from, limit int) ([]models.Product, error) {
	var products []models.Product
	err := s.DB.WithContext(ctx).Order("id ASC").Offset(from).Limit(limit).Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *CatalogService) Product(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := s.DB.WithContext(ctx).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &product, nil
}

// AddOrUpdate persists the product, uploading the optional image first. A
// product that already carries an image has the old asset released before
// the new one is stored.
func (s *CatalogService) AddOrUpdate(ctx context.Context, product *models.Product, upload io.Reader, filename string) (*models.Product, error) {
	if product == nil {
		return nil, fmt.Errorf("%w: product is nil", ErrValidation)
	}
	if _, ok := models.ParseProductType(string(product.ProductType)); !ok {
		return nil, fmt.Errorf("%w: unknown product type %q", ErrValidation, product.ProductType)
	}

	if upload != nil {
		if product.ImgURL != "" {
			if err := s.Images.Delete(ctx, product.ImgURL); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStorage, err)
			}
		}
		ref, err := s.Images.Upload(ctx, filename, upload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		product.ImgURL = ref
	}

	if err := s.DB.WithContext(ctx).Save(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// Delete removes the product and releases its image asset.
func (s *CatalogService) Delete(ctx context.Context, id uint) (*models.Product, error) {
	product, err := s.Product(ctx, id)
	if err != nil {
		return nil, err
	}

	if product.ImgURL != "" {
		if err := s.Images.Delete(ctx, product.ImgURL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}

	if err := s.DB.WithContext(ctx).Delete(&models.Product{}, id).Error; err != nil {
		return nil, err
	}
	return product, nil
}

func (s *CatalogService) Types() []models.ProductType {
	return models.ProductTypes()
}
