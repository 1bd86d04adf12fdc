package repository

import (
	"context"

	"github.com/jonas/shelfscout/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductRepository handles product catalog persistence.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new ProductRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProductRepository: repository instance bound to db.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Upsert creates or updates a product keyed by (source_id, natural_key).
// Re-processing the same item after a crash or retry lands on the same row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - product: product record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *ProductRepository) Upsert(ctx context.Context, product *domain.Product) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_id"}, {Name: "natural_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"gtin", "name", "brand", "category", "description",
			"ingredients_raw", "labels", "price_cents", "currency",
			"url", "image_url", "language", "updated_at",
		}),
	}).Create(product).Error
}

// GetByID retrieves a product by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: product ID.
// Returns:
//   - *domain.Product: product record if found.
//   - error: non-nil if lookup fails.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// GetByNaturalKey retrieves a product by source and natural key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sourceID: source identifier.
//   - naturalKey: stable business identifier (GTIN or product URL).
// Returns:
//   - *domain.Product: product record if found.
//   - error: non-nil if lookup fails.
func (r *ProductRepository) GetByNaturalKey(ctx context.Context, sourceID, naturalKey string) (*domain.Product, error) {
	var product domain.Product
	if err := r.db.WithContext(ctx).
		First(&product, "source_id = ? AND natural_key = ?", sourceID, naturalKey).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// List retrieves products with optional source and category filters.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sourceID: source filter; empty means all.
//   - category: category filter; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Product: matching product records.
//   - error: non-nil if the query fails.
func (r *ProductRepository) List(ctx context.Context, sourceID, category string, limit, offset int) ([]domain.Product, error) {
	var products []domain.Product
	query := r.db.WithContext(ctx)
	if sourceID != "" {
		query = query.Where("source_id = ?", sourceID)
	}
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.
		Limit(limit).
		Offset(offset).
		Order("updated_at DESC").
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// Count counts all products, optionally filtered by source.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sourceID: source filter; empty means all.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *ProductRepository) Count(ctx context.Context, sourceID string) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&domain.Product{})
	if sourceID != "" {
		query = query.Where("source_id = ?", sourceID)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
