package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/kisaan-market/kisaan/models"
	"gorm.io/gorm"
)

// ProductRepositoryImpl implements ProductRepository interface
type ProductRepositoryImpl struct {
	*BaseRepository[models.Product, models.ProductFilter]
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &ProductRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Product, models.ProductFilter](db),
	}
}

func (r *ProductRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Product, error) {
	return first[models.Product](r.getDB(ctx).Preload("FarmerProfile.Account").Where("id = ?", id), "product")
}

// Search matches the query against sub_category or any synonym, case-insensitively.
func (r *ProductRepositoryImpl) Search(ctx context.Context, criteria models.ProductSearch) ([]*models.Product, error) {
	query := r.getDB(ctx).Model(&models.Product{}).Preload("FarmerProfile.Account")

	if q := strings.TrimSpace(criteria.Query); q != "" {
		pattern := "%" + escapeLike(q) + "%"
		query = query.Where(
			"sub_category ILIKE ? OR EXISTS (SELECT 1 FROM unnest(synonyms) AS s WHERE s ILIKE ?)",
			pattern, pattern,
		)
	}
	if criteria.MinPrice != nil {
		query = query.Where("price >= ?", *criteria.MinPrice)
	}
	if criteria.MaxPrice != nil {
		query = query.Where("price <= ?", *criteria.MaxPrice)
	}
	if criteria.MinQuantity != nil {
		query = query.Where("quantity >= ?", *criteria.MinQuantity)
	}
	if criteria.MaxQuantity != nil {
		query = query.Where("quantity <= ?", *criteria.MaxQuantity)
	}
	if criteria.PostedAfter != nil {
		query = query.Where("date_posted >= ?", *criteria.PostedAfter)
	}
	if criteria.PostedBefore != nil {
		query = query.Where("date_posted <= ?", *criteria.PostedBefore)
	}
	if criteria.Limit > 0 {
		query = query.Limit(criteria.Limit)
	}

	var rows []*models.Product
	if err := query.Order("date_posted DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return rows, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *ProductRepositoryImpl) applyFilter(query *gorm.DB, filter models.ProductFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.FarmerProfileID != nil {
		query = query.Where("farmer_profile_id = ?", *filter.FarmerProfileID)
	}
	if filter.MainCategory != nil {
		query = query.Where("main_category = ?", *filter.MainCategory)
	}
	if filter.SubCategory != nil {
		query = query.Where("sub_category = ?", *filter.SubCategory)
	}
	return query
}

func (r *ProductRepositoryImpl) ByFilter(ctx context.Context, filter models.ProductFilter, orderBy string, limit, offset int) ([]*models.Product, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Product{}), filter)

	var rows []*models.Product
	if err := paginate(query, orderBy, limit, offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return rows, nil
}

func (r *ProductRepositoryImpl) Count(ctx context.Context, filter models.ProductFilter) (int64, error) {
	return count(r.applyFilter(r.getDB(ctx).Model(&models.Product{}), filter), "products")
}

func (r *ProductRepositoryImpl) Exists(ctx context.Context, filter models.ProductFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
