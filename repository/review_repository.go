package repository

import (
	"context"
	"fmt"

	"github.com/kisaan-market/kisaan/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReviewRepositoryImpl implements ReviewRepository interface
type ReviewRepositoryImpl struct {
	*BaseRepository[models.Review, models.ReviewFilter]
}

// NewReviewRepository creates a new review repository
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &ReviewRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Review, models.ReviewFilter](db),
	}
}

func (r *ReviewRepositoryImpl) ByPair(ctx context.Context, farmerProfileID, customerProfileID uint) (*models.Review, error) {
	query := r.getDB(ctx).Where("farmer_profile_id = ? AND customer_profile_id = ?", farmerProfileID, customerProfileID)
	return first[models.Review](query, "review by pair")
}

// Upsert overwrites rating and comment when the pair has already reviewed.
func (r *ReviewRepositoryImpl) Upsert(ctx context.Context, review *models.Review) error {
	err := r.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "farmer_profile_id"}, {Name: "customer_profile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "comment", "updated_at"}),
	}).Create(review).Error
	if err != nil {
		return fmt.Errorf("failed to upsert review: %w", err)
	}
	return nil
}

type ratingRow struct {
	FarmerProfileID uint
	Average         float64
	Count           int64
}

func (r *ReviewRepositoryImpl) SummaryForFarmer(ctx context.Context, farmerProfileID uint) (*models.RatingSummary, error) {
	var row ratingRow
	err := r.getDB(ctx).Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("farmer_profile_id = ?", farmerProfileID).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarise reviews for farmer %d: %w", farmerProfileID, err)
	}
	return &models.RatingSummary{FarmerProfileID: farmerProfileID, Average: row.Average, Count: row.Count}, nil
}

func (r *ReviewRepositoryImpl) SummariesForFarmers(ctx context.Context, farmerProfileIDs []uint) (map[uint]*models.RatingSummary, error) {
	out := make(map[uint]*models.RatingSummary, len(farmerProfileIDs))
	if len(farmerProfileIDs) == 0 {
		return out, nil
	}

	var rows []ratingRow
	err := r.getDB(ctx).Model(&models.Review{}).
		Select("farmer_profile_id, AVG(rating) AS average, COUNT(*) AS count").
		Where("farmer_profile_id IN ?", farmerProfileIDs).
		Group("farmer_profile_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarise reviews: %w", err)
	}
	for _, row := range rows {
		out[row.FarmerProfileID] = &models.RatingSummary{FarmerProfileID: row.FarmerProfileID, Average: row.Average, Count: row.Count}
	}
	return out, nil
}

func (r *ReviewRepositoryImpl) applyFilter(query *gorm.DB, filter models.ReviewFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.FarmerProfileID != nil {
		query = query.Where("farmer_profile_id = ?", *filter.FarmerProfileID)
	}
	if filter.CustomerProfileID != nil {
		query = query.Where("customer_profile_id = ?", *filter.CustomerProfileID)
	}
	if filter.MinRating != nil {
		query = query.Where("rating >= ?", *filter.MinRating)
	}
	return query
}

// ByFilter preloads the reviewing customer so listings can show names.
func (r *ReviewRepositoryImpl) ByFilter(ctx context.Context, filter models.ReviewFilter, orderBy string, limit, offset int) ([]*models.Review, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Review{}).Preload("CustomerProfile.Account"), filter)

	var rows []*models.Review
	if err := paginate(query, orderBy, limit, offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return rows, nil
}

func (r *ReviewRepositoryImpl) Count(ctx context.Context, filter models.ReviewFilter) (int64, error) {
	return count(r.applyFilter(r.getDB(ctx).Model(&models.Review{}), filter), "reviews")
}

func (r *ReviewRepositoryImpl) Exists(ctx context.Context, filter models.ReviewFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
