package repository

import (
	"context"
	"fmt"

	"github.com/kisaan-market/kisaan/models"
	"gorm.io/gorm"
)

// ProfileRepositoryImpl implements ProfileRepository interface
type ProfileRepositoryImpl struct {
	*BaseRepository[models.Profile, models.ProfileFilter]
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &ProfileRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Profile, models.ProfileFilter](db),
	}
}

func (r *ProfileRepositoryImpl) ByAccountID(ctx context.Context, accountID uint) (*models.Profile, error) {
	return first[models.Profile](r.getDB(ctx).Where("account_id = ?", accountID), "profile by account")
}

func (r *ProfileRepositoryImpl) SetBlocked(ctx context.Context, accountID uint, blocked bool) error {
	res := r.getDB(ctx).Model(&models.Profile{}).
		Where("account_id = ?", accountID).
		Update("is_blocked", blocked)
	if res.Error != nil {
		return fmt.Errorf("failed to update blocked flag: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to update blocked flag: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *ProfileRepositoryImpl) applyFilter(query *gorm.DB, filter models.ProfileFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.IsBlocked != nil {
		query = query.Where("is_blocked = ?", *filter.IsBlocked)
	}
	return query
}

func (r *ProfileRepositoryImpl) ByFilter(ctx context.Context, filter models.ProfileFilter, orderBy string, limit, offset int) ([]*models.Profile, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Profile{}), filter)

	var rows []*models.Profile
	if err := paginate(query, orderBy, limit, offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return rows, nil
}

func (r *ProfileRepositoryImpl) Count(ctx context.Context, filter models.ProfileFilter) (int64, error) {
	return count(r.applyFilter(r.getDB(ctx).Model(&models.Profile{}), filter), "profiles")
}

func (r *ProfileRepositoryImpl) Exists(ctx context.Context, filter models.ProfileFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
