package repository

import (
	"context"
	"fmt"

	"github.com/kisaan-market/kisaan/models"
	"gorm.io/gorm"
)

// FarmerProfileRepositoryImpl implements FarmerProfileRepository interface
type FarmerProfileRepositoryImpl struct {
	*BaseRepository[models.FarmerProfile, models.FarmerProfileFilter]
}

// NewFarmerProfileRepository creates a new farmer profile repository
func NewFarmerProfileRepository(db *gorm.DB) FarmerProfileRepository {
	return &FarmerProfileRepositoryImpl{
		BaseRepository: NewBaseRepository[models.FarmerProfile, models.FarmerProfileFilter](db),
	}
}

// ByID loads the profile together with its account so callers can show names.
func (r *FarmerProfileRepositoryImpl) ByID(ctx context.Context, id uint) (*models.FarmerProfile, error) {
	return first[models.FarmerProfile](r.getDB(ctx).Preload("Account").Where("id = ?", id), "farmer profile")
}

func (r *FarmerProfileRepositoryImpl) ByAccountID(ctx context.Context, accountID uint) (*models.FarmerProfile, error) {
	return first[models.FarmerProfile](r.getDB(ctx).Preload("Account").Where("account_id = ?", accountID), "farmer profile by account")
}

func (r *FarmerProfileRepositoryImpl) ByPhoneNumber(ctx context.Context, phone string) (*models.FarmerProfile, error) {
	return first[models.FarmerProfile](r.getDB(ctx).Where("phone_number = ?", phone), "farmer profile by phone")
}

func (r *FarmerProfileRepositoryImpl) ByIDs(ctx context.Context, ids []uint) (map[uint]*models.FarmerProfile, error) {
	out := make(map[uint]*models.FarmerProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []*models.FarmerProfile
	if err := r.getDB(ctx).Preload("Account").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load farmer profiles: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *FarmerProfileRepositoryImpl) applyFilter(query *gorm.DB, filter models.FarmerProfileFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.PhoneNumber != nil {
		query = query.Where("phone_number = ?", *filter.PhoneNumber)
	}
	if filter.Ward != nil {
		query = query.Where("ward = ?", *filter.Ward)
	}
	return query
}

func (r *FarmerProfileRepositoryImpl) ByFilter(ctx context.Context, filter models.FarmerProfileFilter, orderBy string, limit, offset int) ([]*models.FarmerProfile, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.FarmerProfile{}).Preload("Account"), filter)

	var rows []*models.FarmerProfile
	if err := paginate(query, orderBy, limit, offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list farmer profiles: %w", err)
	}
	return rows, nil
}

func (r *FarmerProfileRepositoryImpl) Count(ctx context.Context, filter models.FarmerProfileFilter) (int64, error) {
	return count(r.applyFilter(r.getDB(ctx).Model(&models.FarmerProfile{}), filter), "farmer profiles")
}

func (r *FarmerProfileRepositoryImpl) Exists(ctx context.Context, filter models.FarmerProfileFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
