package repository

import (
	"context"
	"fmt"

	"github.com/kisaan-market/kisaan/models"
	"gorm.io/gorm"
)

// CustomerProfileRepositoryImpl implements CustomerProfileRepository interface
type CustomerProfileRepositoryImpl struct {
	*BaseRepository[models.CustomerProfile, models.CustomerProfileFilter]
}

// NewCustomerProfileRepository creates a new customer profile repository
func NewCustomerProfileRepository(db *gorm.DB) CustomerProfileRepository {
	return &CustomerProfileRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CustomerProfile, models.CustomerProfileFilter](db),
	}
}

func (r *CustomerProfileRepositoryImpl) ByID(ctx context.Context, id uint) (*models.CustomerProfile, error) {
	return first[models.CustomerProfile](r.getDB(ctx).Preload("Account").Where("id = ?", id), "customer profile")
}

func (r *CustomerProfileRepositoryImpl) ByAccountID(ctx context.Context, accountID uint) (*models.CustomerProfile, error) {
	return first[models.CustomerProfile](r.getDB(ctx).Preload("Account").Where("account_id = ?", accountID), "customer profile by account")
}

func (r *CustomerProfileRepositoryImpl) ByPhoneNumber(ctx context.Context, phone string) (*models.CustomerProfile, error) {
	return first[models.CustomerProfile](r.getDB(ctx).Where("phone_number = ?", phone), "customer profile by phone")
}

func (r *CustomerProfileRepositoryImpl) ByIDs(ctx context.Context, ids []uint) (map[uint]*models.CustomerProfile, error) {
	out := make(map[uint]*models.CustomerProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []*models.CustomerProfile
	if err := r.getDB(ctx).Preload("Account").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load customer profiles: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *CustomerProfileRepositoryImpl) applyFilter(query *gorm.DB, filter models.CustomerProfileFilter) *gorm.DB {
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

func (r *CustomerProfileRepositoryImpl) ByFilter(ctx context.Context, filter models.CustomerProfileFilter, orderBy string, limit, offset int) ([]*models.CustomerProfile, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.CustomerProfile{}).Preload("Account"), filter)

	var rows []*models.CustomerProfile
	if err := paginate(query, orderBy, limit, offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list customer profiles: %w", err)
	}
	return rows, nil
}

func (r *CustomerProfileRepositoryImpl) Count(ctx context.Context, filter models.CustomerProfileFilter) (int64, error) {
	return count(r.applyFilter(r.getDB(ctx).Model(&models.CustomerProfile{}), filter), "customer profiles")
}

func (r *CustomerProfileRepositoryImpl) Exists(ctx context.Context, filter models.CustomerProfileFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
