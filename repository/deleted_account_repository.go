package repository

import (
	"context"
	"fmt"

	"github.com/kisaan-market/kisaan/models"
	"gorm.io/gorm"
)

type DeletedAccountRepositoryImpl struct {
	*BaseRepository[models.DeletedAccount, models.DeletedAccountFilter]
}

func NewDeletedAccountRepository(db *gorm.DB) DeletedAccountRepository {
	return &DeletedAccountRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DeletedAccount, models.DeletedAccountFilter](db),
	}
}

func (r *DeletedAccountRepositoryImpl) applyFilter(query *gorm.DB, filter models.DeletedAccountFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Email != nil {
		query = query.Where("email = ?", *filter.Email)
	}
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	return query
}

func (r *DeletedAccountRepositoryImpl) ByFilter(ctx context.Context, filter models.DeletedAccountFilter, orderBy string, limit, offset int) ([]*models.DeletedAccount, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.DeletedAccount{}), filter)

	var rows []*models.DeletedAccount
	if err := paginate(query, orderBy, limit, offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list deleted accounts: %w", err)
	}
	return rows, nil
}

func (r *DeletedAccountRepositoryImpl) Count(ctx context.Context, filter models.DeletedAccountFilter) (int64, error) {
	return count(r.applyFilter(r.getDB(ctx).Model(&models.DeletedAccount{}), filter), "deleted accounts")
}

func (r *DeletedAccountRepositoryImpl) Exists(ctx context.Context, filter models.DeletedAccountFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
