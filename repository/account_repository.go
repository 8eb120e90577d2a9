package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kisaan-market/kisaan/models"
	"gorm.io/gorm"
)

// AccountRepositoryImpl implements AccountRepository interface
type AccountRepositoryImpl struct {
	*BaseRepository[models.Account, models.AccountFilter]
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &AccountRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Account, models.AccountFilter](db),
	}
}

// ByEmail matches case-insensitively; emails are stored lower-cased.
func (r *AccountRepositoryImpl) ByEmail(ctx context.Context, email string) (*models.Account, error) {
	return first[models.Account](r.getDB(ctx).Where("LOWER(email) = LOWER(?)", email), "account by email")
}

func (r *AccountRepositoryImpl) ByUsername(ctx context.Context, username string) (*models.Account, error) {
	return first[models.Account](r.getDB(ctx).Where("username = ?", username), "account by username")
}

func (r *AccountRepositoryImpl) UpdateLastLogin(ctx context.Context, accountID uint, at time.Time) error {
	err := r.getDB(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("last_login_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (r *AccountRepositoryImpl) UpdatePasswordHash(ctx context.Context, accountID uint, hash string) error {
	res := r.getDB(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("failed to update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("account %d not found", accountID)
	}
	return nil
}

func (r *AccountRepositoryImpl) Delete(ctx context.Context, accountID uint) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer finish(db, shouldCommit, &err)

	if err = db.Delete(&models.Account{}, accountID).Error; err != nil {
		return fmt.Errorf("failed to delete account %d: %w", accountID, err)
	}
	return nil
}

func (r *AccountRepositoryImpl) applyFilter(query *gorm.DB, filter models.AccountFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Email != nil {
		query = query.Where("LOWER(email) = LOWER(?)", *filter.Email)
	}
	if filter.Username != nil {
		query = query.Where("username = ?", *filter.Username)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

func (r *AccountRepositoryImpl) ByFilter(ctx context.Context, filter models.AccountFilter, orderBy string, limit, offset int) ([]*models.Account, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Account{}), filter)

	var rows []*models.Account
	if err := paginate(query, orderBy, limit, offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return rows, nil
}

func (r *AccountRepositoryImpl) Count(ctx context.Context, filter models.AccountFilter) (int64, error) {
	return count(r.applyFilter(r.getDB(ctx).Model(&models.Account{}), filter), "accounts")
}

func (r *AccountRepositoryImpl) Exists(ctx context.Context, filter models.AccountFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
