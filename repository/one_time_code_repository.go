package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kisaan-market/kisaan/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OneTimeCodeRepositoryImpl implements OneTimeCodeRepository interface
type OneTimeCodeRepositoryImpl struct {
	*BaseRepository[models.OneTimeCode, models.OneTimeCodeFilter]
}

// NewOneTimeCodeRepository creates a new one-time code repository
func NewOneTimeCodeRepository(db *gorm.DB) OneTimeCodeRepository {
	return &OneTimeCodeRepositoryImpl{
		BaseRepository: NewBaseRepository[models.OneTimeCode, models.OneTimeCodeFilter](db),
	}
}

func (r *OneTimeCodeRepositoryImpl) ByEmail(ctx context.Context, email string) (*models.OneTimeCode, error) {
	return first[models.OneTimeCode](r.getDB(ctx).Where("email = ?", email), "one-time code by email")
}

// Issue upserts on the email key so concurrent issuers leave exactly one row.
func (r *OneTimeCodeRepositoryImpl) Issue(ctx context.Context, code *models.OneTimeCode) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer finish(db, shouldCommit, &err)

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "issued_at"}),
	}).Create(code).Error
	if err != nil {
		return fmt.Errorf("failed to issue one-time code: %w", err)
	}
	return nil
}

func (r *OneTimeCodeRepositoryImpl) DeleteByEmail(ctx context.Context, email string) error {
	if err := r.getDB(ctx).Where("email = ?", email).Delete(&models.OneTimeCode{}).Error; err != nil {
		return fmt.Errorf("failed to delete one-time code: %w", err)
	}
	return nil
}

func (r *OneTimeCodeRepositoryImpl) DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.getDB(ctx).Where("issued_at < ?", cutoff).Delete(&models.OneTimeCode{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge one-time codes: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *OneTimeCodeRepositoryImpl) applyFilter(query *gorm.DB, filter models.OneTimeCodeFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Email != nil {
		query = query.Where("email = ?", *filter.Email)
	}
	if filter.IssuedBefore != nil {
		query = query.Where("issued_at < ?", *filter.IssuedBefore)
	}
	return query
}

func (r *OneTimeCodeRepositoryImpl) ByFilter(ctx context.Context, filter models.OneTimeCodeFilter, orderBy string, limit, offset int) ([]*models.OneTimeCode, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.OneTimeCode{}), filter)

	var rows []*models.OneTimeCode
	if err := paginate(query, orderBy, limit, offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list one-time codes: %w", err)
	}
	return rows, nil
}

func (r *OneTimeCodeRepositoryImpl) Count(ctx context.Context, filter models.OneTimeCodeFilter) (int64, error) {
	return count(r.applyFilter(r.getDB(ctx).Model(&models.OneTimeCode{}), filter), "one-time codes")
}

func (r *OneTimeCodeRepositoryImpl) Exists(ctx context.Context, filter models.OneTimeCodeFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
