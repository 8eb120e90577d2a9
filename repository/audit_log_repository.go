package repository

import (
	"context"
	"fmt"

	"github.com/kisaan-market/kisaan/models"
	"gorm.io/gorm"
)

// AuditLogRepositoryImpl implements AuditLogRepository interface
type AuditLogRepositoryImpl struct {
	*BaseRepository[models.AuditLog, models.AuditLogFilter]
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &AuditLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AuditLog, models.AuditLogFilter](db),
	}
}

// ListByAccount retrieves audit logs for a specific account with pagination
func (r *AuditLogRepositoryImpl) ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{AccountID: &accountID}, "created_at DESC", limit, offset)
}

// ListSecurityEvents retrieves security-related audit log entries with pagination
func (r *AuditLogRepositoryImpl) ListSecurityEvents(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	securityActions := []string{
		models.AuditActionLoginFailed,
		models.AuditActionOTPFailed,
		models.AuditActionForbiddenAttempt,
		models.AuditActionAccountBlocked,
		models.AuditActionAccountDeleted,
	}

	var logs []*models.AuditLog
	err := paginate(r.getDB(ctx).Where("action IN ?", securityActions), "created_at DESC", limit, offset).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list security audit logs: %w", err)
	}

	return logs, nil
}

func (r *AuditLogRepositoryImpl) applyFilter(query *gorm.DB, filter models.AuditLogFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.Action != nil {
		query = query.Where("action = ?", *filter.Action)
	}
	if filter.Success != nil {
		query = query.Where("success = ?", *filter.Success)
	}
	if filter.RequestID != nil {
		query = query.Where("request_id = ?", *filter.RequestID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

func (r *AuditLogRepositoryImpl) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.AuditLog{}), filter)

	var rows []*models.AuditLog
	if err := paginate(query, orderBy, limit, offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return rows, nil
}

func (r *AuditLogRepositoryImpl) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	return count(r.applyFilter(r.getDB(ctx).Model(&models.AuditLog{}), filter), "audit logs")
}

func (r *AuditLogRepositoryImpl) Exists(ctx context.Context, filter models.AuditLogFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
