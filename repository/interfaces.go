// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/kisaan-market/kisaan/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// AccountRepository defines operations for accounts
type AccountRepository interface {
	Repository[models.Account, models.AccountFilter]
	ByEmail(ctx context.Context, email string) (*models.Account, error)
	ByUsername(ctx context.Context, username string) (*models.Account, error)
	UpdateLastLogin(ctx context.Context, accountID uint, at time.Time) error
	UpdatePasswordHash(ctx context.Context, accountID uint, hash string) error
	// Delete removes the account; dependent rows go with it through FK cascades.
	Delete(ctx context.Context, accountID uint) error
}

// ProfileRepository defines operations for the shared role-bearing profile
type ProfileRepository interface {
	Repository[models.Profile, models.ProfileFilter]
	ByAccountID(ctx context.Context, accountID uint) (*models.Profile, error)
	SetBlocked(ctx context.Context, accountID uint, blocked bool) error
}

// FarmerProfileRepository defines operations for farmer profiles
type FarmerProfileRepository interface {
	Repository[models.FarmerProfile, models.FarmerProfileFilter]
	ByAccountID(ctx context.Context, accountID uint) (*models.FarmerProfile, error)
	ByPhoneNumber(ctx context.Context, phone string) (*models.FarmerProfile, error)
	ByIDs(ctx context.Context, ids []uint) (map[uint]*models.FarmerProfile, error)
	Update(ctx context.Context, profile *models.FarmerProfile) error
}

// CustomerProfileRepository defines operations for customer profiles
type CustomerProfileRepository interface {
	Repository[models.CustomerProfile, models.CustomerProfileFilter]
	ByAccountID(ctx context.Context, accountID uint) (*models.CustomerProfile, error)
	ByPhoneNumber(ctx context.Context, phone string) (*models.CustomerProfile, error)
	ByIDs(ctx context.Context, ids []uint) (map[uint]*models.CustomerProfile, error)
	Update(ctx context.Context, profile *models.CustomerProfile) error
}

// OneTimeCodeRepository defines operations for emailed signup codes
type OneTimeCodeRepository interface {
	Repository[models.OneTimeCode, models.OneTimeCodeFilter]
	ByEmail(ctx context.Context, email string) (*models.OneTimeCode, error)
	// Issue stores code as the only code for its email, replacing any earlier one.
	Issue(ctx context.Context, code *models.OneTimeCode) error
	DeleteByEmail(ctx context.Context, email string) error
	DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ChatRoomRepository defines operations for chat rooms
type ChatRoomRepository interface {
	Repository[models.ChatRoom, models.ChatRoomFilter]
	ByPair(ctx context.Context, farmerProfileID, customerProfileID uint) (*models.ChatRoom, error)
	// GetOrCreate returns the room for the pair in room, inserting it if absent.
	// created is true only for the caller whose insert won.
	GetOrCreate(ctx context.Context, room *models.ChatRoom) (result *models.ChatRoom, created bool, err error)
	// Transition moves the room to the given state and reports whether a row changed.
	Transition(ctx context.Context, roomID uint, state models.ChatState) (bool, error)
}

// MessageRepository defines operations for chat messages
type MessageRepository interface {
	Repository[models.Message, models.MessageFilter]
	// ListByRoom returns messages ordered by (created_at, id).
	ListByRoom(ctx context.Context, roomID uint) ([]*models.Message, error)
	LatestByRooms(ctx context.Context, roomIDs []uint) (map[uint]*models.Message, error)
}

// ReviewRepository defines operations for reviews
type ReviewRepository interface {
	Repository[models.Review, models.ReviewFilter]
	ByPair(ctx context.Context, farmerProfileID, customerProfileID uint) (*models.Review, error)
	Upsert(ctx context.Context, review *models.Review) error
	SummaryForFarmer(ctx context.Context, farmerProfileID uint) (*models.RatingSummary, error)
	SummariesForFarmers(ctx context.Context, farmerProfileIDs []uint) (map[uint]*models.RatingSummary, error)
}

// ProductRepository defines operations for product listings
type ProductRepository interface {
	Repository[models.Product, models.ProductFilter]
	Search(ctx context.Context, criteria models.ProductSearch) ([]*models.Product, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]*models.AuditLog, error)
	ListSecurityEvents(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}

// DeletedAccountRepository defines operations for account tombstones
type DeletedAccountRepository interface {
	Repository[models.DeletedAccount, models.DeletedAccountFilter]
}
