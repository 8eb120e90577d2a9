package repository

import (
	"context"
	"fmt"

	"github.com/kisaan-market/kisaan/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRoomRepositoryImpl implements ChatRoomRepository interface
type ChatRoomRepositoryImpl struct {
	*BaseRepository[models.ChatRoom, models.ChatRoomFilter]
}

// NewChatRoomRepository creates a new chat room repository
func NewChatRoomRepository(db *gorm.DB) ChatRoomRepository {
	return &ChatRoomRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ChatRoom, models.ChatRoomFilter](db),
	}
}

func (r *ChatRoomRepositoryImpl) ByPair(ctx context.Context, farmerProfileID, customerProfileID uint) (*models.ChatRoom, error) {
	query := r.getDB(ctx).Where("farmer_profile_id = ? AND customer_profile_id = ?", farmerProfileID, customerProfileID)
	return first[models.ChatRoom](query, "chat room by pair")
}

// GetOrCreate relies on uk_chat_rooms_pair: the losing inserter does nothing
// and reads back the winner's row.
func (r *ChatRoomRepositoryImpl) GetOrCreate(ctx context.Context, room *models.ChatRoom) (*models.ChatRoom, bool, error) {
	db := r.getDB(ctx)

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "farmer_profile_id"}, {Name: "customer_profile_id"}},
		DoNothing: true,
	}).Create(room)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create chat room: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return room, true, nil
	}

	existing, err := r.ByPair(ctx, room.FarmerProfileID, room.CustomerProfileID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("chat room for farmer %d and customer %d vanished after conflict", room.FarmerProfileID, room.CustomerProfileID)
	}
	return existing, false, nil
}

// Transition sets one decision flag and clears the other. The guard on the
// target flag makes a repeated decision affect zero rows.
func (r *ChatRoomRepositoryImpl) Transition(ctx context.Context, roomID uint, state models.ChatState) (bool, error) {
	var guard string
	var updates map[string]any

	switch state {
	case models.ChatStateAccepted:
		guard = "farmer_accepted = ?"
		updates = map[string]any{"farmer_accepted": true, "farmer_rejected": false}
	case models.ChatStateRejected:
		guard = "farmer_rejected = ?"
		updates = map[string]any{"farmer_accepted": false, "farmer_rejected": true}
	default:
		return false, fmt.Errorf("unsupported chat room transition to %q", state)
	}

	res := r.getDB(ctx).Model(&models.ChatRoom{}).
		Where("id = ?", roomID).
		Where(guard, false).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to move chat room %d to %s: %w", roomID, state, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *ChatRoomRepositoryImpl) applyFilter(query *gorm.DB, filter models.ChatRoomFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.FarmerProfileID != nil {
		query = query.Where("farmer_profile_id = ?", *filter.FarmerProfileID)
	}
	if filter.CustomerProfileID != nil {
		query = query.Where("customer_profile_id = ?", *filter.CustomerProfileID)
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.State != nil {
		switch *filter.State {
		case models.ChatStateAccepted:
			query = query.Where("farmer_accepted = ?", true)
		case models.ChatStateRejected:
			query = query.Where("farmer_rejected = ?", true)
		case models.ChatStatePending:
			query = query.Where("farmer_accepted = ? AND farmer_rejected = ?", false, false)
		}
	}
	return query
}

// ByFilter preloads both participants and the product for list views.
func (r *ChatRoomRepositoryImpl) ByFilter(ctx context.Context, filter models.ChatRoomFilter, orderBy string, limit, offset int) ([]*models.ChatRoom, error) {
	query := r.getDB(ctx).Model(&models.ChatRoom{}).
		Preload("FarmerProfile.Account").
		Preload("CustomerProfile.Account").
		Preload("Product")
	query = r.applyFilter(query, filter)

	var rows []*models.ChatRoom
	if err := paginate(query, orderBy, limit, offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list chat rooms: %w", err)
	}
	return rows, nil
}

func (r *ChatRoomRepositoryImpl) Count(ctx context.Context, filter models.ChatRoomFilter) (int64, error) {
	return count(r.applyFilter(r.getDB(ctx).Model(&models.ChatRoom{}), filter), "chat rooms")
}

func (r *ChatRoomRepositoryImpl) Exists(ctx context.Context, filter models.ChatRoomFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
