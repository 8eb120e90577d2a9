package repository

import (
	"context"
	"fmt"

	"github.com/kisaan-market/kisaan/models"
	"gorm.io/gorm"
)

// MessageRepositoryImpl implements MessageRepository interface
type MessageRepositoryImpl struct {
	*BaseRepository[models.Message, models.MessageFilter]
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &MessageRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Message, models.MessageFilter](db),
	}
}

func (r *MessageRepositoryImpl) ListByRoom(ctx context.Context, roomID uint) ([]*models.Message, error) {
	var rows []*models.Message
	err := r.getDB(ctx).
		Preload("Author").
		Where("chat_room_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for room %d: %w", roomID, err)
	}
	return rows, nil
}

// LatestByRooms returns the newest message of each room that has one.
func (r *MessageRepositoryImpl) LatestByRooms(ctx context.Context, roomIDs []uint) (map[uint]*models.Message, error) {
	out := make(map[uint]*models.Message, len(roomIDs))
	if len(roomIDs) == 0 {
		return out, nil
	}

	var rows []*models.Message
	err := r.getDB(ctx).
		Raw(`SELECT DISTINCT ON (chat_room_id) * FROM messages
			WHERE chat_room_id IN ?
			ORDER BY chat_room_id, created_at DESC, id DESC`, roomIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load latest messages: %w", err)
	}
	for _, row := range rows {
		out[row.ChatRoomID] = row
	}
	return out, nil
}

func (r *MessageRepositoryImpl) applyFilter(query *gorm.DB, filter models.MessageFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.ChatRoomID != nil {
		query = query.Where("chat_room_id = ?", *filter.ChatRoomID)
	}
	if filter.AuthorAccountID != nil {
		query = query.Where("author_account_id = ?", *filter.AuthorAccountID)
	}
	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	return query
}

func (r *MessageRepositoryImpl) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Message{}), filter)

	var rows []*models.Message
	if err := paginate(query, orderBy, limit, offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return rows, nil
}

func (r *MessageRepositoryImpl) Count(ctx context.Context, filter models.MessageFilter) (int64, error) {
	return count(r.applyFilter(r.getDB(ctx).Model(&models.Message{}), filter), "messages")
}

func (r *MessageRepositoryImpl) Exists(ctx context.Context, filter models.MessageFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
