// Package realtime fans chat messages out to connected clients, in-process
// or across instances through Redis pub/sub.
package realtime

import (
	"time"

	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/utils"
)

// ChatEvent is what a subscriber receives for every message posted to a room.
type ChatEvent struct {
	RoomID            uint   `json:"room_id"`
	MessageID         uint   `json:"message_id"`
	IsSystem          bool   `json:"is_system"`
	MessageText       string `json:"message_text"`
	AuthorDisplayName string `json:"author_display_name"`
	Timestamp         string `json:"timestamp"`
}

// NewChatEvent renders msg for the wire. author may be nil for orphaned messages.
func NewChatEvent(msg *models.Message, author *models.Account) ChatEvent {
	name := "System"
	if author != nil {
		name = author.DisplayName()
	}
	return ChatEvent{
		RoomID:            msg.ChatRoomID,
		MessageID:         msg.ID,
		IsSystem:          msg.IsSystem(),
		MessageText:       msg.Content,
		AuthorDisplayName: name,
		Timestamp:         FormatTimestamp(msg.CreatedAt),
	}
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(utils.MessageTimestampLayout)
}
