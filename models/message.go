package models

import (
	"time"
)

type MessageKind string

const (
	MessageKindUser   MessageKind = "user"
	MessageKindSystem MessageKind = "system"
)

type Message struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	ChatRoomID      uint        `gorm:"not null;index:idx_messages_room_created,priority:1" json:"chat_room_id"`
	ChatRoom        *ChatRoom   `gorm:"foreignKey:ChatRoomID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	AuthorAccountID *uint       `gorm:"index:idx_messages_author" json:"author_account_id,omitempty"`
	Author          *Account    `gorm:"foreignKey:AuthorAccountID;references:ID;constraint:OnDelete:SET NULL" json:"author,omitempty"`
	Kind            MessageKind `gorm:"size:16;not null;default:'user'" json:"kind"`
	Content         string      `gorm:"type:text;not null" json:"content"`
	CreatedAt       time.Time   `gorm:"not null;index:idx_messages_room_created,priority:2" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) IsSystem() bool {
	return m.Kind == MessageKindSystem
}

// AuthoredBy reports whether accountID wrote the message.
func (m *Message) AuthoredBy(accountID uint) bool {
	return m.AuthorAccountID != nil && *m.AuthorAccountID == accountID
}

type MessageFilter struct {
	ID              *uint
	ChatRoomID      *uint
	AuthorAccountID *uint
	Kind            *MessageKind
	CreatedAfter    *time.Time
}
