package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidChatRoomState is returned when a room would be both accepted and rejected.
var ErrInvalidChatRoomState = errors.New("chat room cannot be both accepted and rejected")

type ChatState string

const (
	ChatStatePending  ChatState = "pending"
	ChatStateAccepted ChatState = "accepted"
	ChatStateRejected ChatState = "rejected"
)

// ChatRoom is the single conversation between one farmer and one customer.
type ChatRoom struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	FarmerProfileID   uint             `gorm:"not null;uniqueIndex:uk_chat_rooms_pair,priority:1;index:idx_chat_rooms_farmer" json:"farmer_profile_id"`
	FarmerProfile     *FarmerProfile   `gorm:"foreignKey:FarmerProfileID;references:ID;constraint:OnDelete:CASCADE" json:"farmer_profile,omitempty"`
	CustomerProfileID uint             `gorm:"not null;uniqueIndex:uk_chat_rooms_pair,priority:2;index:idx_chat_rooms_customer" json:"customer_profile_id"`
	CustomerProfile   *CustomerProfile `gorm:"foreignKey:CustomerProfileID;references:ID;constraint:OnDelete:CASCADE" json:"customer_profile,omitempty"`
	ProductID         *uint            `gorm:"index:idx_chat_rooms_product" json:"product_id,omitempty"`
	Product           *Product         `gorm:"foreignKey:ProductID;references:ID;constraint:OnDelete:SET NULL" json:"product,omitempty"`
	FarmerAccepted    bool             `gorm:"not null;default:false;check:chk_chat_rooms_state,NOT (farmer_accepted AND farmer_rejected)" json:"farmer_accepted"`
	FarmerRejected    bool             `gorm:"not null;default:false" json:"farmer_rejected"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (ChatRoom) TableName() string {
	return "chat_rooms"
}

func (r *ChatRoom) BeforeSave(tx *gorm.DB) error {
	if r.FarmerAccepted && r.FarmerRejected {
		return ErrInvalidChatRoomState
	}
	return nil
}

func (r *ChatRoom) State() ChatState {
	switch {
	case r.FarmerAccepted:
		return ChatStateAccepted
	case r.FarmerRejected:
		return ChatStateRejected
	default:
		return ChatStatePending
	}
}

// Accept moves the room to Accepted and reports whether anything changed.
func (r *ChatRoom) Accept() bool {
	if r.FarmerAccepted {
		return false
	}
	r.FarmerAccepted = true
	r.FarmerRejected = false
	return true
}

// Reject moves the room to Rejected and reports whether anything changed.
func (r *ChatRoom) Reject() bool {
	if r.FarmerRejected {
		return false
	}
	r.FarmerRejected = true
	r.FarmerAccepted = false
	return true
}

type ChatRoomFilter struct {
	ID                *uint
	FarmerProfileID   *uint
	CustomerProfileID *uint
	ProductID         *uint
	State             *ChatState
}
