package models

import (
	"time"
)

// DeletedAccount keeps a tombstone of who left and why.
type DeletedAccount struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"not null;index:idx_deleted_accounts_account_id" json:"account_id"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	Username  string    `gorm:"size:150;not null" json:"username"`
	Role      Role      `gorm:"size:16" json:"role"`
	Reason    *string   `gorm:"type:text" json:"reason,omitempty"`
	DeletedAt time.Time `gorm:"not null;index:idx_deleted_accounts_deleted_at" json:"deleted_at"`
}

func (DeletedAccount) TableName() string {
	return "deleted_accounts"
}

type DeletedAccountFilter struct {
	ID        *uint
	Email     *string
	AccountID *uint
}
