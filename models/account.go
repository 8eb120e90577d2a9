// Package models contains domain entities and business models for the marketplace
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UUID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_accounts_uuid" json:"uuid"`
	Username     string     `gorm:"size:150;not null;uniqueIndex:uk_accounts_username" json:"username"`
	Email        string     `gorm:"size:255;not null;uniqueIndex:uk_accounts_email" json:"email"`
	FirstName    string     `gorm:"size:30;not null" json:"first_name"`
	LastName     string     `gorm:"size:30;not null" json:"last_name"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	IsActive     *bool      `gorm:"default:true;index:idx_accounts_is_active" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `gorm:"index:idx_accounts_created_at" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// DisplayName is the full name when present, otherwise the username.
func (a *Account) DisplayName() string {
	if a == nil {
		return ""
	}
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Username
	}
	return name
}

// AccountFilter represents filter criteria for account queries
type AccountFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	Email         *string
	Username      *string
	IsActive      *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
