package models

import (
	"time"
)

// Profile is the role-bearing row shared by every account.
type Profile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"not null;uniqueIndex:uk_profiles_account_id" json:"account_id"`
	Account   *Account  `gorm:"foreignKey:AccountID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Role      Role      `gorm:"size:16;not null;index:idx_profiles_role" json:"role"`
	IsBlocked *bool     `gorm:"default:false;not null" json:"is_blocked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

func (p *Profile) Blocked() bool {
	return p != nil && p.IsBlocked != nil && *p.IsBlocked
}

type ProfileFilter struct {
	ID        *uint
	AccountID *uint
	Role      *Role
	IsBlocked *bool
}

// Location holds the contact and geographic fields common to farmers and customers.
type Location struct {
	Ward              string   `gorm:"size:30" json:"ward"`
	Tole              string   `gorm:"size:30" json:"tole"`
	Address           string   `gorm:"size:100;not null;default:'Beni Municipality'" json:"address"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	ProfilePictureURL *string  `gorm:"size:500" json:"profile_picture_url,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

func (l Location) HasPicture() bool {
	return l.ProfilePictureURL != nil && *l.ProfilePictureURL != ""
}

type FarmerProfile struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	AccountID   uint     `gorm:"not null;uniqueIndex:uk_farmer_profiles_account_id" json:"account_id"`
	Account     *Account `gorm:"foreignKey:AccountID;references:ID;constraint:OnDelete:CASCADE" json:"account,omitempty"`
	PhoneNumber *string  `gorm:"size:20;uniqueIndex:uk_farmer_profiles_phone_number" json:"phone_number,omitempty"`
	Location    `gorm:"embedded"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (FarmerProfile) TableName() string {
	return "farmer_profiles"
}

type FarmerProfileFilter struct {
	ID          *uint
	AccountID   *uint
	PhoneNumber *string
	Ward        *string
}

type CustomerProfile struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	AccountID   uint     `gorm:"not null;uniqueIndex:uk_customer_profiles_account_id" json:"account_id"`
	Account     *Account `gorm:"foreignKey:AccountID;references:ID;constraint:OnDelete:CASCADE" json:"account,omitempty"`
	PhoneNumber *string  `gorm:"size:20;uniqueIndex:uk_customer_profiles_phone_number" json:"phone_number,omitempty"`
	Location    `gorm:"embedded"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CustomerProfile) TableName() string {
	return "customer_profiles"
}

type CustomerProfileFilter struct {
	ID          *uint
	AccountID   *uint
	PhoneNumber *string
	Ward        *string
}
