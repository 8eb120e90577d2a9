package models

import (
	"time"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Review is a customer's rating of a farmer. One row per pair; later submissions overwrite.
type Review struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	FarmerProfileID   uint             `gorm:"not null;uniqueIndex:uk_reviews_pair,priority:1;index:idx_reviews_farmer" json:"farmer_profile_id"`
	FarmerProfile     *FarmerProfile   `gorm:"foreignKey:FarmerProfileID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	CustomerProfileID uint             `gorm:"not null;uniqueIndex:uk_reviews_pair,priority:2" json:"customer_profile_id"`
	CustomerProfile   *CustomerProfile `gorm:"foreignKey:CustomerProfileID;references:ID;constraint:OnDelete:CASCADE" json:"customer_profile,omitempty"`
	Rating            int              `gorm:"not null;check:chk_reviews_rating,rating BETWEEN 1 AND 5" json:"rating"`
	Comment           *string          `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (Review) TableName() string {
	return "reviews"
}

type ReviewFilter struct {
	ID                *uint
	FarmerProfileID   *uint
	CustomerProfileID *uint
	MinRating         *int
}

// RatingSummary aggregates a farmer's reviews.
type RatingSummary struct {
	FarmerProfileID uint    `json:"farmer_profile_id"`
	Average         float64 `json:"average"`
	Count           int64   `json:"count"`
}
