package dto

import "time"

type SubmitReviewRequest struct {
	Rating  int     `json:"rating" validate:"required,min=1,max=5"`
	Comment *string `json:"comment,omitempty" validate:"omitempty,max=1000"`
}

type ReviewDTO struct {
	ID                uint      `json:"id"`
	FarmerProfileID   uint      `json:"farmer_profile_id"`
	CustomerProfileID uint      `json:"customer_profile_id"`
	CustomerName      string    `json:"customer_name"`
	Rating            int       `json:"rating"`
	Comment           *string   `json:"comment,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ReviewListResponse struct {
	Reviews []ReviewDTO `json:"reviews"`
	Rating  RatingDTO   `json:"rating"`
}

// RatingDTO is a farmer's average rounded to one decimal place
type RatingDTO struct {
	FarmerProfileID uint    `json:"farmer_profile_id"`
	Average         float64 `json:"average"`
	Count           int64   `json:"count"`
}
