package dto

import "time"

type CreateProductRequest struct {
	MainCategory string   `json:"main_category" validate:"required,max=50"`
	SubCategory  string   `json:"sub_category" validate:"required,max=50"`
	Quantity     float64  `json:"quantity" validate:"required,gt=0"`
	Unit         string   `json:"unit" validate:"required,max=20"`
	Price        float64  `json:"price" validate:"required,gt=0"`
	Description  string   `json:"description" validate:"omitempty,max=2000"`
	ImageURL     *string  `json:"image_url,omitempty" validate:"omitempty,url,max=500"`
	Synonyms     []string `json:"synonyms,omitempty" validate:"omitempty,max=20,dive,required,max=50"`
}

type ProductDTO struct {
	ID              uint       `json:"id"`
	FarmerProfileID uint       `json:"farmer_profile_id"`
	FarmerName      string     `json:"farmer_name"`
	MainCategory    string     `json:"main_category"`
	SubCategory     string     `json:"sub_category"`
	Quantity        float64    `json:"quantity"`
	Unit            string     `json:"unit"`
	Price           float64    `json:"price"`
	Description     string     `json:"description"`
	ImageURL        *string    `json:"image_url,omitempty"`
	Synonyms        []string   `json:"synonyms"`
	DatePosted      time.Time  `json:"date_posted"`
	FarmerRating    *RatingDTO `json:"farmer_rating,omitempty"`
	DistanceKm      *float64   `json:"distance_km,omitempty"`
	Distance        string     `json:"distance,omitempty"`
}

const (
	DistanceNearest  = "nearest"
	DistanceFarthest = "farthest"
	DistanceRange    = "range"

	DistanceUnitKm    = "km"
	DistanceUnitMeter = "meter"
)

// ProductSearchRequest is bound from the query string
type ProductSearchRequest struct {
	Query        string   `query:"q" validate:"omitempty,max=100"`
	MinPrice     *float64 `query:"min_price" validate:"omitempty,gte=0"`
	MaxPrice     *float64 `query:"max_price" validate:"omitempty,gte=0"`
	MinQuantity  *float64 `query:"min_quantity" validate:"omitempty,gte=0"`
	MaxQuantity  *float64 `query:"max_quantity" validate:"omitempty,gte=0"`
	PostedAfter  string   `query:"posted_after" validate:"omitempty,datetime=2006-01-02"`
	PostedBefore string   `query:"posted_before" validate:"omitempty,datetime=2006-01-02"`
	Distance     string   `query:"distance" validate:"omitempty,oneof=nearest farthest range"`
	MinKm        *float64 `query:"min_km" validate:"omitempty,gte=0"`
	MaxKm        *float64 `query:"max_km" validate:"omitempty,gte=0"`
	// DistanceUnit applies to MinKm and MaxKm; defaults to km
	DistanceUnit string   `query:"distance_unit" validate:"omitempty,oneof=km meter"`
	Limit        int      `query:"limit" validate:"omitempty,min=1,max=200"`
}

type ProductListResponse struct {
	Products []ProductDTO `json:"products"`
	Total    int          `json:"total"`
}

// FarmerDetailResponse is a farmer's public page: profile, listings and rating
type FarmerDetailResponse struct {
	FarmerProfileID   uint         `json:"farmer_profile_id"`
	Name              string       `json:"name"`
	Ward              string       `json:"ward"`
	Tole              string       `json:"tole"`
	Address           string       `json:"address"`
	ProfilePictureURL *string      `json:"profile_picture_url,omitempty"`
	Rating            *RatingDTO   `json:"rating"`
	DistanceKm        *float64     `json:"distance_km,omitempty"`
	Distance          string       `json:"distance,omitempty"`
	Products          []ProductDTO `json:"products"`
}
