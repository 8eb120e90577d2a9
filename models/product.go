package models

import (
	"time"

	"github.com/lib/pq"
)

type Product struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	FarmerProfileID uint           `gorm:"not null;index:idx_products_farmer" json:"farmer_profile_id"`
	FarmerProfile   *FarmerProfile `gorm:"foreignKey:FarmerProfileID;references:ID;constraint:OnDelete:CASCADE" json:"farmer_profile,omitempty"`
	MainCategory    string         `gorm:"size:50;not null" json:"main_category"`
	SubCategory     string         `gorm:"size:50;not null;index:idx_products_sub_category" json:"sub_category"`
	Quantity        float64        `gorm:"not null" json:"quantity"`
	Unit            string         `gorm:"size:20;not null" json:"unit"`
	Price           float64        `gorm:"not null;index:idx_products_price" json:"price"`
	Description     string         `gorm:"type:text" json:"description"`
	ImageURL        *string        `gorm:"size:500" json:"image_url,omitempty"`
	Synonyms        pq.StringArray `gorm:"type:text[]" json:"synonyms"`
	DatePosted      time.Time      `gorm:"not null;index:idx_products_date_posted" json:"date_posted"`
}

func (Product) TableName() string {
	return "products"
}

// DisplayName is what chat greetings show for the product.
func (p *Product) DisplayName() string {
	if p == nil {
		return ""
	}
	return p.SubCategory
}

type ProductFilter struct {
	ID              *uint
	FarmerProfileID *uint
	MainCategory    *string
	SubCategory     *string
}

// ProductSearch narrows listings by text, price, quantity and posting date.
// Distance ordering happens above the store since it depends on the caller's location.
type ProductSearch struct {
	Query        string
	MinPrice     *float64
	MaxPrice     *float64
	MinQuantity  *float64
	MaxQuantity  *float64
	PostedAfter  *time.Time
	PostedBefore *time.Time
	Limit        int
}
