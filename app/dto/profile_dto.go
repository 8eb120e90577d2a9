package dto

import "time"

type AccountDTO struct {
	ID          uint      `json:"id"`
	UUID        string    `json:"uuid"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	IsBlocked   bool      `json:"is_blocked"`
	CreatedAt   time.Time `json:"created_at"`
}

type LocationDTO struct {
	Ward              string   `json:"ward"`
	Tole              string   `json:"tole"`
	Address           string   `json:"address"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	ProfilePictureURL *string  `json:"profile_picture_url,omitempty"`
}

// RoleProfileDTO is the farmer or customer half of an identity
type RoleProfileDTO struct {
	ID          uint        `json:"id"`
	PhoneNumber *string     `json:"phone_number,omitempty"`
	Location    LocationDTO `json:"location"`
}

type MeResponse struct {
	Account AccountDTO      `json:"account"`
	Role    string          `json:"role"`
	Profile *RoleProfileDTO `json:"profile,omitempty"`
}

// RedirectResponse names the screen a client should open next
type RedirectResponse struct {
	Role        string `json:"role"`
	Destination string `json:"destination"`
}

// UpdateProfileRequest carries only the fields being changed
type UpdateProfileRequest struct {
	PhoneNumber       *string `json:"phone_number,omitempty" validate:"omitempty,phone_digits"`
	Ward              *string `json:"ward,omitempty" validate:"omitempty,ward"`
	Tole              *string `json:"tole,omitempty" validate:"omitempty,max=30"`
	Latitude          *string `json:"latitude,omitempty" validate:"omitempty,max=32"`
	Longitude         *string `json:"longitude,omitempty" validate:"omitempty,max=32"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty" validate:"omitempty,url,max=500"`
}

// DeleteAccountRequest must repeat the account email to confirm
type DeleteAccountRequest struct {
	ConfirmationEmail string  `json:"confirmation_email" validate:"required,email,max=254"`
	Reason            *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type DeleteAccountResponse struct {
	Message   string    `json:"message"`
	DeletedAt time.Time `json:"deleted_at"`
}
