package models

import (
	"time"
)

// PendingSignup holds a registration between form submission and code
// verification. It lives in the signup store under an opaque token, never in
// the relational database.
type PendingSignup struct {
	Token        string    `json:"token"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PhoneNumber  string    `json:"phone_number"`
	Ward         string    `json:"ward"`
	Tole         string    `json:"tole"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"password_hash"`
	Latitude     string    `json:"latitude"`
	Longitude    string    `json:"longitude"`
	CreatedAt    time.Time `json:"created_at"`
}
