package dto

import "time"

// LoginRequest represents the login form
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
	// Role, when set, must match the account's role.
	Role string `json:"role,omitempty" validate:"omitempty,oneof=farmer customer admin"`
}

type LoginResponse struct {
	Message  string           `json:"message"`
	Tokens   TokenResponse    `json:"tokens"`
	Account  AccountDTO       `json:"account"`
	Redirect RedirectResponse `json:"redirect"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// ForgotPasswordRequest asks for a reset token by email
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

type ForgotPasswordResponse struct {
	Message   string `json:"message"`
	SentTo    string `json:"sent_to"`
	ExpiresIn int    `json:"expires_in"`
}

// ResetPasswordRequest redeems an emailed reset token
type ResetPasswordRequest struct {
	Token           string `json:"token" validate:"required,max=2048"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

type ResetPasswordResponse struct {
	Message           string    `json:"message"`
	PasswordChangedAt time.Time `json:"password_changed_at"`
}
