package dto

// SignupRequest represents the registration form
type SignupRequest struct {
	Username        string `json:"username" validate:"required,min=3,max=150,alphanum"`
	Email           string `json:"email" validate:"required,email,max=255"`
	FirstName       string `json:"first_name" validate:"required,max=30,alpha_space"`
	LastName        string `json:"last_name" validate:"required,max=30,alpha_space"`
	PhoneNumber     string `json:"phone_number" validate:"required,phone_digits"`
	Ward            string `json:"ward" validate:"required,ward"`
	Tole            string `json:"tole" validate:"omitempty,max=30"`
	Role            string `json:"role" validate:"required,oneof=farmer customer"`
	Password        string `json:"password" validate:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`

	// Raw browser geolocation; unparseable values are stored as 0.0.
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
}

// SignupResponse is returned once the code has been issued
type SignupResponse struct {
	Message       string `json:"message"`
	SignupToken   string `json:"signup_token"`
	OTPTarget     string `json:"otp_target"` // masked email
	CodeExpiresIn int    `json:"code_expires_in"`
}

const (
	ResendStatusCodeIssued = "code_issued"
	ResendStatusMustWait   = "must_wait"

	VerifyStatusAccountCreated    = "account_created"
	VerifyStatusAlreadyRegistered = "already_registered"
)

type ResendOTPRequest struct {
	SignupToken string `json:"signup_token" validate:"required,max=64"`
}

// ResendOTPResponse reports either a fresh code or how long to wait for one
type ResendOTPResponse struct {
	Message          string `json:"message"`
	Status           string `json:"status"`
	SecondsRemaining int    `json:"seconds_remaining,omitempty"`
	OTPTarget        string `json:"otp_target,omitempty"`
}

type VerifyOTPRequest struct {
	SignupToken string `json:"signup_token" validate:"required,max=64"`
	OTPCode     string `json:"otp_code" validate:"required,len=6"`
}

type VerifyOTPResponse struct {
	Message string      `json:"message"`
	Status  string      `json:"status"`
	Account *AccountDTO `json:"account,omitempty"`
}

// AvailabilityRequest asks whether a signup identifier is still free
type AvailabilityRequest struct {
	Field string `query:"field" json:"field" validate:"required,oneof=username email phone_number"`
	Value string `query:"value" json:"value" validate:"required,max=255"`
}

type AvailabilityResponse struct {
	Field     string `json:"field"`
	Available bool   `json:"available"`
}
