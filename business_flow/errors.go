// Package businessflow contains the core business logic and use cases
package businessflow

import (
	"errors"
	"fmt"

	"github.com/kisaan-market/kisaan/app/dto"
)

// Business flow error constants, grouped by how callers should react.
var (
	// Validation
	ErrEmailDomainNotAllowed   = errors.New("email domain is not allowed")
	ErrInvalidPhoneNumber      = errors.New("phone number must contain only digits and be at least 8 digits long")
	ErrInvalidRole             = errors.New("role must be farmer or customer")
	ErrInvalidOTPCode          = errors.New("invalid OTP code")
	ErrEmptyMessage            = errors.New("message text is empty")
	ErrRatingOutOfRange        = errors.New("rating must be between 1 and 5")
	ErrFarmerOrProductRequired = errors.New("farmer or product is required")
	ErrProductFarmerMismatch   = errors.New("product does not belong to the farmer")
	ErrInvalidDateRange        = errors.New("start date cannot be after end date")
	ErrInvalidDistanceFilter   = errors.New("distance range requires min_km <= max_km")
	ErrInvalidDate             = errors.New("dates must use YYYY-MM-DD")
	ErrRoleMismatch            = errors.New("account does not have the requested role")
	ErrNothingToUpdate         = errors.New("at least one field must be provided for update")
	ErrConfirmationMismatch    = errors.New("confirmation email does not match the account email")
	ErrEmailNotRegistered      = errors.New("no account is registered with this email")
	ErrResetTokenInvalid       = errors.New("password reset token is invalid, expired or already used")

	// Forbidden
	ErrNotParticipant       = errors.New("not a participant of this chat")
	ErrOnlyFarmerMayRespond = errors.New("only the farmer may accept or reject this chat")
	ErrPostingClosed        = errors.New("posting is not allowed in the chat's current state")
	ErrRoleNotAllowed       = errors.New("role is not allowed to perform this action")
	ErrAccountBlocked       = errors.New("account is blocked")
	ErrAccountInactive      = errors.New("account is inactive")
	ErrCannotModerateSelf   = errors.New("admins cannot block themselves")
	ErrCannotModerateAdmin  = errors.New("admin accounts cannot be blocked")

	// Conflict
	ErrEmailAlreadyExists    = errors.New("email already exists")
	ErrUsernameAlreadyExists = errors.New("username already exists")
	ErrPhoneAlreadyExists    = errors.New("phone number already exists")
	ErrIdentityTaken         = errors.New("username or phone number was taken before verification completed")

	// NotFound
	ErrAccountNotFound  = errors.New("account not found")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrFarmerNotFound   = errors.New("farmer not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrChatRoomNotFound = errors.New("chat room not found")
	ErrSignupNotFound   = errors.New("signup not found or expired")
	ErrNoValidOTPFound  = errors.New("no valid OTP found")

	// Expired
	ErrOTPExpired = errors.New("OTP has expired")

	// Unauthorized
	ErrIncorrectPassword = errors.New("incorrect email or password")

	// Retryable
	ErrAccountCreationFailed = errors.New("account creation failed, please retry")
)

var (
	validationErrors = []error{
		ErrEmailDomainNotAllowed, ErrInvalidPhoneNumber, ErrInvalidRole, ErrInvalidOTPCode,
		ErrEmptyMessage, ErrRatingOutOfRange, ErrFarmerOrProductRequired, ErrProductFarmerMismatch,
		ErrInvalidDateRange, ErrInvalidDistanceFilter, ErrInvalidDate, ErrRoleMismatch, ErrNothingToUpdate,
		ErrConfirmationMismatch, ErrEmailNotRegistered, ErrResetTokenInvalid,
	}
	forbiddenErrors = []error{
		ErrNotParticipant, ErrOnlyFarmerMayRespond, ErrPostingClosed, ErrRoleNotAllowed,
		ErrAccountBlocked, ErrAccountInactive, ErrCannotModerateSelf, ErrCannotModerateAdmin,
	}
	conflictErrors = []error{
		ErrEmailAlreadyExists, ErrUsernameAlreadyExists, ErrPhoneAlreadyExists, ErrIdentityTaken,
	}
	notFoundErrors = []error{
		ErrAccountNotFound, ErrProfileNotFound, ErrFarmerNotFound, ErrProductNotFound,
		ErrChatRoomNotFound, ErrSignupNotFound, ErrNoValidOTPFound,
	}
)

// fieldOf names the request field a sentinel error is about.
var fieldOf = []struct {
	err   error
	field string
}{
	{ErrEmailDomainNotAllowed, "email"},
	{ErrEmailAlreadyExists, "email"},
	{ErrEmailNotRegistered, "email"},
	{ErrUsernameAlreadyExists, "username"},
	{ErrInvalidPhoneNumber, "phone_number"},
	{ErrPhoneAlreadyExists, "phone_number"},
	{ErrInvalidRole, "role"},
	{ErrInvalidOTPCode, "code"},
	{ErrRatingOutOfRange, "rating"},
	{ErrConfirmationMismatch, "confirmation_email"},
	{ErrResetTokenInvalid, "token"},
}

// FieldErrors returns the field-level form of err, or nil when err is not
// about a single request field.
func FieldErrors(err error) []dto.FieldError {
	for _, f := range fieldOf {
		if errors.Is(err, f.err) {
			return []dto.FieldError{{Field: f.field, Message: f.err.Error()}}
		}
	}
	return nil
}

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func IsValidationError(err error) bool {
	return isAny(err, validationErrors)
}

// IsForbiddenError reports an authorization refusal; these are abuse signals.
func IsForbiddenError(err error) bool {
	return isAny(err, forbiddenErrors)
}

func IsConflictError(err error) bool {
	return isAny(err, conflictErrors)
}

func IsNotFoundError(err error) bool {
	return isAny(err, notFoundErrors)
}

func IsExpiredError(err error) bool {
	return errors.Is(err, ErrOTPExpired)
}

func IsRetryableError(err error) bool {
	return errors.Is(err, ErrAccountCreationFailed)
}

func IsIncorrectPassword(err error) bool {
	return errors.Is(err, ErrIncorrectPassword)
}

func IsAccountBlocked(err error) bool {
	return errors.Is(err, ErrAccountBlocked)
}

func IsPostingClosed(err error) bool {
	return errors.Is(err, ErrPostingClosed)
}
