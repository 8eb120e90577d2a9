package handlers

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/app/middleware"
	businessflow "github.com/kisaan-market/kisaan/business_flow"
)

// AuthHandlerInterface defines the contract for authentication handlers
type AuthHandlerInterface interface {
	Signup(c fiber.Ctx) error
	ResendOTP(c fiber.Ctx) error
	VerifyOTP(c fiber.Ctx) error
	CheckAvailability(c fiber.Ctx) error
	Login(c fiber.Ctx) error
	Refresh(c fiber.Ctx) error
	Logout(c fiber.Ctx) error
	ForgotPassword(c fiber.Ctx) error
	ResetPassword(c fiber.Ctx) error
}

// AuthHandler handles signup, login and token requests
type AuthHandler struct {
	baseHandler
	signupFlow businessflow.SignupFlow
	loginFlow  businessflow.LoginFlow
	validator  *validator.Validate
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(signupFlow businessflow.SignupFlow, loginFlow businessflow.LoginFlow) *AuthHandler {
	return &AuthHandler{
		signupFlow: signupFlow,
		loginFlow:  loginFlow,
		validator:  newValidator(),
	}
}

// Signup validates the registration form and emails a one-time code
// @Summary Start signup
// @Description Validate the registration form, hold it pending and email a 6-digit code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.SignupRequest true "Registration form"
// @Success 200 {object} dto.APIResponse{data=dto.SignupResponse} "Code sent"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Email, username or phone already registered"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/auth/signup [post]
func (h *AuthHandler) Signup(c fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.signupFlow.InitiateSignup(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Signup failed", "SIGNUP_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// ResendOTP issues a fresh code once the previous one has lapsed
// @Summary Resend signup code
// @Description Issue a new code if the previous one expired, otherwise report the seconds left
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.ResendOTPRequest true "Pending signup token"
// @Success 200 {object} dto.APIResponse{data=dto.ResendOTPResponse} "Code issued or wait required"
// @Failure 404 {object} dto.APIResponse "Pending signup not found"
// @Router /api/v1/auth/resend-otp [post]
func (h *AuthHandler) ResendOTP(c fiber.Ctx) error {
	var req dto.ResendOTPRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.signupFlow.ResendOTP(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to resend code", "RESEND_OTP_FAILED")
	}

	if result.Status == dto.ResendStatusMustWait {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(result.SecondsRemaining))
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// VerifyOTP checks the code and creates the account
// @Summary Verify signup code
// @Description Verify the emailed code and atomically create the account and its profiles
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.VerifyOTPRequest true "Pending signup token and code"
// @Success 201 {object} dto.APIResponse{data=dto.VerifyOTPResponse} "Account created"
// @Success 200 {object} dto.APIResponse{data=dto.VerifyOTPResponse} "Email was already registered"
// @Failure 400 {object} dto.APIResponse "Wrong code"
// @Failure 404 {object} dto.APIResponse "No valid code"
// @Failure 409 {object} dto.APIResponse "Username or phone taken meanwhile"
// @Failure 410 {object} dto.APIResponse "Code expired"
// @Failure 503 {object} dto.APIResponse "Account creation failed, retry"
// @Router /api/v1/auth/verify [post]
func (h *AuthHandler) VerifyOTP(c fiber.Ctx) error {
	var req dto.VerifyOTPRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.signupFlow.VerifyOTP(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Code verification failed", "OTP_VERIFICATION_FAILED")
	}

	status := fiber.StatusOK
	if result.Status == dto.VerifyStatusAccountCreated {
		status = fiber.StatusCreated
	}
	return h.SuccessResponse(c, status, result.Message, result)
}

// CheckAvailability reports whether a username, email or phone number is free
// @Summary Check identifier availability
// @Tags Authentication
// @Produce json
// @Param field query string true "username, email or phone_number"
// @Param value query string true "Value to check"
// @Success 200 {object} dto.APIResponse{data=dto.AvailabilityResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Router /api/v1/auth/check-availability [get]
func (h *AuthHandler) CheckAvailability(c fiber.Ctx) error {
	var req dto.AvailabilityRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.signupFlow.CheckAvailability(ctx, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Availability check failed", "AVAILABILITY_CHECK_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Availability checked", result)
}

// Login handles user authentication
// @Summary Login
// @Description Authenticate with email and password, optionally asserting a role
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login credentials"
// @Success 200 {object} dto.APIResponse{data=dto.LoginResponse} "Login successful with tokens"
// @Failure 400 {object} dto.APIResponse "Role mismatch"
// @Failure 401 {object} dto.APIResponse "Incorrect email or password"
// @Failure 403 {object} dto.APIResponse "Account blocked or inactive"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.loginFlow.Login(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Login failed", "LOGIN_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// Refresh rotates a refresh token into a new token pair
// @Summary Refresh tokens
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.RefreshTokenRequest true "Refresh token"
// @Success 200 {object} dto.APIResponse{data=dto.TokenResponse}
// @Failure 401 {object} dto.APIResponse "Invalid or revoked refresh token"
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var req dto.RefreshTokenRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	tokens, err := h.loginFlow.Refresh(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Token refresh failed", "TOKEN_REFRESH_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Tokens refreshed", tokens)
}

// Logout revokes the access token used for this request
// @Summary Logout
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	token, ok := middleware.GetAccessTokenFromContext(c)
	if !ok || token == "" {
		return unauthorized(c)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.loginFlow.Logout(ctx, token); err != nil {
		return h.BusinessErrorResponse(c, err, "Logout failed", "LOGOUT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Logged out", nil)
}

// ForgotPassword emails a password reset token
// @Summary Request password reset
// @Description Email a single-use reset token to a registered account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.ForgotPasswordRequest true "Account email"
// @Success 200 {object} dto.APIResponse{data=dto.ForgotPasswordResponse} "Token sent"
// @Failure 400 {object} dto.APIResponse "Email not registered"
// @Failure 403 {object} dto.APIResponse "Account inactive"
// @Failure 500 {object} dto.APIResponse "Email could not be sent"
// @Router /api/v1/auth/password/forgot [post]
func (h *AuthHandler) ForgotPassword(c fiber.Ctx) error {
	var req dto.ForgotPasswordRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.loginFlow.ForgotPassword(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Password reset request failed", "FORGOT_PASSWORD_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// ResetPassword sets a new password using an emailed reset token
// @Summary Reset password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.ResetPasswordRequest true "Reset token and new password"
// @Success 200 {object} dto.APIResponse{data=dto.ResetPasswordResponse} "Password changed"
// @Failure 400 {object} dto.APIResponse "Invalid, expired or used token"
// @Router /api/v1/auth/password/reset [post]
func (h *AuthHandler) ResetPassword(c fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.loginFlow.ResetPassword(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Password reset failed", "RESET_PASSWORD_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}
