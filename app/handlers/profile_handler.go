package handlers

import (
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/app/middleware"
	businessflow "github.com/kisaan-market/kisaan/business_flow"
	"github.com/kisaan-market/kisaan/models"
)

type ProfileHandlerInterface interface {
	GetMe(c fiber.Ctx) error
	Redirect(c fiber.Ctx) error
	UpdateProfile(c fiber.Ctx) error
	DeleteAccount(c fiber.Ctx) error
}

type ProfileHandler struct {
	baseHandler
	flow      businessflow.ProfileFlow
	loginFlow businessflow.LoginFlow
	validator *validator.Validate
}

func NewProfileHandler(flow businessflow.ProfileFlow, loginFlow businessflow.LoginFlow) *ProfileHandler {
	return &ProfileHandler{
		flow:      flow,
		loginFlow: loginFlow,
		validator: newValidator(),
	}
}

// GetMe returns the authenticated account together with its role profile
// @Summary Get current account
// @Tags Profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.MeResponse}
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Account blocked"
// @Router /api/v1/me [get]
func (h *ProfileHandler) GetMe(c fiber.Ctx) error {
	accountID, ok := currentAccount(c)
	if !ok {
		return unauthorized(c)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.flow.GetMe(ctx, accountID)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to get profile", "GET_PROFILE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Profile retrieved successfully", res)
}

// Redirect resolves the screen the account should land on, creating missing
// profile rows on first visit
// @Summary Role redirect
// @Tags Profile
// @Produce json
// @Security BearerAuth
// @Param role query string false "Role hint used when no profile exists yet"
// @Success 200 {object} dto.APIResponse{data=dto.RedirectResponse}
// @Failure 403 {object} dto.APIResponse "Account blocked"
// @Router /api/v1/me/redirect [get]
func (h *ProfileHandler) Redirect(c fiber.Ctx) error {
	accountID, ok := currentAccount(c)
	if !ok {
		return unauthorized(c)
	}

	role, _ := middleware.GetRoleFromContext(c)
	if hint := c.Query("role"); hint != "" {
		role = models.Role(hint)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.flow.RoleRedirect(ctx, accountID, role, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to resolve redirect", "ROLE_REDIRECT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Redirect resolved", res)
}

// UpdateProfile changes contact and location details
// @Summary Update profile
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.UpdateProfileRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.MeResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Phone number already registered"
// @Router /api/v1/me/profile [put]
func (h *ProfileHandler) UpdateProfile(c fiber.Ctx) error {
	accountID, ok := currentAccount(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.UpdateProfileRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.flow.UpdateProfile(ctx, accountID, &req, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to update profile", "UPDATE_PROFILE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Profile updated successfully", res)
}

// DeleteAccount removes the account and everything it owns, then revokes the
// token used for the request
// @Summary Delete account
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.DeleteAccountRequest true "Account email as confirmation, optional reason"
// @Success 200 {object} dto.APIResponse{data=dto.DeleteAccountResponse}
// @Failure 400 {object} dto.APIResponse "Confirmation email does not match"
// @Failure 503 {object} dto.APIResponse "Deletion rolled back, retry"
// @Router /api/v1/me [delete]
func (h *ProfileHandler) DeleteAccount(c fiber.Ctx) error {
	accountID, ok := currentAccount(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.DeleteAccountRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.flow.DeleteAccount(ctx, accountID, &req, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to delete account", "DELETE_ACCOUNT_FAILED")
	}

	if token, ok := middleware.GetAccessTokenFromContext(c); ok {
		if err := h.loginFlow.Logout(ctx, token); err != nil {
			log.Printf(`{"level":"warn","event":"token_revoke_failed","account_id":%d,"error":"%v"}`, accountID, err)
		}
	}
	return h.SuccessResponse(c, fiber.StatusOK, res.Message, res)
}
