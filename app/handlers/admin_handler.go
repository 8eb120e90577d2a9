package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v3"

	businessflow "github.com/kisaan-market/kisaan/business_flow"
)

type AdminHandlerInterface interface {
	Block(c fiber.Ctx) error
	Unblock(c fiber.Ctx) error
	ExportReviews(c fiber.Ctx) error
}

// AdminHandler serves moderation and reporting endpoints
type AdminHandler struct {
	baseHandler
	profileFlow businessflow.ProfileFlow
	reviewFlow  businessflow.ReviewFlow
}

func NewAdminHandler(profileFlow businessflow.ProfileFlow, reviewFlow businessflow.ReviewFlow) *AdminHandler {
	return &AdminHandler{profileFlow: profileFlow, reviewFlow: reviewFlow}
}

// Block marks an account as blocked
// @Summary Block account
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "Account ID"
// @Success 200 {object} dto.APIResponse{data=dto.AccountStatusResponse}
// @Failure 403 {object} dto.APIResponse "Admins only, or target is an admin"
// @Failure 404 {object} dto.APIResponse "Account not found"
// @Router /api/v1/admin/accounts/{id}/block [post]
func (h *AdminHandler) Block(c fiber.Ctx) error {
	return h.setBlocked(c, true)
}

// Unblock clears an account's blocked flag
// @Summary Unblock account
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "Account ID"
// @Success 200 {object} dto.APIResponse{data=dto.AccountStatusResponse}
// @Failure 403 {object} dto.APIResponse "Admins only"
// @Failure 404 {object} dto.APIResponse "Account not found"
// @Router /api/v1/admin/accounts/{id}/unblock [post]
func (h *AdminHandler) Unblock(c fiber.Ctx) error {
	return h.setBlocked(c, false)
}

func (h *AdminHandler) setBlocked(c fiber.Ctx, blocked bool) error {
	adminID, ok := currentAccount(c)
	if !ok {
		return unauthorized(c)
	}
	targetID, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_ACCOUNT_ID", nil)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.profileFlow.SetBlocked(ctx, adminID, targetID, blocked, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to update account status", "SET_BLOCKED_FAILED")
	}

	message := "Account unblocked"
	if blocked {
		message = "Account blocked"
	}
	return h.SuccessResponse(c, fiber.StatusOK, message, res)
}

// ExportReviews downloads every review as an Excel workbook
// @Summary Export reviews
// @Description One summary sheet plus one sheet per reviewed farmer
// @Tags Admin
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Success 200 {file} file "farmer_reviews_YYYYMMDD.xlsx"
// @Failure 403 {object} dto.APIResponse "Admins only"
// @Router /api/v1/admin/reviews/export [get]
func (h *AdminHandler) ExportReviews(c fiber.Ctx) error {
	adminID, ok := currentAccount(c)
	if !ok {
		return unauthorized(c)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	filename, data, err := h.reviewFlow.ExportReviews(ctx, adminID, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to export reviews", "EXPORT_REVIEWS_FAILED")
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(data)
}
