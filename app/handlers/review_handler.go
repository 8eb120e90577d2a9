package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/kisaan-market/kisaan/app/dto"
	businessflow "github.com/kisaan-market/kisaan/business_flow"
)

type ReviewHandlerInterface interface {
	Submit(c fiber.Ctx) error
	List(c fiber.Ctx) error
	Rating(c fiber.Ctx) error
}

type ReviewHandler struct {
	baseHandler
	flow      businessflow.ReviewFlow
	validator *validator.Validate
}

func NewReviewHandler(flow businessflow.ReviewFlow) *ReviewHandler {
	return &ReviewHandler{flow: flow, validator: newValidator()}
}

// Submit records the caller's review of a farmer, replacing any earlier one
// @Summary Review a farmer
// @Tags Reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Farmer profile ID"
// @Param request body dto.SubmitReviewRequest true "Rating and optional comment"
// @Success 200 {object} dto.APIResponse{data=dto.ReviewDTO}
// @Failure 400 {object} dto.APIResponse "Rating out of range"
// @Failure 403 {object} dto.APIResponse "Only customers may review"
// @Failure 404 {object} dto.APIResponse "Farmer not found"
// @Router /api/v1/farmers/{id}/reviews [post]
func (h *ReviewHandler) Submit(c fiber.Ctx) error {
	accountID, ok := currentAccount(c)
	if !ok {
		return unauthorized(c)
	}
	farmerID, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_FARMER_ID", nil)
	}

	var req dto.SubmitReviewRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	review, err := h.flow.SubmitReview(ctx, accountID, farmerID, &req, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to submit review", "SUBMIT_REVIEW_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Review saved", review)
}

// List returns a farmer's reviews, newest first, with the rating summary
// @Summary List farmer reviews
// @Tags Reviews
// @Produce json
// @Security BearerAuth
// @Param id path int true "Farmer profile ID"
// @Success 200 {object} dto.APIResponse{data=dto.ReviewListResponse}
// @Failure 404 {object} dto.APIResponse "Farmer not found"
// @Router /api/v1/farmers/{id}/reviews [get]
func (h *ReviewHandler) List(c fiber.Ctx) error {
	farmerID, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_FARMER_ID", nil)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.flow.ListFarmerReviews(ctx, farmerID)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to list reviews", "LIST_REVIEWS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Reviews retrieved successfully", res)
}

// Rating returns a farmer's average rating
// @Summary Farmer rating
// @Tags Reviews
// @Produce json
// @Security BearerAuth
// @Param id path int true "Farmer profile ID"
// @Success 200 {object} dto.APIResponse{data=dto.RatingDTO}
// @Failure 404 {object} dto.APIResponse "Farmer not found"
// @Router /api/v1/farmers/{id}/rating [get]
func (h *ReviewHandler) Rating(c fiber.Ctx) error {
	farmerID, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_FARMER_ID", nil)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	rating, err := h.flow.FarmerRating(ctx, farmerID)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to load rating", "GET_RATING_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rating retrieved successfully", rating)
}
