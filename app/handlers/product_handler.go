package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/kisaan-market/kisaan/app/dto"
	businessflow "github.com/kisaan-market/kisaan/business_flow"
)

type ProductHandlerInterface interface {
	Create(c fiber.Ctx) error
	Search(c fiber.Ctx) error
	Mine(c fiber.Ctx) error
	FarmerDetail(c fiber.Ctx) error
}

type ProductHandler struct {
	baseHandler
	flow      businessflow.ProductFlow
	validator *validator.Validate
}

func NewProductHandler(flow businessflow.ProductFlow) *ProductHandler {
	return &ProductHandler{flow: flow, validator: newValidator()}
}

// Create lists a new product for the calling farmer
// @Summary Create product
// @Tags Products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateProductRequest true "Product"
// @Success 201 {object} dto.APIResponse{data=dto.ProductDTO}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 403 {object} dto.APIResponse "Only farmers may list products"
// @Router /api/v1/products [post]
func (h *ProductHandler) Create(c fiber.Ctx) error {
	accountID, ok := currentAccount(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.CreateProductRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	product, err := h.flow.CreateProduct(ctx, accountID, &req, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to create product", "CREATE_PRODUCT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Product created", product)
}

// Search filters products and orders them by distance from the caller
// @Summary Search products
// @Tags Products
// @Produce json
// @Security BearerAuth
// @Param q query string false "Sub-category or synonym"
// @Param min_price query number false "Minimum price"
// @Param max_price query number false "Maximum price"
// @Param min_quantity query number false "Minimum quantity"
// @Param max_quantity query number false "Maximum quantity"
// @Param posted_after query string false "YYYY-MM-DD"
// @Param posted_before query string false "YYYY-MM-DD"
// @Param distance query string false "nearest, farthest or range"
// @Param min_km query number false "Lower distance bound for range"
// @Param max_km query number false "Upper distance bound for range"
// @Param distance_unit query string false "km (default) or meter, for min_km and max_km"
// @Param limit query int false "Maximum results"
// @Success 200 {object} dto.APIResponse{data=dto.ProductListResponse}
// @Failure 400 {object} dto.APIResponse "Invalid filters"
// @Router /api/v1/products [get]
func (h *ProductHandler) Search(c fiber.Ctx) error {
	accountID, ok := currentAccount(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.ProductSearchRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.flow.SearchProducts(ctx, accountID, &req)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Product search failed", "SEARCH_PRODUCTS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Products retrieved successfully", res)
}

// Mine lists the calling farmer's own products
// @Summary My products
// @Tags Products
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.ProductListResponse}
// @Failure 403 {object} dto.APIResponse "Only farmers have products"
// @Router /api/v1/products/mine [get]
func (h *ProductHandler) Mine(c fiber.Ctx) error {
	accountID, ok := currentAccount(c)
	if !ok {
		return unauthorized(c)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.flow.ListFarmerProducts(ctx, accountID)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to list products", "LIST_PRODUCTS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Products retrieved successfully", res)
}

// FarmerDetail shows a farmer's profile, listings, rating and distance
// @Summary Farmer detail
// @Tags Products
// @Produce json
// @Security BearerAuth
// @Param id path int true "Farmer profile ID"
// @Success 200 {object} dto.APIResponse{data=dto.FarmerDetailResponse}
// @Failure 404 {object} dto.APIResponse "Farmer not found"
// @Router /api/v1/farmers/{id} [get]
func (h *ProductHandler) FarmerDetail(c fiber.Ctx) error {
	accountID, ok := currentAccount(c)
	if !ok {
		return unauthorized(c)
	}
	farmerID, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_FARMER_ID", nil)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.flow.FarmerDetail(ctx, accountID, farmerID)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to load farmer", "GET_FARMER_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Farmer retrieved successfully", res)
}
