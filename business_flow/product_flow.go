package businessflow

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/repository"
	"github.com/kisaan-market/kisaan/utils"
)

const searchDateLayout = "2006-01-02"

// ProductFlow handles farmer listings and customer search
type ProductFlow interface {
	CreateProduct(ctx context.Context, actorAccountID uint, req *dto.CreateProductRequest, metadata *ClientMetadata) (*dto.ProductDTO, error)
	ListFarmerProducts(ctx context.Context, actorAccountID uint) (*dto.ProductListResponse, error)
	SearchProducts(ctx context.Context, actorAccountID uint, req *dto.ProductSearchRequest) (*dto.ProductListResponse, error)
	FarmerDetail(ctx context.Context, actorAccountID, farmerProfileID uint) (*dto.FarmerDetailResponse, error)
}

// ProductFlowImpl implements ProductFlow
type ProductFlowImpl struct {
	identityResolver
	productRepo repository.ProductRepository
	reviewRepo  repository.ReviewRepository
	clock       utils.Clock
}

// NewProductFlow creates a new product flow instance
func NewProductFlow(
	accountRepo repository.AccountRepository,
	profileRepo repository.ProfileRepository,
	farmerRepo repository.FarmerProfileRepository,
	customerRepo repository.CustomerProfileRepository,
	productRepo repository.ProductRepository,
	reviewRepo repository.ReviewRepository,
	auditRepo repository.AuditLogRepository,
	clock utils.Clock,
) ProductFlow {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &ProductFlowImpl{
		identityResolver: identityResolver{
			accountRepo:  accountRepo,
			profileRepo:  profileRepo,
			farmerRepo:   farmerRepo,
			customerRepo: customerRepo,
			auditRepo:    auditRepo,
		},
		productRepo: productRepo,
		reviewRepo:  reviewRepo,
		clock:       clock,
	}
}

// CreateProduct publishes a listing for the calling farmer
func (p *ProductFlowImpl) CreateProduct(ctx context.Context, actorAccountID uint, req *dto.CreateProductRequest, metadata *ClientMetadata) (*dto.ProductDTO, error) {
	identity, farmer, err := p.farmer(ctx, actorAccountID)
	if err != nil {
		if IsForbiddenError(err) {
			err = p.forbidden(ctx, "create_product", actorAccountID, "products", err, metadata)
		}
		return nil, NewBusinessError("PRODUCT_FORBIDDEN", "Only farmers can list products", err)
	}
	farmer.Account = identity.Account

	synonyms := make(pq.StringArray, 0, len(req.Synonyms))
	for _, s := range req.Synonyms {
		if s = strings.TrimSpace(s); s != "" {
			synonyms = append(synonyms, s)
		}
	}

	product := &models.Product{
		FarmerProfileID: farmer.ID,
		MainCategory:    strings.TrimSpace(req.MainCategory),
		SubCategory:     strings.TrimSpace(req.SubCategory),
		Quantity:        req.Quantity,
		Unit:            strings.TrimSpace(req.Unit),
		Price:           req.Price,
		Description:     strings.TrimSpace(req.Description),
		ImageURL:        req.ImageURL,
		Synonyms:        synonyms,
		DatePosted:      p.clock.Now(),
	}
	if err := p.productRepo.Save(ctx, product); err != nil {
		return nil, NewBusinessError("PRODUCT_CREATE_FAILED", "Failed to create product", err)
	}
	product.FarmerProfile = farmer

	createAuditLog(ctx, p.auditRepo, &actorAccountID, models.AuditActionProductCreated,
		fmt.Sprintf("Product %d (%s) listed", product.ID, product.SubCategory), true, nil, metadata)

	out := toProductDTO(product, nil)
	return &out, nil
}

// ListFarmerProducts returns the calling farmer's listings, newest first
func (p *ProductFlowImpl) ListFarmerProducts(ctx context.Context, actorAccountID uint) (*dto.ProductListResponse, error) {
	identity, farmer, err := p.farmer(ctx, actorAccountID)
	if err != nil {
		return nil, NewBusinessError("PRODUCT_LIST_FAILED", "Only farmers have listings", err)
	}
	farmer.Account = identity.Account

	products, err := p.productRepo.ByFilter(ctx, models.ProductFilter{FarmerProfileID: &farmer.ID}, "date_posted DESC, id DESC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("PRODUCT_LIST_FAILED", "Failed to list products", err)
	}
	summary, err := p.reviewRepo.SummaryForFarmer(ctx, farmer.ID)
	if err != nil {
		return nil, NewBusinessError("PRODUCT_LIST_FAILED", "Failed to load rating", err)
	}

	resp := &dto.ProductListResponse{Products: make([]dto.ProductDTO, 0, len(products))}
	for _, product := range products {
		product.FarmerProfile = farmer
		resp.Products = append(resp.Products, toProductDTO(product, summary))
	}
	resp.Total = len(resp.Products)
	return resp, nil
}

// FarmerDetail shows one farmer with their listings, average rating and
// distance from the caller.
func (p *ProductFlowImpl) FarmerDetail(ctx context.Context, actorAccountID, farmerProfileID uint) (*dto.FarmerDetailResponse, error) {
	identity, err := p.resolve(ctx, actorAccountID)
	if err != nil {
		return nil, NewBusinessError("FARMER_DETAIL_FAILED", "Failed to load farmer", err)
	}

	farmer, err := p.farmerRepo.ByID(ctx, farmerProfileID)
	if err != nil {
		return nil, NewBusinessError("FARMER_DETAIL_FAILED", "Failed to load farmer", err)
	}
	if farmer == nil {
		return nil, NewBusinessError("FARMER_NOT_FOUND", "Farmer not found", ErrFarmerNotFound)
	}

	products, err := p.productRepo.ByFilter(ctx, models.ProductFilter{FarmerProfileID: &farmer.ID}, "date_posted DESC, id DESC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("FARMER_DETAIL_FAILED", "Failed to list products", err)
	}
	summary, err := p.reviewRepo.SummaryForFarmer(ctx, farmer.ID)
	if err != nil {
		return nil, NewBusinessError("FARMER_DETAIL_FAILED", "Failed to load rating", err)
	}
	if summary == nil {
		summary = &models.RatingSummary{FarmerProfileID: farmer.ID}
	}

	resp := &dto.FarmerDetailResponse{
		FarmerProfileID:   farmer.ID,
		Ward:              farmer.Ward,
		Tole:              farmer.Tole,
		Address:           farmer.Address,
		ProfilePictureURL: farmer.ProfilePictureURL,
		Rating:            toRatingDTO(summary),
		Products:          make([]dto.ProductDTO, 0, len(products)),
	}
	if farmer.Account != nil {
		resp.Name = farmer.Account.DisplayName()
	}

	// every listing shares the farmer's location, so one distance serves all
	if origin, ok := originOf(identity); ok && farmer.HasCoordinates() {
		km := utils.HaversineKm(*origin.Latitude, *origin.Longitude, *farmer.Latitude, *farmer.Longitude)
		resp.DistanceKm = utils.ToPtr(utils.RoundTo(km, 3))
		resp.Distance = utils.FormatDistance(km)
	}

	for _, product := range products {
		product.FarmerProfile = farmer
		out := toProductDTO(product, summary)
		out.DistanceKm = resp.DistanceKm
		out.Distance = resp.Distance
		resp.Products = append(resp.Products, out)
	}
	return resp, nil
}

type rankedProduct struct {
	product *models.Product
	km      float64 // +Inf when either side has no coordinates
}

// SearchProducts filters listings and ranks them by distance from the caller
func (p *ProductFlowImpl) SearchProducts(ctx context.Context, actorAccountID uint, req *dto.ProductSearchRequest) (*dto.ProductListResponse, error) {
	identity, err := p.resolve(ctx, actorAccountID)
	if err != nil {
		return nil, NewBusinessError("PRODUCT_SEARCH_FAILED", "Product search failed", err)
	}

	criteria, err := p.buildSearch(req)
	if err != nil {
		return nil, NewBusinessError("PRODUCT_SEARCH_VALIDATION_FAILED", "Product search validation failed", err)
	}

	products, err := p.productRepo.Search(ctx, criteria)
	if err != nil {
		return nil, NewBusinessError("PRODUCT_SEARCH_FAILED", "Product search failed", err)
	}

	minKm, maxKm := rangeInKm(req)
	origin, hasOrigin := originOf(identity)
	ranked := make([]rankedProduct, 0, len(products))
	farmerIDs := make([]uint, 0, len(products))
	seen := make(map[uint]bool)
	for _, product := range products {
		km := math.Inf(1)
		if fp := product.FarmerProfile; hasOrigin && fp != nil && fp.HasCoordinates() {
			km = utils.HaversineKm(*origin.Latitude, *origin.Longitude, *fp.Latitude, *fp.Longitude)
		}
		if req.Distance == dto.DistanceRange && !withinRange(km, minKm, maxKm) {
			continue
		}
		ranked = append(ranked, rankedProduct{product: product, km: km})
		if !seen[product.FarmerProfileID] {
			seen[product.FarmerProfileID] = true
			farmerIDs = append(farmerIDs, product.FarmerProfileID)
		}
	}

	switch req.Distance {
	case dto.DistanceNearest, dto.DistanceRange:
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].km < ranked[j].km })
	case dto.DistanceFarthest:
		// unknown distances count as infinitely far and lead
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].km > ranked[j].km })
	}

	summaries, err := p.reviewRepo.SummariesForFarmers(ctx, farmerIDs)
	if err != nil {
		return nil, NewBusinessError("PRODUCT_SEARCH_FAILED", "Failed to load ratings", err)
	}

	resp := &dto.ProductListResponse{Products: make([]dto.ProductDTO, 0, len(ranked))}
	for _, r := range ranked {
		summary := summaries[r.product.FarmerProfileID]
		if summary == nil {
			summary = &models.RatingSummary{FarmerProfileID: r.product.FarmerProfileID}
		}
		out := toProductDTO(r.product, summary)
		if !math.IsInf(r.km, 1) {
			out.DistanceKm = utils.ToPtr(utils.RoundTo(r.km, 3))
			out.Distance = utils.FormatDistance(r.km)
		}
		resp.Products = append(resp.Products, out)
	}
	resp.Total = len(resp.Products)
	return resp, nil
}

func (p *ProductFlowImpl) buildSearch(req *dto.ProductSearchRequest) (models.ProductSearch, error) {
	criteria := models.ProductSearch{
		Query:       strings.TrimSpace(req.Query),
		MinPrice:    req.MinPrice,
		MaxPrice:    req.MaxPrice,
		MinQuantity: req.MinQuantity,
		MaxQuantity: req.MaxQuantity,
		Limit:       req.Limit,
	}

	if req.PostedAfter != "" {
		t, err := time.Parse(searchDateLayout, req.PostedAfter)
		if err != nil {
			return criteria, ErrInvalidDate
		}
		criteria.PostedAfter = &t
	}
	if req.PostedBefore != "" {
		t, err := time.Parse(searchDateLayout, req.PostedBefore)
		if err != nil {
			return criteria, ErrInvalidDate
		}
		// the whole end day is included
		end := t.Add(24*time.Hour - time.Nanosecond)
		criteria.PostedBefore = &end
	}
	if criteria.PostedAfter != nil && criteria.PostedBefore != nil && criteria.PostedAfter.After(*criteria.PostedBefore) {
		return criteria, ErrInvalidDateRange
	}

	if req.Distance == dto.DistanceRange {
		if req.MinKm == nil && req.MaxKm == nil {
			return criteria, ErrInvalidDistanceFilter
		}
		if req.MinKm != nil && req.MaxKm != nil && *req.MinKm > *req.MaxKm {
			return criteria, ErrInvalidDistanceFilter
		}
	}
	return criteria, nil
}

// rangeInKm converts the requested bounds to kilometres.
func rangeInKm(req *dto.ProductSearchRequest) (*float64, *float64) {
	if req.DistanceUnit != dto.DistanceUnitMeter {
		return req.MinKm, req.MaxKm
	}
	toKm := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		return utils.ToPtr(*v / 1000)
	}
	return toKm(req.MinKm), toKm(req.MaxKm)
}

func withinRange(km float64, minKm, maxKm *float64) bool {
	if math.IsInf(km, 1) {
		return false
	}
	if minKm != nil && km < *minKm {
		return false
	}
	if maxKm != nil && km > *maxKm {
		return false
	}
	return true
}

func originOf(identity *models.Identity) (models.Location, bool) {
	switch rp := identity.RoleProfile.(type) {
	case *models.CustomerProfile:
		return rp.Location, rp.HasCoordinates()
	case *models.FarmerProfile:
		return rp.Location, rp.HasCoordinates()
	}
	return models.Location{}, false
}

func toProductDTO(product *models.Product, summary *models.RatingSummary) dto.ProductDTO {
	out := dto.ProductDTO{
		ID:              product.ID,
		FarmerProfileID: product.FarmerProfileID,
		MainCategory:    product.MainCategory,
		SubCategory:     product.SubCategory,
		Quantity:        product.Quantity,
		Unit:            product.Unit,
		Price:           product.Price,
		Description:     product.Description,
		ImageURL:        product.ImageURL,
		Synonyms:        []string(product.Synonyms),
		DatePosted:      product.DatePosted,
		FarmerRating:    toRatingDTO(summary),
	}
	if out.Synonyms == nil {
		out.Synonyms = []string{}
	}
	if product.FarmerProfile != nil {
		out.FarmerName = product.FarmerProfile.Account.DisplayName()
	}
	return out
}
