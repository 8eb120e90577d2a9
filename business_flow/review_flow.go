package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/repository"
	"github.com/kisaan-market/kisaan/utils"
)

// ReviewFlow handles customer ratings of farmers
type ReviewFlow interface {
	SubmitReview(ctx context.Context, actorAccountID, farmerProfileID uint, req *dto.SubmitReviewRequest, metadata *ClientMetadata) (*dto.ReviewDTO, error)
	ListFarmerReviews(ctx context.Context, farmerProfileID uint) (*dto.ReviewListResponse, error)
	FarmerRating(ctx context.Context, farmerProfileID uint) (*dto.RatingDTO, error)
	ExportReviews(ctx context.Context, adminAccountID uint, metadata *ClientMetadata) (string, []byte, error)
}

// ReviewFlowImpl implements ReviewFlow
type ReviewFlowImpl struct {
	identityResolver
	reviewRepo repository.ReviewRepository
	clock      utils.Clock
}

// NewReviewFlow creates a new review flow instance
func NewReviewFlow(
	accountRepo repository.AccountRepository,
	profileRepo repository.ProfileRepository,
	farmerRepo repository.FarmerProfileRepository,
	customerRepo repository.CustomerProfileRepository,
	reviewRepo repository.ReviewRepository,
	auditRepo repository.AuditLogRepository,
	clock utils.Clock,
) ReviewFlow {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &ReviewFlowImpl{
		identityResolver: identityResolver{
			accountRepo:  accountRepo,
			profileRepo:  profileRepo,
			farmerRepo:   farmerRepo,
			customerRepo: customerRepo,
			auditRepo:    auditRepo,
		},
		reviewRepo: reviewRepo,
		clock:      clock,
	}
}

// SubmitReview creates the customer's review of a farmer or overwrites the earlier one
func (r *ReviewFlowImpl) SubmitReview(ctx context.Context, actorAccountID, farmerProfileID uint, req *dto.SubmitReviewRequest, metadata *ClientMetadata) (*dto.ReviewDTO, error) {
	if req.Rating < models.MinRating || req.Rating > models.MaxRating {
		return nil, NewBusinessError("REVIEW_VALIDATION_FAILED", "Review validation failed", ErrRatingOutOfRange)
	}

	identity, customer, err := r.customer(ctx, actorAccountID)
	if err != nil {
		if IsForbiddenError(err) {
			err = r.forbidden(ctx, "submit_review", actorAccountID, fmt.Sprintf("farmer %d", farmerProfileID), err, metadata)
		}
		return nil, NewBusinessError("REVIEW_FORBIDDEN", "Only customers can review farmers", err)
	}

	farmer, err := r.farmerRepo.ByID(ctx, farmerProfileID)
	if err != nil {
		return nil, NewBusinessError("REVIEW_SUBMIT_FAILED", "Failed to submit review", err)
	}
	if farmer == nil {
		return nil, NewBusinessError("FARMER_NOT_FOUND", "Farmer not found", ErrFarmerNotFound)
	}

	var comment *string
	if req.Comment != nil {
		if c := strings.TrimSpace(*req.Comment); c != "" {
			comment = &c
		}
	}

	now := r.clock.Now()
	review := &models.Review{
		FarmerProfileID:   farmer.ID,
		CustomerProfileID: customer.ID,
		Rating:            req.Rating,
		Comment:           comment,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := r.reviewRepo.Upsert(ctx, review); err != nil {
		return nil, NewBusinessError("REVIEW_SUBMIT_FAILED", "Failed to submit review", err)
	}

	stored, err := r.reviewRepo.ByPair(ctx, farmer.ID, customer.ID)
	if err != nil {
		return nil, NewBusinessError("REVIEW_SUBMIT_FAILED", "Failed to submit review", err)
	}
	if stored == nil {
		stored = review
	}
	stored.CustomerProfile = customer
	customer.Account = identity.Account

	reviewsSubmitted.Inc()
	createAuditLog(ctx, r.auditRepo, &actorAccountID, models.AuditActionReviewSubmitted,
		fmt.Sprintf("Rated farmer %d with %d", farmer.ID, req.Rating), true, nil, metadata)

	out := toReviewDTO(stored)
	return &out, nil
}

// ListFarmerReviews returns the farmer's reviews newest first with the rating summary
func (r *ReviewFlowImpl) ListFarmerReviews(ctx context.Context, farmerProfileID uint) (*dto.ReviewListResponse, error) {
	if err := r.requireFarmer(ctx, farmerProfileID); err != nil {
		return nil, err
	}

	reviews, err := r.reviewRepo.ByFilter(ctx, models.ReviewFilter{FarmerProfileID: &farmerProfileID}, "updated_at DESC, id DESC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("REVIEW_LIST_FAILED", "Failed to list reviews", err)
	}
	summary, err := r.reviewRepo.SummaryForFarmer(ctx, farmerProfileID)
	if err != nil {
		return nil, NewBusinessError("REVIEW_LIST_FAILED", "Failed to list reviews", err)
	}

	resp := &dto.ReviewListResponse{Reviews: make([]dto.ReviewDTO, 0, len(reviews)), Rating: *toRatingDTO(summary)}
	for _, review := range reviews {
		resp.Reviews = append(resp.Reviews, toReviewDTO(review))
	}
	return resp, nil
}

// FarmerRating returns the average rating rounded to one decimal
func (r *ReviewFlowImpl) FarmerRating(ctx context.Context, farmerProfileID uint) (*dto.RatingDTO, error) {
	if err := r.requireFarmer(ctx, farmerProfileID); err != nil {
		return nil, err
	}
	summary, err := r.reviewRepo.SummaryForFarmer(ctx, farmerProfileID)
	if err != nil {
		return nil, NewBusinessError("RATING_LOOKUP_FAILED", "Failed to load rating", err)
	}
	return toRatingDTO(summary), nil
}

func (r *ReviewFlowImpl) requireFarmer(ctx context.Context, farmerProfileID uint) error {
	farmer, err := r.farmerRepo.ByID(ctx, farmerProfileID)
	if err != nil {
		return NewBusinessError("FARMER_LOOKUP_FAILED", "Failed to load farmer", err)
	}
	if farmer == nil {
		return NewBusinessError("FARMER_NOT_FOUND", "Farmer not found", ErrFarmerNotFound)
	}
	return nil
}

// ExportReviews builds a workbook with a summary sheet and one sheet per farmer
func (r *ReviewFlowImpl) ExportReviews(ctx context.Context, adminAccountID uint, metadata *ClientMetadata) (string, []byte, error) {
	if _, err := r.admin(ctx, adminAccountID); err != nil {
		if IsForbiddenError(err) {
			err = r.forbidden(ctx, "export_reviews", adminAccountID, "reviews", err, metadata)
		}
		return "", nil, NewBusinessError("EXPORT_FORBIDDEN", "Only administrators can export reviews", err)
	}

	reviews, err := r.reviewRepo.ByFilter(ctx, models.ReviewFilter{}, "farmer_profile_id ASC, updated_at DESC, id DESC", 0, 0)
	if err != nil {
		return "", nil, NewBusinessError("FETCH_REVIEWS_FAILED", "Failed to fetch reviews", err)
	}

	byFarmer := make(map[uint][]*models.Review)
	order := make([]uint, 0)
	for _, review := range reviews {
		if _, ok := byFarmer[review.FarmerProfileID]; !ok {
			order = append(order, review.FarmerProfileID)
		}
		byFarmer[review.FarmerProfileID] = append(byFarmer[review.FarmerProfileID], review)
	}

	farmers, err := r.farmerRepo.ByIDs(ctx, order)
	if err != nil {
		return "", nil, NewBusinessError("FETCH_REVIEWS_FAILED", "Failed to fetch farmers", err)
	}
	summaries, err := r.reviewRepo.SummariesForFarmers(ctx, order)
	if err != nil {
		return "", nil, NewBusinessError("FETCH_REVIEWS_FAILED", "Failed to fetch ratings", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	const summarySheet = "Summary"
	xl.SetSheetName(xl.GetSheetName(0), summarySheet)
	summaryHeader := []string{"farmer_profile_id", "farmer_name", "average_rating", "review_count"}
	_ = xl.SetSheetRow(summarySheet, "A1", &summaryHeader)

	usedNames := map[string]bool{summarySheet: true}
	for i, farmerID := range order {
		name := fmt.Sprintf("farmer_%d", farmerID)
		if fp, ok := farmers[farmerID]; ok && fp.Account != nil {
			name = fp.Account.DisplayName()
		}

		avg, count := 0.0, int64(0)
		if s, ok := summaries[farmerID]; ok {
			avg, count = utils.RoundTo(s.Average, 1), s.Count
		}
		summaryRow := []any{farmerID, name, avg, count}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = xl.SetSheetRow(summarySheet, cellRef, &summaryRow)

		sheet := uniqueSheetName(sanitizeSheetName(name), usedNames)
		if _, err := xl.NewSheet(sheet); err != nil {
			return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
		}
		header := []string{"id", "customer_profile_id", "customer_name", "rating", "comment", "created_at", "updated_at"}
		_ = xl.SetSheetRow(sheet, "A1", &header)

		for ri, review := range byFarmer[farmerID] {
			out := toReviewDTO(review)
			comment := ""
			if review.Comment != nil {
				comment = *review.Comment
			}
			record := []string{
				strconv.FormatUint(uint64(review.ID), 10),
				strconv.FormatUint(uint64(review.CustomerProfileID), 10),
				out.CustomerName,
				strconv.Itoa(review.Rating),
				comment,
				review.CreatedAt.UTC().Format(time.RFC3339),
				review.UpdatedAt.UTC().Format(time.RFC3339),
			}
			cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
			_ = xl.SetSheetRow(sheet, cellRef, &record)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	createAuditLog(ctx, r.auditRepo, &adminAccountID, models.AuditActionReviewsExported,
		fmt.Sprintf("Exported %d reviews for %d farmers", len(reviews), len(order)), true, nil, metadata)

	filename := fmt.Sprintf("farmer_reviews_%s.xlsx", r.clock.Now().UTC().Format("20060102"))
	return filename, buf.Bytes(), nil
}

func sanitizeSheetName(name string) string {
	// Excel sheet names cannot contain: : \\ / ? * [ ] and must be <= 31 chars
	replacer := strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_")
	return truncateSheetName(strings.TrimSpace(replacer.Replace(name)))
}

func truncateSheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	if name == "" {
		return "Sheet"
	}
	return name
}

func uniqueSheetName(base string, used map[string]bool) string {
	name := base
	for idx := 2; used[name]; idx++ {
		suffix := fmt.Sprintf("_%d", idx)
		if len(base)+len(suffix) > 31 {
			name = base[:31-len(suffix)] + suffix
		} else {
			name = base + suffix
		}
	}
	used[name] = true
	return name
}

func toReviewDTO(review *models.Review) dto.ReviewDTO {
	out := dto.ReviewDTO{
		ID:                review.ID,
		FarmerProfileID:   review.FarmerProfileID,
		CustomerProfileID: review.CustomerProfileID,
		Rating:            review.Rating,
		Comment:           review.Comment,
		CreatedAt:         review.CreatedAt,
		UpdatedAt:         review.UpdatedAt,
	}
	if review.CustomerProfile != nil {
		out.CustomerName = review.CustomerProfile.Account.DisplayName()
	}
	return out
}
