package businessflow

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/utils"
)

func TestReviewFlow_SubmitReview(t *testing.T) {
	ctx := context.Background()

	t.Run("LaterSubmissionOverwrites", func(t *testing.T) {
		e := newTestEnv(t)
		_, farmer := e.farmer(t, "sita", "Sita", nil, nil)
		customerAcc, customer := e.customer(t, "hari", "Hari", nil, nil)

		first, err := e.review.SubmitReview(ctx, customerAcc.ID, farmer.ID, &dto.SubmitReviewRequest{Rating: 2, Comment: utils.ToPtr("  late delivery ")}, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, first.Rating)
		assert.Equal(t, "late delivery", *first.Comment)
		assert.Equal(t, "Hari Customer", first.CustomerName)
		assert.Equal(t, customer.ID, first.CustomerProfileID)

		e.clock.Advance(time.Hour)
		second, err := e.review.SubmitReview(ctx, customerAcc.ID, farmer.ID, &dto.SubmitReviewRequest{Rating: 5, Comment: utils.ToPtr("   ")}, nil)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 5, second.Rating)
		assert.Nil(t, second.Comment)
		assert.Equal(t, testStart, second.CreatedAt)
		assert.Equal(t, testStart.Add(time.Hour), second.UpdatedAt)

		n, err := e.reviews.Count(ctx, models.ReviewFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, 2, e.auditCount(models.AuditActionReviewSubmitted))
	})

	t.Run("RatingBounds", func(t *testing.T) {
		e := newTestEnv(t)
		_, farmer := e.farmer(t, "sita", "Sita", nil, nil)
		customerAcc, _ := e.customer(t, "hari", "Hari", nil, nil)

		for _, rating := range []int{0, 6, -1} {
			_, err := e.review.SubmitReview(ctx, customerAcc.ID, farmer.ID, &dto.SubmitReviewRequest{Rating: rating}, nil)
			assert.ErrorIs(t, err, ErrRatingOutOfRange)
		}
		for _, rating := range []int{models.MinRating, models.MaxRating} {
			_, err := e.review.SubmitReview(ctx, customerAcc.ID, farmer.ID, &dto.SubmitReviewRequest{Rating: rating}, nil)
			assert.NoError(t, err)
		}
	})

	t.Run("OnlyCustomersReview", func(t *testing.T) {
		e := newTestEnv(t)
		farmerAcc, farmer := e.farmer(t, "sita", "Sita", nil, nil)

		_, err := e.review.SubmitReview(ctx, farmerAcc.ID, farmer.ID, &dto.SubmitReviewRequest{Rating: 5}, nil)
		assert.ErrorIs(t, err, ErrRoleNotAllowed)
		assert.Equal(t, 1, e.auditCount(models.AuditActionForbiddenAttempt))
	})

	t.Run("UnknownFarmer", func(t *testing.T) {
		e := newTestEnv(t)
		customerAcc, _ := e.customer(t, "hari", "Hari", nil, nil)
		_, err := e.review.SubmitReview(ctx, customerAcc.ID, 777, &dto.SubmitReviewRequest{Rating: 3}, nil)
		assert.ErrorIs(t, err, ErrFarmerNotFound)
	})
}

func TestReviewFlow_Ratings(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	_, farmer := e.farmer(t, "sita", "Sita", nil, nil)
	_, unrated := e.farmer(t, "gopal", "Gopal", nil, nil)

	for i, rating := range []int{5, 4, 4} {
		acc, _ := e.customer(t, "buyer"+string(rune('a'+i)), "Buyer", nil, nil)
		e.clock.Advance(time.Minute)
		_, err := e.review.SubmitReview(ctx, acc.ID, farmer.ID, &dto.SubmitReviewRequest{Rating: rating}, nil)
		require.NoError(t, err)
	}

	t.Run("AverageRoundedToOneDecimal", func(t *testing.T) {
		rating, err := e.review.FarmerRating(ctx, farmer.ID)
		require.NoError(t, err)
		assert.Equal(t, 4.3, rating.Average)
		assert.Equal(t, int64(3), rating.Count)
	})

	t.Run("NoReviewsIsZero", func(t *testing.T) {
		rating, err := e.review.FarmerRating(ctx, unrated.ID)
		require.NoError(t, err)
		assert.Equal(t, 0.0, rating.Average)
		assert.Equal(t, int64(0), rating.Count)
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		list, err := e.review.ListFarmerReviews(ctx, farmer.ID)
		require.NoError(t, err)
		require.Len(t, list.Reviews, 3)
		assert.Equal(t, 4, list.Reviews[0].Rating)
		assert.Equal(t, 5, list.Reviews[2].Rating)
		assert.True(t, list.Reviews[0].UpdatedAt.After(list.Reviews[2].UpdatedAt))
		assert.Equal(t, 4.3, list.Rating.Average)
	})

	t.Run("UnknownFarmer", func(t *testing.T) {
		_, err := e.review.FarmerRating(ctx, 9999)
		assert.ErrorIs(t, err, ErrFarmerNotFound)
		_, err = e.review.ListFarmerReviews(ctx, 9999)
		assert.ErrorIs(t, err, ErrFarmerNotFound)
	})
}

func TestReviewFlow_ExportReviews(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	adminAcc := e.admin(t, "root")
	_, sita := e.farmer(t, "sita", "Sita", nil, nil)
	_, gopal := e.farmer(t, "gopal", "Gopal", nil, nil)
	hariAcc, _ := e.customer(t, "hari", "Hari", nil, nil)
	mohanAcc, _ := e.customer(t, "mohan", "Mohan", nil, nil)

	submit := func(accountID, farmerID uint, rating int, comment string) {
		_, err := e.review.SubmitReview(ctx, accountID, farmerID, &dto.SubmitReviewRequest{Rating: rating, Comment: &comment}, nil)
		require.NoError(t, err)
	}
	submit(hariAcc.ID, sita.ID, 5, "fresh")
	submit(mohanAcc.ID, sita.ID, 4, "good")
	submit(hariAcc.ID, gopal.ID, 2, "stale")

	t.Run("WorkbookHasSummaryAndFarmerSheets", func(t *testing.T) {
		filename, data, err := e.review.ExportReviews(ctx, adminAcc.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, "farmer_reviews_20250301.xlsx", filename)

		xl, err := excelize.OpenReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer func() { _ = xl.Close() }()

		assert.Equal(t, []string{"Summary", "Sita Farmer", "Gopal Farmer"}, xl.GetSheetList())

		summary, err := xl.GetRows("Summary")
		require.NoError(t, err)
		require.Len(t, summary, 3)
		assert.Equal(t, []string{"farmer_profile_id", "farmer_name", "average_rating", "review_count"}, summary[0])
		assert.Equal(t, "Sita Farmer", summary[1][1])
		assert.Equal(t, "4.5", summary[1][2])
		assert.Equal(t, "2", summary[1][3])

		sitaRows, err := xl.GetRows("Sita Farmer")
		require.NoError(t, err)
		require.Len(t, sitaRows, 3)
		assert.Equal(t, "customer_name", sitaRows[0][2])

		gopalRows, err := xl.GetRows("Gopal Farmer")
		require.NoError(t, err)
		require.Len(t, gopalRows, 2)
		assert.Equal(t, "Hari Customer", gopalRows[1][2])
		assert.Equal(t, "stale", gopalRows[1][4])

		assert.Equal(t, 1, e.auditCount(models.AuditActionReviewsExported))
	})

	t.Run("AdminsOnly", func(t *testing.T) {
		_, _, err := e.review.ExportReviews(ctx, hariAcc.ID, nil)
		assert.ErrorIs(t, err, ErrRoleNotAllowed)
	})
}

func TestSheetNames(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeSheetName("a/b?c"))
	assert.Equal(t, "Sheet", sanitizeSheetName("   "))
	assert.Len(t, sanitizeSheetName("a very long farmer name that keeps going"), 31)

	used := map[string]bool{"Summary": true}
	assert.Equal(t, "Ram", uniqueSheetName("Ram", used))
	assert.Equal(t, "Ram_2", uniqueSheetName("Ram", used))
	assert.Equal(t, "Ram_3", uniqueSheetName("Ram", used))

	long := "abcdefghijklmnopqrstuvwxyz01234"
	assert.Equal(t, long, uniqueSheetName(long, used))
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyz012_2", uniqueSheetName(long, used))
}
