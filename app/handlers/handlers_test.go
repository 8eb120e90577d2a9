package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/app/middleware"
	"github.com/kisaan-market/kisaan/app/realtime"
	"github.com/kisaan-market/kisaan/app/services"
	businessflow "github.com/kisaan-market/kisaan/business_flow"
	"github.com/kisaan-market/kisaan/models"
)

// Stubs embed the flow interface so only the exercised methods need bodies.

type stubSignupFlow struct {
	businessflow.SignupFlow
	initiate func(req *dto.SignupRequest) (*dto.SignupResponse, error)
	resend   func(req *dto.ResendOTPRequest) (*dto.ResendOTPResponse, error)
	verify   func(req *dto.VerifyOTPRequest) (*dto.VerifyOTPResponse, error)
}

func (s *stubSignupFlow) InitiateSignup(_ context.Context, req *dto.SignupRequest, _ *businessflow.ClientMetadata) (*dto.SignupResponse, error) {
	return s.initiate(req)
}

func (s *stubSignupFlow) ResendOTP(_ context.Context, req *dto.ResendOTPRequest, _ *businessflow.ClientMetadata) (*dto.ResendOTPResponse, error) {
	return s.resend(req)
}

func (s *stubSignupFlow) VerifyOTP(_ context.Context, req *dto.VerifyOTPRequest, _ *businessflow.ClientMetadata) (*dto.VerifyOTPResponse, error) {
	return s.verify(req)
}

type stubChatFlow struct {
	businessflow.ChatFlow
	post func(roomID, accountID uint, req *dto.PostMessageRequest) (*dto.MessageDTO, error)
}

func (s *stubChatFlow) AuthorizeSubscription(context.Context, uint, uint, *businessflow.ClientMetadata) error {
	return nil
}

func (s *stubChatFlow) PostMessage(_ context.Context, roomID, accountID uint, req *dto.PostMessageRequest, _ *businessflow.ClientMetadata) (*dto.MessageDTO, error) {
	return s.post(roomID, accountID, req)
}

type stubProductFlow struct {
	businessflow.ProductFlow
	lastSearch *dto.ProductSearchRequest
}

func (s *stubProductFlow) FarmerDetail(_ context.Context, accountID, farmerProfileID uint) (*dto.FarmerDetailResponse, error) {
	if farmerProfileID != 4 {
		return nil, businessflow.NewBusinessError("FARMER_NOT_FOUND", "Farmer not found", businessflow.ErrFarmerNotFound)
	}
	return &dto.FarmerDetailResponse{FarmerProfileID: 4, Name: "Sita Farmer", Distance: "740 m", Products: []dto.ProductDTO{}}, nil
}

func (s *stubProductFlow) SearchProducts(_ context.Context, _ uint, req *dto.ProductSearchRequest) (*dto.ProductListResponse, error) {
	s.lastSearch = req
	return &dto.ProductListResponse{Products: []dto.ProductDTO{}}, nil
}

type stubReviewFlow struct {
	businessflow.ReviewFlow
}

func (stubReviewFlow) ExportReviews(_ context.Context, adminAccountID uint, _ *businessflow.ClientMetadata) (string, []byte, error) {
	if adminAccountID != 1 {
		return "", nil, businessflow.NewBusinessError("EXPORT_FORBIDDEN", "Only admins can export reviews", businessflow.ErrRoleNotAllowed)
	}
	return "farmer_reviews_20250301.xlsx", []byte("xlsx-bytes"), nil
}

// asAccount stands in for Authenticate.
func asAccount(id uint, role models.Role) fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Locals(middleware.LocalAccountID, id)
		c.Locals(middleware.LocalRole, role)
		return c.Next()
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, dto.APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	var envelope dto.APIResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &envelope))
	}
	return resp, envelope
}

func errorCode(t *testing.T, envelope dto.APIResponse) string {
	t.Helper()
	detail, ok := envelope.Error.(map[string]any)
	require.True(t, ok, "error detail missing: %#v", envelope.Error)
	code, _ := detail["code"].(string)
	return code
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"Validation", businessflow.NewBusinessError("X", "x", businessflow.ErrEmptyMessage), fiber.StatusBadRequest},
		{"Forbidden", businessflow.NewBusinessError("X", "x", businessflow.ErrPostingClosed), fiber.StatusForbidden},
		{"Blocked", businessflow.ErrAccountBlocked, fiber.StatusForbidden},
		{"Conflict", businessflow.ErrPhoneAlreadyExists, fiber.StatusConflict},
		{"NotFound", businessflow.ErrChatRoomNotFound, fiber.StatusNotFound},
		{"Expired", businessflow.ErrOTPExpired, fiber.StatusGone},
		{"Retryable", businessflow.ErrAccountCreationFailed, fiber.StatusServiceUnavailable},
		{"BadCredentials", businessflow.ErrIncorrectPassword, fiber.StatusUnauthorized},
		{"RevokedToken", businessflow.NewBusinessError("X", "x", services.ErrTokenRevoked), fiber.StatusUnauthorized},
		{"Unknown", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusForError(tc.err))
		})
	}
}

func TestAuthHandler_Signup(t *testing.T) {
	flow := &stubSignupFlow{}
	h := NewAuthHandler(flow, nil)
	app := fiber.New()
	app.Post("/signup", h.Signup)

	valid := `{"username":"ram","email":"ram@gmail.com","first_name":"Ram","last_name":"Thapa",
		"phone_number":"9800000001","ward":"Ward 3","role":"customer","password":"Secret123!","confirm_password":"Secret123!"}`

	t.Run("ValidationUsesJSONFieldNames", func(t *testing.T) {
		body := strings.Replace(valid, `"9800000001"`, `"98-0000"`, 1)
		body = strings.Replace(body, `"Ward 3"`, `"Ward 99"`, 1)
		resp, envelope := doJSON(t, app, http.MethodPost, "/signup", body)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, envelope))

		raw, _ := json.Marshal(envelope.Error)
		assert.Contains(t, string(raw), `"field":"phone_number"`)
		assert.Contains(t, string(raw), `"field":"ward"`)
	})

	t.Run("Success", func(t *testing.T) {
		flow.initiate = func(req *dto.SignupRequest) (*dto.SignupResponse, error) {
			assert.Equal(t, "ram@gmail.com", req.Email)
			return &dto.SignupResponse{Message: "Code sent", SignupToken: "tok", OTPTarget: "r**@gmail.com", CodeExpiresIn: 180}, nil
		}
		resp, envelope := doJSON(t, app, http.MethodPost, "/signup", valid)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.True(t, envelope.Success)
		data := envelope.Data.(map[string]any)
		assert.Equal(t, "tok", data["signup_token"])
	})

	t.Run("ConflictKeepsBusinessCode", func(t *testing.T) {
		flow.initiate = func(*dto.SignupRequest) (*dto.SignupResponse, error) {
			return nil, businessflow.NewBusinessError("PHONE_EXISTS", "Phone number already registered", businessflow.ErrPhoneAlreadyExists)
		}
		resp, envelope := doJSON(t, app, http.MethodPost, "/signup", valid)
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
		assert.Equal(t, "PHONE_EXISTS", errorCode(t, envelope))
		assert.Equal(t, "Phone number already registered", envelope.Message)

		details := envelope.Error.(map[string]any)["details"].([]any)
		require.Len(t, details, 1)
		assert.Equal(t, "phone_number", details[0].(map[string]any)["field"])
	})

	t.Run("MalformedBody", func(t *testing.T) {
		resp, envelope := doJSON(t, app, http.MethodPost, "/signup", `{"username":`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_REQUEST", errorCode(t, envelope))
	})
}

func TestAuthHandler_ResendAndVerify(t *testing.T) {
	flow := &stubSignupFlow{}
	h := NewAuthHandler(flow, nil)
	app := fiber.New()
	app.Post("/resend", h.ResendOTP)
	app.Post("/verify", h.VerifyOTP)

	t.Run("MustWaitSetsRetryAfter", func(t *testing.T) {
		flow.resend = func(*dto.ResendOTPRequest) (*dto.ResendOTPResponse, error) {
			return &dto.ResendOTPResponse{Status: dto.ResendStatusMustWait, SecondsRemaining: 120}, nil
		}
		resp, envelope := doJSON(t, app, http.MethodPost, "/resend", `{"signup_token":"tok"}`)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "120", resp.Header.Get("Retry-After"))
		assert.Equal(t, dto.ResendStatusMustWait, envelope.Data.(map[string]any)["status"])
	})

	t.Run("CreatedIs201", func(t *testing.T) {
		flow.verify = func(*dto.VerifyOTPRequest) (*dto.VerifyOTPResponse, error) {
			return &dto.VerifyOTPResponse{Status: dto.VerifyStatusAccountCreated}, nil
		}
		resp, _ := doJSON(t, app, http.MethodPost, "/verify", `{"signup_token":"tok","otp_code":"123456"}`)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	})

	t.Run("AlreadyRegisteredIs200", func(t *testing.T) {
		flow.verify = func(*dto.VerifyOTPRequest) (*dto.VerifyOTPResponse, error) {
			return &dto.VerifyOTPResponse{Status: dto.VerifyStatusAlreadyRegistered}, nil
		}
		resp, _ := doJSON(t, app, http.MethodPost, "/verify", `{"signup_token":"tok","otp_code":"123456"}`)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("ExpiredIs410", func(t *testing.T) {
		flow.verify = func(*dto.VerifyOTPRequest) (*dto.VerifyOTPResponse, error) {
			return nil, businessflow.NewBusinessError("OTP_EXPIRED", "Code expired", businessflow.ErrOTPExpired)
		}
		resp, envelope := doJSON(t, app, http.MethodPost, "/verify", `{"signup_token":"tok","otp_code":"123456"}`)
		assert.Equal(t, fiber.StatusGone, resp.StatusCode)
		assert.Equal(t, "OTP_EXPIRED", errorCode(t, envelope))
	})

	t.Run("CodeMustBeSixCharacters", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/verify", `{"signup_token":"tok","otp_code":"123"}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestChatHandler_PostMessage(t *testing.T) {
	flow := &stubChatFlow{}
	h := NewChatHandler(flow, nil, 0)

	app := fiber.New()
	app.Post("/anon/chats/:id/messages", h.PostMessage)
	app.Post("/chats/:id/messages", asAccount(7, models.RoleCustomer), h.PostMessage)

	t.Run("Unauthenticated", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/anon/chats/1/messages", `{"text":"hi"}`)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("BadRoomID", func(t *testing.T) {
		resp, envelope := doJSON(t, app, http.MethodPost, "/chats/abc/messages", `{"text":"hi"}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_CHAT_ID", errorCode(t, envelope))
	})

	t.Run("PostingClosedIs403", func(t *testing.T) {
		flow.post = func(roomID, accountID uint, _ *dto.PostMessageRequest) (*dto.MessageDTO, error) {
			assert.Equal(t, uint(3), roomID)
			assert.Equal(t, uint(7), accountID)
			return nil, businessflow.NewBusinessError("POSTING_CLOSED", "This chat is waiting for the farmer", businessflow.ErrPostingClosed)
		}
		resp, envelope := doJSON(t, app, http.MethodPost, "/chats/3/messages", `{"text":"hi"}`)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "POSTING_CLOSED", errorCode(t, envelope))
	})

	t.Run("Created", func(t *testing.T) {
		flow.post = func(_, _ uint, req *dto.PostMessageRequest) (*dto.MessageDTO, error) {
			return &dto.MessageDTO{ID: 11, Text: req.Text, IsMine: true}, nil
		}
		resp, envelope := doJSON(t, app, http.MethodPost, "/chats/3/messages", `{"text":"Is it fresh?"}`)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.Equal(t, "Is it fresh?", envelope.Data.(map[string]any)["text"])
	})
}

func TestProductHandler_SearchBindsQuery(t *testing.T) {
	flow := &stubProductFlow{}
	h := NewProductHandler(flow)
	app := fiber.New()
	app.Get("/products", asAccount(7, models.RoleCustomer), h.Search)

	resp, _ := doJSON(t, app, http.MethodGet, "/products?q=tomato&distance=range&min_km=1.5&max_km=10&posted_after=2025-03-01", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotNil(t, flow.lastSearch)
	assert.Equal(t, "tomato", flow.lastSearch.Query)
	assert.Equal(t, dto.DistanceRange, flow.lastSearch.Distance)
	require.NotNil(t, flow.lastSearch.MinKm)
	assert.Equal(t, 1.5, *flow.lastSearch.MinKm)
	assert.Equal(t, "2025-03-01", flow.lastSearch.PostedAfter)

	resp, _ = doJSON(t, app, http.MethodGet, "/products?distance=range&max_km=800&distance_unit=meter", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, dto.DistanceUnitMeter, flow.lastSearch.DistanceUnit)

	resp, _ = doJSON(t, app, http.MethodGet, "/products?distance=closest", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/products?distance=range&max_km=1&distance_unit=mile", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAdminHandler_ExportReviews(t *testing.T) {
	h := NewAdminHandler(nil, stubReviewFlow{})
	app := fiber.New()
	app.Get("/admin/export", asAccount(1, models.RoleAdmin), h.ExportReviews)
	app.Get("/other/export", asAccount(2, models.RoleAdmin), h.ExportReviews)

	resp, _ := doJSON(t, app, http.MethodGet, "/admin/export", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="farmer_reviews_20250301.xlsx"`)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")

	resp, _ = doJSON(t, app, http.MethodGet, "/other/export", "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

type stubProfileFlow struct {
	businessflow.ProfileFlow
	deleted []uint
}

func (s *stubProfileFlow) DeleteAccount(_ context.Context, accountID uint, req *dto.DeleteAccountRequest, _ *businessflow.ClientMetadata) (*dto.DeleteAccountResponse, error) {
	if req.ConfirmationEmail != "sita@gmail.com" {
		return nil, businessflow.NewBusinessError("DELETE_CONFIRMATION_MISMATCH", "Confirmation email does not match your account", businessflow.ErrConfirmationMismatch)
	}
	s.deleted = append(s.deleted, accountID)
	return &dto.DeleteAccountResponse{Message: "Your account has been deleted."}, nil
}

func TestProfileHandler_DeleteAccount(t *testing.T) {
	flow := &stubProfileFlow{}
	h := NewProfileHandler(flow, nil)
	app := fiber.New()
	app.Delete("/me", asAccount(5, models.RoleFarmer), h.DeleteAccount)

	t.Run("ConfirmationRequired", func(t *testing.T) {
		resp, envelope := doJSON(t, app, http.MethodDelete, "/me", `{"reason":"moving"}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, envelope))
		assert.Empty(t, flow.deleted)
	})

	t.Run("MismatchIsFieldError", func(t *testing.T) {
		resp, envelope := doJSON(t, app, http.MethodDelete, "/me", `{"confirmation_email":"someone@gmail.com"}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "DELETE_CONFIRMATION_MISMATCH", errorCode(t, envelope))
		details := envelope.Error.(map[string]any)["details"].([]any)
		require.Len(t, details, 1)
		assert.Equal(t, "confirmation_email", details[0].(map[string]any)["field"])
		assert.Empty(t, flow.deleted)
	})

	t.Run("Deletes", func(t *testing.T) {
		resp, envelope := doJSON(t, app, http.MethodDelete, "/me", `{"confirmation_email":"sita@gmail.com"}`)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.True(t, envelope.Success)
		assert.Equal(t, []uint{5}, flow.deleted)
	})
}

func TestChatHandler_StreamEndsWhenHubCloses(t *testing.T) {
	hub := realtime.NewHub(4)
	h := NewChatHandler(&stubChatFlow{}, hub, time.Hour)
	app := fiber.New()
	app.Get("/chats/:id/stream", asAccount(7, models.RoleCustomer), h.Stream)

	timer := time.AfterFunc(100*time.Millisecond, hub.Close)
	defer timer.Stop()

	start := time.Now()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/chats/3/stream", nil), fiber.TestConfig{Timeout: 5 * time.Second, FailOnTimeout: true})
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(fiber.HeaderContentType))
	assert.Contains(t, string(body), ": subscribed")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, hub.Subscribers(3))
}

type stubLoginFlow struct {
	businessflow.LoginFlow
	resets int
}

func (s *stubLoginFlow) ForgotPassword(_ context.Context, req *dto.ForgotPasswordRequest, _ *businessflow.ClientMetadata) (*dto.ForgotPasswordResponse, error) {
	if req.Email != "sita@gmail.com" {
		return nil, businessflow.NewBusinessError("EMAIL_NOT_REGISTERED", "No account is registered with this email", businessflow.ErrEmailNotRegistered)
	}
	return &dto.ForgotPasswordResponse{Message: "sent", SentTo: "s***@gmail.com", ExpiresIn: 3600}, nil
}

func (s *stubLoginFlow) ResetPassword(_ context.Context, req *dto.ResetPasswordRequest, _ *businessflow.ClientMetadata) (*dto.ResetPasswordResponse, error) {
	if req.Token != "good-token" {
		return nil, businessflow.NewBusinessError("RESET_TOKEN_INVALID", "This reset token is invalid or has expired", businessflow.ErrResetTokenInvalid)
	}
	s.resets++
	return &dto.ResetPasswordResponse{Message: "changed", PasswordChangedAt: time.Now()}, nil
}

func TestAuthHandler_PasswordReset(t *testing.T) {
	flow := &stubLoginFlow{}
	h := NewAuthHandler(&stubSignupFlow{}, flow)
	app := fiber.New()
	app.Post("/auth/password/forgot", h.ForgotPassword)
	app.Post("/auth/password/reset", h.ResetPassword)

	fieldOf := func(t *testing.T, envelope dto.APIResponse) string {
		t.Helper()
		details, ok := envelope.Error.(map[string]any)["details"].([]any)
		require.True(t, ok)
		require.Len(t, details, 1)
		field, _ := details[0].(map[string]any)["field"].(string)
		return field
	}

	t.Run("ForgotSendsToRegisteredEmail", func(t *testing.T) {
		resp, envelope := doJSON(t, app, http.MethodPost, "/auth/password/forgot", `{"email":"sita@gmail.com"}`)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		data := envelope.Data.(map[string]any)
		assert.Equal(t, "s***@gmail.com", data["sent_to"])
		assert.EqualValues(t, 3600, data["expires_in"])
	})

	t.Run("ForgotUnregisteredEmail", func(t *testing.T) {
		resp, envelope := doJSON(t, app, http.MethodPost, "/auth/password/forgot", `{"email":"ghost@gmail.com"}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "EMAIL_NOT_REGISTERED", errorCode(t, envelope))
		assert.Equal(t, "email", fieldOf(t, envelope))
	})

	t.Run("ResetPasswordsMustMatch", func(t *testing.T) {
		resp, envelope := doJSON(t, app, http.MethodPost, "/auth/password/reset",
			`{"token":"good-token","new_password":"harvest2025","confirm_password":"harvest2026"}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, envelope))
		assert.Zero(t, flow.resets)
	})

	t.Run("ResetBadToken", func(t *testing.T) {
		resp, envelope := doJSON(t, app, http.MethodPost, "/auth/password/reset",
			`{"token":"stale","new_password":"harvest2025","confirm_password":"harvest2025"}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "RESET_TOKEN_INVALID", errorCode(t, envelope))
		assert.Equal(t, "token", fieldOf(t, envelope))
	})

	t.Run("Reset", func(t *testing.T) {
		resp, envelope := doJSON(t, app, http.MethodPost, "/auth/password/reset",
			`{"token":"good-token","new_password":"harvest2025","confirm_password":"harvest2025"}`)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.True(t, envelope.Success)
		assert.Equal(t, 1, flow.resets)
	})
}

func TestProductHandler_FarmerDetail(t *testing.T) {
	h := NewProductHandler(&stubProductFlow{})
	app := fiber.New()
	app.Get("/farmers/:id", asAccount(7, models.RoleCustomer), h.FarmerDetail)

	t.Run("Found", func(t *testing.T) {
		resp, envelope := doJSON(t, app, http.MethodGet, "/farmers/4", "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		data := envelope.Data.(map[string]any)
		assert.Equal(t, "Sita Farmer", data["name"])
		assert.Equal(t, "740 m", data["distance"])
		assert.Equal(t, []any{}, data["products"])
	})

	t.Run("NotFound", func(t *testing.T) {
		resp, envelope := doJSON(t, app, http.MethodGet, "/farmers/5", "")
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "FARMER_NOT_FOUND", errorCode(t, envelope))
	})

	t.Run("BadID", func(t *testing.T) {
		resp, envelope := doJSON(t, app, http.MethodGet, "/farmers/abc", "")
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_FARMER_ID", errorCode(t, envelope))
	})
}
