// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/app/middleware"
	"github.com/kisaan-market/kisaan/app/services"
	businessflow "github.com/kisaan-market/kisaan/business_flow"
	"github.com/kisaan-market/kisaan/utils"
)

const defaultRequestTimeout = 30 * time.Second

// minPhoneDigits mirrors the rule the signup flow enforces.
const minPhoneDigits = 8

// baseHandler carries the response envelope shared by every handler.
type baseHandler struct{}

func (baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ValidationResponse renders validator failures as a list of field errors.
func (h baseHandler) ValidationResponse(c fiber.Ctx, err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
	}
	details := make([]dto.FieldError, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		details = append(details, dto.FieldError{Field: fe.Field(), Message: getValidationErrorMessage(fe)})
	}
	return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", details)
}

// BusinessErrorResponse maps a flow error onto its HTTP status. Anything
// outside the taxonomy is logged and reported with the fallback code.
func (h baseHandler) BusinessErrorResponse(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	status := statusForError(err)
	if status == fiber.StatusInternalServerError {
		log.Printf(`{"level":"error","event":"request_failed","path":"%s","request_id":"%s","error":"%v"}`,
			c.Path(), requestID(c), err)
		return h.ErrorResponse(c, status, fallbackMessage, fallbackCode, nil)
	}

	code, message := fallbackCode, err.Error()
	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		code, message = be.Code, be.Message
		if fields := businessflow.FieldErrors(err); fields != nil {
			return h.ErrorResponse(c, status, message, code, fields)
		}
		if be.Err != nil && status != fiber.StatusUnauthorized {
			return h.ErrorResponse(c, status, message, code, be.Err.Error())
		}
	}
	return h.ErrorResponse(c, status, message, code, nil)
}

func statusForError(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case businessflow.IsIncorrectPassword(err),
		errors.Is(err, services.ErrTokenInvalid),
		errors.Is(err, services.ErrTokenExpired),
		errors.Is(err, services.ErrTokenRevoked):
		return fiber.StatusUnauthorized
	case businessflow.IsValidationError(err):
		return fiber.StatusBadRequest
	case businessflow.IsForbiddenError(err):
		return fiber.StatusForbidden
	case businessflow.IsConflictError(err):
		return fiber.StatusConflict
	case businessflow.IsNotFoundError(err):
		return fiber.StatusNotFound
	case businessflow.IsExpiredError(err):
		return fiber.StatusGone
	case businessflow.IsRetryableError(err):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// requestContext derives a bounded context for one flow call.
func requestContext(c fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context(), defaultRequestTimeout)
}

func requestID(c fiber.Ctx) string {
	if id := requestid.FromContext(c); id != "" {
		return id
	}
	return c.Get(businessflow.RequestIDKey)
}

func clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.RequestID = requestID(c)
	return metadata
}

// currentAccount returns the account id Authenticate stored on the request.
func currentAccount(c fiber.Ctx) (uint, bool) {
	accountID, ok := middleware.GetAccountIDFromContext(c)
	return accountID, ok && accountID != 0
}

func unauthorized(c fiber.Ctx) error {
	return baseHandler{}.ErrorResponse(c, fiber.StatusUnauthorized, "Authentication required", "AUTHENTICATION_REQUIRED", nil)
}

func parseIDParam(c fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return uint(id), nil
}

// newValidator registers the tags used by the request DTOs.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name, _, _ := strings.Cut(field.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})

	_ = v.RegisterValidation("alpha_space", func(fl validator.FieldLevel) bool {
		for _, char := range fl.Field().String() {
			if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || char == ' ') {
				return false
			}
		}
		return true
	})

	_ = v.RegisterValidation("phone_digits", func(fl validator.FieldLevel) bool {
		value := strings.TrimSpace(fl.Field().String())
		return len(value) >= minPhoneDigits && utils.IsDigits(value)
	})

	_ = v.RegisterValidation("ward", func(fl validator.FieldLevel) bool {
		return slices.Contains(utils.Wards, fl.Field().String())
	})

	return v
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "len":
		return err.Field() + " must be exactly " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "eqfield":
		return err.Field() + " must match " + err.Param()
	case "alpha_space":
		return err.Field() + " must contain only letters and spaces"
	case "alphanum":
		return err.Field() + " must contain only letters and digits"
	case "phone_digits":
		return fmt.Sprintf("%s must contain only digits and be at least %d digits long", err.Field(), minPhoneDigits)
	case "ward":
		return err.Field() + " must be one of the listed wards"
	case "url":
		return err.Field() + " must be a valid URL"
	case "datetime":
		return err.Field() + " must use the format " + err.Param()
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
