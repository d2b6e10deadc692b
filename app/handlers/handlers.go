// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/amirphl/kartu-tanda-boga/app/dto"
	"github.com/amirphl/kartu-tanda-boga/app/services"
	businessflow "github.com/amirphl/kartu-tanda-boga/business_flow"
	"github.com/amirphl/kartu-tanda-boga/media"
	"github.com/amirphl/kartu-tanda-boga/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultRequestTimeout = 30 * time.Second

func errorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func successResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// createRequestContext creates a context with a timeout and request-scoped values for
// observability. The caller must call the returned cancel function.
func createRequestContext(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(c.Context(), timeout)

	requestID := c.Get(businessflow.RequestIDKey)
	if rid, ok := c.Locals(utils.LocalRequestID).(string); ok && rid != "" {
		requestID = rid
	}
	ctx = context.WithValue(ctx, utils.RequestIDKey, requestID)
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	if sessionID, ok := c.Locals(utils.LocalSessionID).(string); ok && sessionID != "" {
		ctx = context.WithValue(ctx, utils.SessionIDKey, sessionID)
	}
	return ctx, cancel
}

func clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	if rid, ok := c.Locals(utils.LocalRequestID).(string); ok && rid != "" {
		metadata.SetRequestID(rid)
	} else {
		metadata.SetRequestID(c.Get(businessflow.RequestIDKey))
	}
	if sessionID, ok := c.Locals(utils.LocalSessionID).(string); ok {
		metadata.SetSessionID(sessionID)
	}
	return metadata
}

func toFieldViolations(v businessflow.ValidationErrors) []dto.FieldViolation {
	out := make([]dto.FieldViolation, 0, len(v))
	for _, e := range v {
		out = append(out, dto.FieldViolation{Field: e.Field, Reason: string(e.Reason), Message: e.Message})
	}
	return out
}

// wizardErrorResponse maps wizard, capture and submission errors onto the API envelope.
func wizardErrorResponse(c fiber.Ctx, err error, operation string) error {
	if violations, ok := businessflow.AsValidationErrors(err); ok {
		return errorResponse(c, fiber.StatusUnprocessableEntity, "Validation failed", "VALIDATION_ERROR", toFieldViolations(violations))
	}

	var captureErr *media.CaptureError
	if errors.As(err, &captureErr) {
		status := fiber.StatusUnprocessableEntity
		if captureErr.Kind == media.DeviceBusy {
			status = fiber.StatusConflict
		}
		return errorResponse(c, status, captureErr.Message(), "CAMERA_"+string(captureErr.Kind), nil)
	}
	if media.IsDecodeError(err) {
		return errorResponse(c, fiber.StatusBadRequest, "File is not a readable image", "INVALID_IMAGE", err.Error())
	}
	if services.IsNetworkError(err) || services.IsHTTPError(err) || services.IsAPIError(err) {
		return errorResponse(c, fiber.StatusBadGateway, services.SubmissionFailureMessage(err), "SUBMISSION_FAILED", nil)
	}

	switch {
	case businessflow.IsSessionNotFound(err):
		return errorResponse(c, fiber.StatusNotFound, "Wizard session not found", "SESSION_NOT_FOUND", nil)
	case businessflow.IsSubmissionInProgress(err):
		return errorResponse(c, fiber.StatusConflict, "A submission is already in progress", "SUBMISSION_IN_PROGRESS", nil)
	case businessflow.IsWrongStep(err):
		return errorResponse(c, fiber.StatusConflict, "Action not allowed at the current step", "WRONG_STEP", nil)
	case businessflow.IsNoPreviousStep(err):
		return errorResponse(c, fiber.StatusConflict, "Already at the first step", "NO_PREVIOUS_STEP", nil)
	case businessflow.IsWizardCompleted(err):
		return errorResponse(c, fiber.StatusConflict, "Membership already created", "WIZARD_COMPLETED", nil)
	case businessflow.IsNoSubmissionResult(err):
		return errorResponse(c, fiber.StatusNotFound, "No membership has been created yet", "NO_SUBMISSION_RESULT", nil)
	case errors.Is(err, businessflow.ErrPhotoRequired):
		return errorResponse(c, fiber.StatusUnprocessableEntity, "Foto harus diambil", "PHOTO_REQUIRED", nil)
	case errors.Is(err, businessflow.ErrCardNotSelected):
		return errorResponse(c, fiber.StatusUnprocessableEntity, "No card design selected", "CARD_NOT_SELECTED", nil)
	case errors.Is(err, businessflow.ErrCameraNotOpen):
		return errorResponse(c, fiber.StatusConflict, "Camera is not open", "CAMERA_NOT_OPEN", nil)
	case errors.Is(err, businessflow.ErrCatalogEmpty):
		return errorResponse(c, fiber.StatusServiceUnavailable, "No card designs available", "CATALOG_EMPTY", nil)
	}

	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		switch be.Code {
		case "INVALID_FACING", "INDEX_REQUIRED", "INVALID_DIRECTION":
			return errorResponse(c, fiber.StatusBadRequest, be.Message, be.Code, nil)
		}
	}
	if errors.Is(err, businessflow.ErrCardIndexOutOfRange) {
		return errorResponse(c, fiber.StatusBadRequest, "Card index out of range", "CARD_INDEX_OUT_OF_RANGE", err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errorResponse(c, fiber.StatusGatewayTimeout, "Request timed out", "TIMEOUT", nil)
	}

	log.Printf("%s failed: %v", operation, err)
	return errorResponse(c, fiber.StatusInternalServerError, operation+" failed", "INTERNAL_ERROR", nil)
}

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

func validationMessages(err error) []string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return messages
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "min":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
