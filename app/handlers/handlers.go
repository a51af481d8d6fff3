// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/app/middleware"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

const defaultRequestTimeout = 30 * time.Second

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "url":
		return err.Field() + " must be a valid URL"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

// baseHandler carries the response helpers every handler shares
type baseHandler struct {
	validator *validator.Validate
	timeout   time.Duration
}

func newBaseHandler() baseHandler {
	return baseHandler{validator: validator.New(), timeout: defaultRequestTimeout}
}

func (h *baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   message,
		Code:    errorCode,
		Details: details,
	})
}

func (h *baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// bindJSON decodes and validates a JSON body, writing the 400 response itself
// when either step fails; ok is false in that case.
func (h *baseHandler) bindJSON(c fiber.Ctx, req any) (bool, error) {
	if err := c.Bind().JSON(req); err != nil {
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	return h.validate(c, req)
}

// bindQuery decodes and validates query parameters
func (h *baseHandler) bindQuery(c fiber.Ctx, req any) (bool, error) {
	if err := c.Bind().Query(req); err != nil {
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	return h.validate(c, req)
}

func (h *baseHandler) validate(c fiber.Ctx, req any) (bool, error) {
	if err := h.validator.Struct(req); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
		}
		messages := make([]string, 0, len(fieldErrors))
		for _, fe := range fieldErrors {
			messages = append(messages, getValidationErrorMessage(fe))
		}
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}
	return true, nil
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *baseHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	timeout := h.timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)

	return ctx, cancel
}

func (h *baseHandler) clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	if requestID := c.Get("X-Request-ID"); requestID != "" {
		metadata.SetRequestID(requestID)
	}
	return metadata
}

// userContext resolves the authenticated caller set by the auth middleware
func (h *baseHandler) userContext(c fiber.Ctx) (businessflow.UserContext, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return businessflow.UserContext{}, false
	}
	return businessflow.NewUserContext(userID, h.clientMetadata(c)), true
}

func (h *baseHandler) unauthenticated(c fiber.Ctx) error {
	return h.ErrorResponse(c, fiber.StatusUnauthorized, "Authentication required", "AUTHENTICATION_REQUIRED", nil)
}

// pathID parses a positive numeric path parameter
func (h *baseHandler) pathID(c fiber.Ctx, name string) (uint, bool) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (h *baseHandler) invalidID(c fiber.Ctx, name string) error {
	return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid "+name, "INVALID_ID", nil)
}

// HTTPStatus maps a flow error onto the response status of the API
func HTTPStatus(err error) int {
	switch {
	case businessflow.IsNotFound(err):
		return fiber.StatusNotFound
	case businessflow.IsUnauthorized(err), businessflow.IsInvalidCredentials(err):
		return fiber.StatusUnauthorized
	case businessflow.IsWebhookVerification(err):
		return fiber.StatusForbidden
	case businessflow.IsDuplicatePhone(err), businessflow.IsEmailAlreadyExists(err), businessflow.IsDispatchInFlight(err):
		return fiber.StatusConflict
	case errors.Is(err, businessflow.ErrMediaTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case businessflow.IsDispatchFailed(err):
		return fiber.StatusBadGateway
	case businessflow.IsValidation(err),
		businessflow.IsInvalidTransition(err),
		businessflow.IsNoRecipients(err),
		businessflow.IsMissingCredential(err),
		businessflow.IsUnsupportedType(err),
		businessflow.IsInvalidFormat(err),
		errors.Is(err, businessflow.ErrTooManyRows),
		errors.Is(err, businessflow.ErrReferenceMissing),
		errors.Is(err, businessflow.ErrInvalidStatus),
		errors.Is(err, businessflow.ErrNotPreviewable),
		errors.Is(err, businessflow.ErrInvalidEmail),
		errors.Is(err, businessflow.ErrPasswordTooShort),
		businessflow.IsIncorrectPassword(err),
		businessflow.IsCaptchaInvalid(err):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// handleError writes the mapped error response; unexpected failures are logged,
// reported and answered with the generic fallback message.
func (h *baseHandler) handleError(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	status := HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":       c.Path(),
			"method":     c.Method(),
			"request_id": c.Get("X-Request-ID"),
			"code":       businessflow.ErrorCode(err),
		}).WithError(err).Error(fallbackMessage)
		sentry.CaptureException(err)

		if status == fiber.StatusInternalServerError {
			return h.ErrorResponse(c, status, fallbackMessage, fallbackCode, nil)
		}
	}

	message := fallbackMessage
	code := fallbackCode
	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		message = be.Message
		code = be.Code
	}
	return h.ErrorResponse(c, status, message, code, nil)
}
