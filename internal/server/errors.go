package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/frostclub/internal/audit/domain"
	authdomain "github.com/smallbiznis/frostclub/internal/auth/domain"
	"github.com/smallbiznis/frostclub/internal/authorization"
	bookingdomain "github.com/smallbiznis/frostclub/internal/booking/domain"
	"github.com/smallbiznis/frostclub/internal/cart"
	contentdomain "github.com/smallbiznis/frostclub/internal/content/domain"
	eventdomain "github.com/smallbiznis/frostclub/internal/event/domain"
	orderdomain "github.com/smallbiznis/frostclub/internal/order/domain"
	paymentdomain "github.com/smallbiznis/frostclub/internal/payment/domain"
	productdomain "github.com/smallbiznis/frostclub/internal/product/domain"
	profiledomain "github.com/smallbiznis/frostclub/internal/profile/domain"
	"github.com/smallbiznis/frostclub/internal/ratelimit"
	"github.com/smallbiznis/frostclub/internal/tier"
	"github.com/smallbiznis/frostclub/internal/upload"
	"github.com/smallbiznis/frostclub/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")

	ErrDocumentUnavailable = errors.New("document_unavailable")
)

var validationErrors = []error{
	ErrInvalidRequest,
	tier.ErrInvalidTier,
	profiledomain.ErrInvalidEmail,
	profiledomain.ErrInvalidID,
	profiledomain.ErrInvalidTier,
	profiledomain.ErrInvalidPageToken,
	productdomain.ErrInvalidID,
	productdomain.ErrInvalidName,
	productdomain.ErrInvalidPrice,
	productdomain.ErrInvalidCategory,
	productdomain.ErrInvalidTier,
	productdomain.ErrInvalidPageToken,
	orderdomain.ErrInvalidID,
	orderdomain.ErrInvalidItems,
	orderdomain.ErrInvalidStatus,
	orderdomain.ErrInvalidTransition,
	orderdomain.ErrInvalidPageToken,
	bookingdomain.ErrInvalidID,
	bookingdomain.ErrInvalidDate,
	bookingdomain.ErrInvalidDuration,
	bookingdomain.ErrSessionInPast,
	bookingdomain.ErrInvalidStatus,
	bookingdomain.ErrInvalidTransition,
	bookingdomain.ErrInvalidPageToken,
	eventdomain.ErrInvalidID,
	eventdomain.ErrInvalidTitle,
	eventdomain.ErrInvalidStartsAt,
	eventdomain.ErrInvalidCapacity,
	eventdomain.ErrInvalidPrice,
	eventdomain.ErrInvalidTier,
	eventdomain.ErrInvalidQuantity,
	eventdomain.ErrEventStarted,
	contentdomain.ErrInvalidID,
	contentdomain.ErrInvalidTitle,
	contentdomain.ErrInvalidType,
	contentdomain.ErrInvalidTier,
	paymentdomain.ErrInvalidEmail,
	paymentdomain.ErrInvalidTier,
	paymentdomain.ErrInvalidQuantity,
	paymentdomain.ErrInvalidItems,
	paymentdomain.ErrEmptyCart,
	paymentdomain.ErrMixedCurrencies,
	paymentdomain.ErrInvalidSessionID,
	cart.ErrInvalidQuantity,
	cart.ErrInvalidProduct,
	cart.ErrEmpty,
	cart.ErrCurrencyMismatch,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
	upload.ErrEmpty,
	pagination.ErrInvalidPageToken,
}

var notFoundErrors = []error{
	ErrNotFound,
	profiledomain.ErrNotFound,
	productdomain.ErrNotFound,
	orderdomain.ErrNotFound,
	bookingdomain.ErrNotFound,
	eventdomain.ErrNotFound,
	eventdomain.ErrRegistrationNotFound,
	contentdomain.ErrNotFound,
	cart.ErrItemNotFound,
	paymentdomain.ErrSessionNotFound,
	gorm.ErrRecordNotFound,
}

var forbiddenErrors = []error{
	ErrForbidden,
	authorization.ErrForbidden,
	productdomain.ErrNotVisible,
	contentdomain.ErrLocked,
	paymentdomain.ErrTierRequired,
}

var conflictErrors = []error{
	ErrConflict,
	ErrDocumentUnavailable,
	productdomain.ErrOutOfStock,
	productdomain.ErrSlugTaken,
	orderdomain.ErrStatusConflict,
	orderdomain.ErrSessionAttached,
	bookingdomain.ErrSlotTaken,
	bookingdomain.ErrStatusConflict,
	bookingdomain.ErrSessionAttached,
	eventdomain.ErrEventFull,
	eventdomain.ErrAlreadyRegistered,
	eventdomain.ErrSessionAttached,
	eventdomain.ErrSlugTaken,
	contentdomain.ErrSlugTaken,
	paymentdomain.ErrReconcileInProgress,
}

var unauthorizedErrors = []error{
	ErrUnauthorized,
	authdomain.ErrUnauthenticated,
	authdomain.ErrInvalidToken,
	authdomain.ErrTokenExpired,
	authdomain.ErrMissingEmail,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalPayload()
	}

	// a failed webhook dispatch must be retried whatever the cause was
	if errors.Is(err, paymentdomain.ErrDispatchFailed) {
		return http.StatusInternalServerError, internalPayload()
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isAny(err, paymentdomain.ErrInvalidSignature, paymentdomain.ErrInvalidPayload, paymentdomain.ErrInvalidEvent):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_webhook",
			Code:    codeOf(err, paymentdomain.ErrInvalidSignature, paymentdomain.ErrInvalidPayload, paymentdomain.ErrInvalidEvent),
			Message: "webhook rejected",
		}
	case isAny(err, validationErrors...):
		code := codeOf(err, validationErrors...)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	case isAny(err, paymentdomain.ErrPayloadTooLarge, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "payload_too_large",
			Message: "payload too large",
		}
	case errors.Is(err, upload.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, errorPayload{
			Type:    "unsupported_media_type",
			Message: "unsupported media type",
		}
	case isAny(err, unauthorizedErrors...):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isAny(err, forbiddenErrors...):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Code:    codeOf(err, forbiddenErrors...),
			Message: "forbidden",
		}
	case isAny(err, notFoundErrors...):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isAny(err, conflictErrors...):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    codeOf(err, conflictErrors...),
			Message: "conflict",
		}
	case errors.Is(err, paymentdomain.ErrPaymentNotCompleted):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_required",
			Code:    paymentdomain.ErrPaymentNotCompleted.Error(),
			Message: "payment not completed",
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isAny(err, ErrServiceUnavailable, paymentdomain.ErrProcessorNotConfigured, paymentdomain.ErrWebhookNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, internalPayload()
	}
}

// classifyErrorForLog feeds the request logger the same type/code the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func internalPayload() errorPayload {
	return errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func codeOf(err error, targets ...error) string {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return ""
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
