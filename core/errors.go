package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	WebhookErrorValidation        = "WEBHOOK_VALIDATION_FAILED"
	WebhookErrorTransport         = "WEBHOOK_TRANSPORT_FAILED"
	WebhookErrorHTTP              = "WEBHOOK_HTTP_FAILED"
	WebhookErrorNotFound          = "WEBHOOK_NOT_FOUND"
	WebhookErrorInvalidState      = "WEBHOOK_INVALID_STATE"
	WebhookErrorAttemptsExhausted = "WEBHOOK_ATTEMPTS_EXHAUSTED"
	WebhookErrorDeliveryConflict  = "WEBHOOK_DELIVERY_CONFLICT"
	WebhookErrorInternal          = "WEBHOOK_INTERNAL_ERROR"
)

func ValidationError(field string, message string) *goerrors.Error {
	return goerrors.NewValidation("core: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(WebhookErrorValidation).
		WithSeverity(goerrors.SeverityError)
}

// DependencyError reports a handler or service built without a required
// collaborator.
func DependencyError(component string, message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(WebhookErrorInternal).
		WithMetadata(map[string]any{"component": component})
}

func NotFoundError(resource string, id string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("core: %s %q not found", resource, id), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(WebhookErrorNotFound).
		WithMetadata(map[string]any{"resource": resource, "id": id})
}

func InvalidStateError(deliveryID string, status DeliveryStatus, message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(WebhookErrorInvalidState).
		WithMetadata(map[string]any{"delivery_id": deliveryID, "status": string(status)})
}

func SubscriptionInactiveError(subscriptionID string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("core: subscription %s is inactive", subscriptionID), goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(WebhookErrorInvalidState).
		WithMetadata(map[string]any{"subscription_id": subscriptionID})
}

func AttemptsExhaustedError(deliveryID string, attempts int, maxAttempts int) *goerrors.Error {
	return goerrors.New(
		fmt.Sprintf("core: delivery %s exhausted %d of %d attempts", deliveryID, attempts, maxAttempts),
		goerrors.CategoryConflict,
	).
		WithCode(http.StatusConflict).
		WithTextCode(WebhookErrorAttemptsExhausted).
		WithMetadata(map[string]any{"delivery_id": deliveryID, "attempts": attempts, "max_attempts": maxAttempts})
}

func DeliveryConflictError(deliveryID string, expectedAttempts int) *goerrors.Error {
	return goerrors.New(
		fmt.Sprintf("core: delivery %s was modified concurrently", deliveryID),
		goerrors.CategoryConflict,
	).
		WithCode(http.StatusConflict).
		WithTextCode(WebhookErrorDeliveryConflict).
		WithMetadata(map[string]any{"delivery_id": deliveryID, "expected_attempts": expectedAttempts})
}

func TransportError(source error, url string) *goerrors.Error {
	message := "core: webhook transport failed"
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, goerrors.CategoryExternal)
	} else {
		err = goerrors.Wrap(source, goerrors.CategoryExternal, message)
	}
	return err.
		WithCode(http.StatusBadGateway).
		WithTextCode(WebhookErrorTransport).
		WithMetadata(map[string]any{"url": url})
}

func HTTPError(statusCode int, url string) *goerrors.Error {
	return goerrors.New(
		fmt.Sprintf("core: webhook endpoint responded with status %d", statusCode),
		goerrors.CategoryExternal,
	).
		WithCode(http.StatusBadGateway).
		WithTextCode(WebhookErrorHTTP).
		WithMetadata(map[string]any{"status_code": statusCode, "url": url})
}

func IsNotFound(err error) bool {
	return hasTextCode(err, WebhookErrorNotFound)
}

func IsInvalidState(err error) bool {
	return hasTextCode(err, WebhookErrorInvalidState)
}

func IsAttemptsExhausted(err error) bool {
	return hasTextCode(err, WebhookErrorAttemptsExhausted)
}

func IsDeliveryConflict(err error) bool {
	return hasTextCode(err, WebhookErrorDeliveryConflict)
}

func IsValidation(err error) bool {
	return hasTextCode(err, WebhookErrorValidation)
}

// IsDeliveryFailure reports errors describing a failed attempt rather than a
// broken call.
func IsDeliveryFailure(err error) bool {
	return hasTextCode(err, WebhookErrorTransport) || hasTextCode(err, WebhookErrorHTTP)
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == textCode
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, WebhookErrorNotFound)
	case strings.Contains(msg, "already succeeded"), strings.Contains(msg, "dead-lettered"), strings.Contains(msg, "not dead_letter"):
		return newServiceError(err.Error(), goerrors.CategoryConflict, WebhookErrorInvalidState)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unknown event"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, WebhookErrorValidation)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return WebhookErrorValidation
	case goerrors.CategoryNotFound:
		return WebhookErrorNotFound
	case goerrors.CategoryConflict:
		return WebhookErrorInvalidState
	case goerrors.CategoryExternal:
		return WebhookErrorTransport
	default:
		return WebhookErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
