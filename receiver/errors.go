package receiver

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorUnauthorized = "WEBHOOK_RECEIVER_UNAUTHORIZED"
	ErrorBadRequest   = "WEBHOOK_RECEIVER_BAD_REQUEST"
	ErrorRetryable    = "WEBHOOK_RECEIVER_RETRYABLE"
	ErrorInternal     = "WEBHOOK_RECEIVER_INTERNAL"
)

func receiverError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func receiverWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return receiverError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func unauthorized(message string) *goerrors.Error {
	return receiverError(message, goerrors.CategoryAuth, http.StatusUnauthorized, ErrorUnauthorized, nil)
}

func badRequest(message string, metadata map[string]any) *goerrors.Error {
	return receiverError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ErrorBadRequest, metadata)
}

func internal(source error, message string) *goerrors.Error {
	return receiverWrapError(source, goerrors.CategoryInternal, message, http.StatusInternalServerError, ErrorInternal, nil)
}

// StatusCode returns the HTTP status carried by a receiver error, or 500.
func StatusCode(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code > 0 {
		return rich.Code
	}
	return http.StatusInternalServerError
}

func IsUnauthorized(err error) bool {
	return hasTextCode(err, ErrorUnauthorized)
}

func IsBadRequest(err error) bool {
	return hasTextCode(err, ErrorBadRequest)
}

func IsRetryable(err error) bool {
	return hasTextCode(err, ErrorRetryable)
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
