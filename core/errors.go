package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorAuthFailed         = "PYLON_AUTH_FAILED"
	ErrorNotFound           = "PYLON_NOT_FOUND"
	ErrorRateLimited        = "PYLON_RATE_LIMITED"
	ErrorValidationFailed   = "PYLON_VALIDATION_FAILED"
	ErrorServerFailure      = "PYLON_SERVER_ERROR"
	ErrorAPIFailure         = "PYLON_API_ERROR"
	ErrorTransportFailed    = "PYLON_TRANSPORT_FAILED"
	ErrorRequestCancelled   = "PYLON_REQUEST_CANCELLED"
	ErrorBadInput           = "PYLON_BAD_INPUT"
	ErrorSignatureMismatch  = "PYLON_SIGNATURE_MISMATCH"
	ErrorMissingSignature   = "PYLON_MISSING_SIGNATURE"
	ErrorTimestampRejected  = "PYLON_TIMESTAMP_OUT_OF_TOLERANCE"
	ErrorMalformedPayload   = "PYLON_MALFORMED_PAYLOAD"
	ErrorUnknownEventType   = "PYLON_UNKNOWN_EVENT_TYPE"
	ErrorCheckpointConflict = "PYLON_CHECKPOINT_CONFLICT"
	ErrorInternal           = "PYLON_INTERNAL_ERROR"
)

const maxRawErrorBodyBytes = 512

// Classify maps a non-2xx provider response onto the error taxonomy. It is
// pure: equal inputs produce equal errors, and it never fails itself. Bodies
// that are not JSON, or JSON without the expected keys, degrade to raw-text
// messages rather than classification failures.
func Classify(status int, headers map[string]string, body []byte) error {
	message := responseMessage(status, body)
	requestID := HeaderValue(headers, "x-request-id")

	metadata := map[string]any{"status_code": status}
	if requestID != "" {
		metadata["request_id"] = requestID
	}

	switch {
	case status == http.StatusUnauthorized:
		return newAPIError(message, goerrors.CategoryAuth, status, ErrorAuthFailed, metadata)
	case status == http.StatusNotFound:
		return newAPIError(message, goerrors.CategoryNotFound, status, ErrorNotFound, metadata)
	case status == http.StatusTooManyRequests:
		if retryAfter, ok := RetryAfterHint(headers); ok {
			metadata["retry_after_ms"] = retryAfter.Milliseconds()
		}
		return newAPIError(message, goerrors.CategoryRateLimit, status, ErrorRateLimited, metadata)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		details := validationDetails(body)
		if len(details) > 0 {
			fields := make([]string, 0, len(details))
			for _, detail := range details {
				fields = append(fields, strings.TrimSpace(detail.Field+" "+detail.Message))
			}
			metadata["validation_errors"] = fields
			return goerrors.NewValidation(message, details...).
				WithCode(status).
				WithTextCode(ErrorValidationFailed).
				WithMetadata(metadata)
		}
		return newAPIError(message, goerrors.CategoryValidation, status, ErrorValidationFailed, metadata)
	case status >= http.StatusInternalServerError:
		return newAPIError(message, goerrors.CategoryExternal, status, ErrorServerFailure, metadata)
	default:
		return newAPIError(message, goerrors.CategoryOperation, status, ErrorAPIFailure, metadata)
	}
}

func newAPIError(
	message string,
	category goerrors.Category,
	status int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(status).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// responseMessage extracts a human message from an error body: top-level
// "message", then "error.message", then the raw text, then "HTTP <status>".
func responseMessage(status int, body []byte) string {
	raw := strings.TrimSpace(string(body))
	parsed := map[string]any{}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if message := stringField(parsed, "message"); message != "" {
			return message
		}
		if nested, ok := parsed["error"].(map[string]any); ok {
			if message := stringField(nested, "message"); message != "" {
				return message
			}
		}
	}
	if raw != "" {
		if len(raw) > maxRawErrorBodyBytes {
			raw = raw[:maxRawErrorBodyBytes]
		}
		return raw
	}
	return fmt.Sprintf("HTTP %d", status)
}

func validationDetails(body []byte) []goerrors.FieldError {
	parsed := map[string]any{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil
	}
	rawList, ok := parsed["errors"].([]any)
	if !ok {
		return nil
	}
	details := make([]goerrors.FieldError, 0, len(rawList))
	for _, entry := range rawList {
		switch typed := entry.(type) {
		case string:
			if message := strings.TrimSpace(typed); message != "" {
				details = append(details, goerrors.FieldError{Message: message})
			}
		case map[string]any:
			detail := goerrors.FieldError{
				Field:   stringField(typed, "field"),
				Message: stringField(typed, "message"),
			}
			if detail.Field != "" || detail.Message != "" {
				details = append(details, detail)
			}
		}
	}
	return details
}

func stringField(source map[string]any, key string) string {
	value, ok := source[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// RetryAfterHint reads a Retry-After header as integer seconds first, then as
// an HTTP date.
func RetryAfterHint(headers map[string]string) (time.Duration, bool) {
	raw := HeaderValue(headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	for _, layout := range []string{time.RFC1123, time.RFC1123Z} {
		if at, err := time.Parse(layout, raw); err == nil {
			until := time.Until(at.UTC())
			if until > 0 {
				return until, true
			}
			return 0, false
		}
	}
	return 0, false
}

// HeaderValue does a case-insensitive lookup over flattened response headers.
func HeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func IsAuthentication(err error) bool { return hasTextCode(err, ErrorAuthFailed) }

func IsNotFound(err error) bool { return hasTextCode(err, ErrorNotFound) }

func IsRateLimited(err error) bool { return hasTextCode(err, ErrorRateLimited) }

func IsValidation(err error) bool { return hasTextCode(err, ErrorValidationFailed) }

func IsServerFailure(err error) bool { return hasTextCode(err, ErrorServerFailure) }

func IsTransportFailure(err error) bool { return hasTextCode(err, ErrorTransportFailed) }

func IsSignatureMismatch(err error) bool { return hasTextCode(err, ErrorSignatureMismatch) }

func IsMissingSignature(err error) bool { return hasTextCode(err, ErrorMissingSignature) }

func IsTimestampRejected(err error) bool { return hasTextCode(err, ErrorTimestampRejected) }

func IsMalformedPayload(err error) bool { return hasTextCode(err, ErrorMalformedPayload) }

func IsUnknownEventType(err error) bool { return hasTextCode(err, ErrorUnknownEventType) }

// IsCancelled reports caller cancellation, which is deliberately outside the
// API failure taxonomy and never retried.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return hasTextCode(err, ErrorRequestCancelled)
}

// IsRetryable reports whether a classified failure may be retried: transport
// failures, rate limits, and server failures. Cancellation is terminal.
func IsRetryable(err error) bool {
	if err == nil || IsCancelled(err) {
		return false
	}
	return IsRateLimited(err) || IsServerFailure(err) || IsTransportFailure(err)
}

// RetryAfter returns the provider's retry hint attached to a rate-limit
// error, when one was present.
func RetryAfter(err error) (time.Duration, bool) {
	richErr, ok := richError(err)
	if !ok || len(richErr.Metadata) == 0 {
		return 0, false
	}
	raw, ok := richErr.Metadata["retry_after_ms"]
	if !ok {
		return 0, false
	}
	switch typed := raw.(type) {
	case int64:
		return time.Duration(typed) * time.Millisecond, typed > 0
	case int:
		return time.Duration(typed) * time.Millisecond, typed > 0
	case float64:
		return time.Duration(typed) * time.Millisecond, typed > 0
	default:
		return 0, false
	}
}

// RequestID returns the provider correlation id carried by a classified
// error, when one was present.
func RequestID(err error) string {
	richErr, ok := richError(err)
	if !ok || len(richErr.Metadata) == 0 {
		return ""
	}
	if value, ok := richErr.Metadata["request_id"].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

// StatusCode returns the HTTP status a classified error carries, or zero.
func StatusCode(err error) int {
	richErr, ok := richError(err)
	if !ok {
		return 0
	}
	return richErr.Code
}

func hasTextCode(err error, textCode string) bool {
	richErr, ok := richError(err)
	if !ok {
		return false
	}
	return richErr.TextCode == textCode
}

func richError(err error) (*goerrors.Error, bool) {
	if err == nil {
		return nil, false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr, true
	}
	return nil, false
}
