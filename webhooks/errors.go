package webhooks

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pylon/core"
)

func missingSignatureError() error {
	return goerrors.New("webhooks: missing signature header", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.ErrorMissingSignature)
}

func signatureMismatchError() error {
	return goerrors.New("webhooks: signature verification failed", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.ErrorSignatureMismatch)
}

func timestampError(msg string, metadata map[string]any) error {
	return goerrors.New(msg, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.ErrorTimestampRejected).
		WithMetadata(metadata)
}

func malformedEventError(msg string, cause error, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	if cause != nil {
		richErr := goerrors.Wrap(cause, goerrors.CategoryBadInput, msg).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ErrorMalformedPayload)
		return richErr.WithMetadata(metadata)
	}
	return goerrors.New(msg, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorMalformedPayload).
		WithMetadata(metadata)
}

func unknownEventError(eventType string) error {
	return goerrors.New("webhooks: unknown event type", goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorUnknownEventType).
		WithMetadata(map[string]any{
			"event_type":  eventType,
			"known_types": EventTypes(),
		})
}
