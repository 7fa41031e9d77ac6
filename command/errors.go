package command

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pylon/core"
)

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}

func commandValidationError(field string, message string) error {
	return goerrors.NewValidation("command: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func checkpointConflictError(resource string, expected string, actual string) error {
	return goerrors.New("command: checkpoint moved since it was read", goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(core.ErrorCheckpointConflict).
		WithMetadata(map[string]any{
			"resource":        resource,
			"expected_cursor": expected,
			"actual_cursor":   actual,
		})
}
