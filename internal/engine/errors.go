package engine

import (
	"errors"
	"fmt"

	"metaform-backend/internal/fieldtype"
	"metaform-backend/internal/schema"
	"metaform-backend/internal/store"
)

// ErrPersistence marks a storage failure during the persist phase of a
// submission. The whole batch was rolled back; callers retry the entire
// submission.
var ErrPersistence = errors.New("persistence failure")

type AppError struct {
	Code    string               `json:"code"`
	Status  int                  `json:"-"`
	Message string               `json:"message"`
	Details []schema.ErrorDetail `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(what, name string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s %s not found", what, name),
	}
}

func UnknownFormError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_FORM",
		Status:  404,
		Message: fmt.Sprintf("Unknown form: %s", name),
	}
}

func ValidationError(details []schema.ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

// MapDefinitionError converts definition-time sentinel errors into the
// AppError the HTTP boundary reports, or nil when the error is not one.
func MapDefinitionError(err error) *AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fieldtype.ErrUnknownType):
		return NewAppError("UNKNOWN_FIELD_TYPE", 422, err.Error())
	case errors.Is(err, fieldtype.ErrInvalidConfig):
		return NewAppError("INVALID_CONFIG", 422, err.Error())
	case errors.Is(err, fieldtype.ErrDuplicateType):
		return NewAppError("DUPLICATE_FIELD_TYPE", 409, err.Error())
	case errors.Is(err, store.ErrUniqueViolation):
		return ConflictError("A record with this value already exists")
	case errors.Is(err, store.ErrNotFound):
		return NewAppError("NOT_FOUND", 404, "Not found")
	default:
		return nil
	}
}
