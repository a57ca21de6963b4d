package engine

import (
	"errors"
	"fmt"

	"roster-backend/internal/metadata"
	"roster-backend/internal/store"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details string        `json:"details,omitempty"`
	Fields  []ErrorDetail `json:"fields,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Row     *int   `json:"row,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(what string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s not found", what),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  400,
		Message: "Validation failed",
		Fields:  details,
	}
}

func InvalidPayloadError(msg string) *AppError {
	return &AppError{Code: "INVALID_PAYLOAD", Status: 400, Message: msg}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func StorageError(err error) *AppError {
	return &AppError{
		Code:    "STORAGE_FAILURE",
		Status:  500,
		Message: "Storage operation failed",
		Details: store.ErrorDetail(err),
	}
}

// ToAppError translates sentinel errors from the metadata and store layers
// into the HTTP error taxonomy. Anything unrecognised is a storage failure.
func ToAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, metadata.ErrInvalidIdentifier):
		return &AppError{Code: "INVALID_IDENTIFIER", Status: 400, Message: "Invalid identifier", Details: err.Error()}
	case errors.Is(err, metadata.ErrInvalidField):
		return &AppError{Code: "INVALID_FIELD", Status: 400, Message: "Invalid field definition", Details: err.Error()}
	case errors.Is(err, store.ErrAlreadyExists):
		return &AppError{Code: "ALREADY_EXISTS", Status: 400, Message: "Already exists", Details: err.Error()}
	case errors.Is(err, store.ErrNotFound):
		return &AppError{Code: "NOT_FOUND", Status: 404, Message: "Not found", Details: err.Error()}
	case errors.Is(err, store.ErrUniqueViolation):
		return &AppError{Code: "STORAGE_FAILURE", Status: 500, Message: "Duplicate value", Details: store.ErrorDetail(err)}
	}
	return StorageError(err)
}
