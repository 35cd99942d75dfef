package app

import (
	"errors"
	"fmt"
	"net/http"

	"loandocs/api/internal/document"
	"loandocs/api/internal/search"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, document.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, document.ErrInvalidFileType):
		return http.StatusUnsupportedMediaType, "INVALID_FILE_TYPE", err.Error(), nil
	case errors.Is(err, document.ErrUnknownDocType):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, document.ErrStorageQuotaExceeded):
		return http.StatusInsufficientStorage, "STORAGE_QUOTA_EXCEEDED", "Local storage is full",
			map[string]any{"action": "clear-and-retry", "endpoint": "/api/storage/clear"}
	case errors.Is(err, document.ErrRemoteUnreachable):
		return http.StatusServiceUnavailable, "REMOTE_UNREACHABLE", "Remote document store is unreachable", nil
	case errors.Is(err, search.ErrIndexUnavailable):
		return http.StatusServiceUnavailable, "INDEX_UNAVAILABLE", "Search index is unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
