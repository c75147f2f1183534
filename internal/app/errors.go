package app

import (
	"errors"
	"fmt"
	"net/http"

	"sheettracker/api/internal/export"
	"sheettracker/api/internal/sheet"
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var validation *sheet.ValidationError
	if errors.As(err, &validation) {
		var details any
		if validation.Field != "" {
			details = map[string]string{"field": validation.Field}
		}
		return http.StatusBadRequest, "VALIDATION_ERROR", validation.Error(), details
	}
	var notFound *sheet.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound, "NOT_FOUND", notFound.Error(), map[string]string{
			"level": string(notFound.Level),
			"id":    notFound.ID,
		}
	}

	switch {
	case errors.Is(err, sheet.ErrPersistence):
		return http.StatusInternalServerError, "PERSISTENCE_ERROR", "Change could not be saved", nil
	case errors.Is(err, sheet.ErrCorruptState):
		return http.StatusInternalServerError, "CORRUPT_STATE", "Stored sheet is unreadable", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// resultLabel classifies err for the mutation counter.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, sheet.ErrValidation):
		return "validation"
	case errors.Is(err, sheet.ErrNotFound):
		return "not_found"
	case errors.Is(err, sheet.ErrPersistence):
		return "persistence"
	default:
		return "error"
	}
}
