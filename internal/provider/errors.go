package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-center/internal/domain"
)

// ProviderError classifies a channel failure into one of the domain failure kinds.
type ProviderError struct {
	Kind       error
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if len(parts) == 0 && e.Kind != nil {
		parts = append(parts, e.Kind.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() []error {
	if e == nil {
		return nil
	}

	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func transportError(message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Kind:       domain.ErrTransportFailure,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

func invalidResponseError(message string) *ProviderError {
	return &ProviderError{
		Kind:    domain.ErrInvalidBackendResponse,
		Message: message,
	}
}

// KindOf maps an error to a failure kind. Unclassified errors, including
// context deadlines and net errors, count as transport failures.
func KindOf(err error) error {
	if err == nil {
		return nil
	}

	for _, kind := range []error{
		domain.ErrProviderNotFound,
		domain.ErrProviderDisabled,
		domain.ErrPoolSaturated,
		domain.ErrInvalidBackendResponse,
		domain.ErrParseFailure,
		domain.ErrValidation,
		domain.ErrTransportFailure,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	return domain.ErrTransportFailure
}

// ReasonLabel renders a failure kind as a short metric label.
func ReasonLabel(err error) string {
	switch KindOf(err) {
	case domain.ErrProviderNotFound:
		return "provider_not_found"
	case domain.ErrProviderDisabled:
		return "provider_disabled"
	case domain.ErrPoolSaturated:
		return "pool_saturated"
	case domain.ErrInvalidBackendResponse:
		return "invalid_backend_response"
	case domain.ErrParseFailure:
		return "parse_failure"
	case domain.ErrValidation:
		return "validation"
	case nil:
		return ""
	default:
		return "transport_failure"
	}
}
