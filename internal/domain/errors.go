package domain

import "errors"

var (
	// ErrValidation marks malformed requests rejected at the boundary.
	ErrValidation = errors.New("validation failed")

	ErrProviderNotFound       = errors.New("provider not found")
	ErrProviderDisabled       = errors.New("provider disabled")
	ErrTransportFailure       = errors.New("transport failure")
	ErrInvalidBackendResponse = errors.New("invalid backend response")
	ErrParseFailure           = errors.New("parse failure")

	// ErrPoolSaturated is returned when the dispatch pool cannot accept more work.
	ErrPoolSaturated = errors.New("dispatch pool saturated")
)
