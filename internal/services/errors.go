package services

import "errors"

// Error taxonomy shared by the retrieval and generation services. Handlers
// map these onto HTTP statuses; everything else is a plain 500.
var (
	// ErrBackendUnavailable: the model backend could not be reached or kept
	// failing at the transport level. Retryable.
	ErrBackendUnavailable = errors.New("model backend unavailable")

	// ErrMalformedOutput: the backend answered but the content failed
	// structural validation. Retrying may produce different output.
	ErrMalformedOutput = errors.New("model output malformed")

	// ErrEmptyCorpus: no indexed content exists for the subject. Callers
	// normally never see this; generation falls back to knowledge-only.
	ErrEmptyCorpus = errors.New("no indexed content for subject")

	ErrSessionNotFound = errors.New("generation session not found")
	ErrInvalidRequest  = errors.New("invalid request")
)
