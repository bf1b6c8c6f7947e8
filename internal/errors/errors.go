package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrConfiguration - provider credentials missing or invalid (fatal, never retried)
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound - a referenced remote or local resource does not exist (triggers self-healing where applicable)
	ErrNotFound = errors.New("not found")

	// ErrUpload - corpus file upload rejected or failed (carries last known remote status)
	ErrUpload = errors.New("upload failed")

	// ErrIndexing - vector store attachment reached a failed terminal status
	ErrIndexing = errors.New("indexing failed")

	// ErrIndexingTimeout - attachment never reached a terminal status within the attempt budget
	ErrIndexingTimeout = errors.New("indexing timed out")

	// ErrRunTimeout - assistant run never reached a terminal status within the attempt budget
	ErrRunTimeout = errors.New("run timed out")

	// ErrSync - wrapping error for unclassified failures during the sync pipeline
	ErrSync = errors.New("sync failed")

	// ErrValidation - function-call parameters failed schema checks (local, never reaches provider or domain)
	ErrValidation = errors.New("invalid input")

	// ErrOwnership - action or confirmation accessed by a non-owning user/tenant (reported as not-found)
	ErrOwnership = errors.New("not owned")

	// ErrConfirmationRequired - destructive call proposed without a confirmation marker
	ErrConfirmationRequired = errors.New("confirmation required")

	// ErrConflict - a response conflicts with an earlier terminal state
	ErrConflict = errors.New("conflict")

	// ErrTransient - transient provider/network error (bounded retry, then surface)
	ErrTransient = errors.New("transient error")

	// ErrInternal - internal error (generic message to caller)
	ErrInternal = errors.New("internal error")
)
