package job

import (
	"errors"
	"fmt"
)

// Sentinel errors for the scheduler contract.
var (
	// ErrCapacityExceeded is returned by Enqueue when the outstanding-job
	// ceiling is reached. The caller must back off; it is never retried
	// automatically.
	ErrCapacityExceeded = errors.New("job capacity exceeded")

	// ErrStaleTransition signals an out-of-order status update. Correct
	// orchestrator sequencing never triggers it; treat it as fatal to the
	// job's current attempt.
	ErrStaleTransition = errors.New("stale status transition")

	// ErrExhaustedRetries marks the terminal failed state after the retry
	// budget is spent.
	ErrExhaustedRetries = errors.New("retries exhausted")

	// ErrNotFound is returned when a job ID is unknown to the store.
	ErrNotFound = errors.New("job not found")
)

// ProviderError wraps a failure from an external collaborator (OCR, AI,
// dispatch). Retryable.
type ProviderError struct {
	Stage string // extract | parse | compose | send
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider error: %v", e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError attributes err to a pipeline stage.
func NewProviderError(stage string, err error) *ProviderError {
	return &ProviderError{Stage: stage, Err: err}
}

// ValidationError wraps malformed generated content that no fallback could
// repair. Retryable, since a retry may re-invoke the fallback path.
type ValidationError struct {
	Stage string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation error: %v", e.Stage, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError attributes err to a pipeline stage.
func NewValidationError(stage string, err error) *ValidationError {
	return &ValidationError{Stage: stage, Err: err}
}
