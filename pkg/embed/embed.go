package embed

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the contract the engine requires of an embedding vendor.
type Provider interface {
	// Embed creates vector embeddings for the provided texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// FailureReason distinguishes why a provider call failed. The circuit
// breaker treats all reasons identically; logging does not.
type FailureReason string

const (
	// ReasonRateLimit indicates the provider throttled the request.
	ReasonRateLimit FailureReason = "rate_limit"

	// ReasonQuota indicates a quota or billing failure. Expected degraded
	// mode, not a fault: logged at debug, never as the generic error path.
	ReasonQuota FailureReason = "quota"

	// ReasonTransient covers timeouts, network errors and everything else.
	ReasonTransient FailureReason = "transient"
)

// ProviderError wraps a provider failure with its classified reason.
type ProviderError struct {
	Reason FailureReason
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider failure (%s): %v", e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err with the given reason.
func NewProviderError(reason FailureReason, err error) *ProviderError {
	return &ProviderError{Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason from err, defaulting to transient.
func ReasonOf(err error) FailureReason {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ReasonTransient
}

// IsQuota reports whether err is a quota/billing failure.
func IsQuota(err error) bool {
	return ReasonOf(err) == ReasonQuota
}
