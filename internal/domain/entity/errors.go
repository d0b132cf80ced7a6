package entity

import (
	"errors"
	"fmt"
)

// Standard domain errors
var (
	ErrProviderExhausted = errors.New("all eligible providers exhausted")
	ErrToolLoopExceeded  = errors.New("tool loop exceeded: model requested tools after tool round")
	ErrTurnTimeout       = errors.New("turn timed out before an answer was produced")
	ErrInvalidRequest    = errors.New("invalid request parameters")
	ErrResourceNotFound  = errors.New("the requested resource was not found")
)

// ProviderError classifies an upstream model failure. Retryable
// failures (timeout, rate limit, transient 5xx) trigger fallback to the
// next provider; fatal ones (auth, malformed request) abort the call.
type ProviderError struct {
	Provider  string
	Outcome   string // OutcomeTimeout, OutcomeRateLimited or OutcomeError
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err allows falling back to the next
// provider in priority order.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
