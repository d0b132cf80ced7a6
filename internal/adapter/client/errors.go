package client

import (
	"context"
	"errors"
	"strings"

	"raggate/internal/domain/entity"
)

// classifyStatus maps an HTTP status from a vendor SDK onto the domain
// error taxonomy. Timeouts, rate limits and 5xx are retryable and
// eligible for fallback; everything else is a caller bug and fatal.
func classifyStatus(provider string, status int, err error) error {
	switch {
	case status == 429:
		return &entity.ProviderError{Provider: provider, Outcome: entity.OutcomeRateLimited, Retryable: true, Err: err}
	case status == 408 || status >= 500:
		return &entity.ProviderError{Provider: provider, Outcome: entity.OutcomeError, Retryable: true, Err: err}
	default:
		return &entity.ProviderError{Provider: provider, Outcome: entity.OutcomeError, Retryable: false, Err: err}
	}
}

// classifyErr handles transport-level failures that carry no HTTP
// status: context deadlines become retryable timeouts, cancellation
// stays fatal (the caller went away), and anything else is sniffed for
// known transient markers the way the upstream SDKs spell them.
func classifyErr(provider string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &entity.ProviderError{Provider: provider, Outcome: entity.OutcomeTimeout, Retryable: true, Err: err}
	case errors.Is(err, context.Canceled):
		return &entity.ProviderError{Provider: provider, Outcome: entity.OutcomeError, Retryable: false, Err: err}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return &entity.ProviderError{Provider: provider, Outcome: entity.OutcomeRateLimited, Retryable: true, Err: err}
	}
	if strings.Contains(msg, "500") || strings.Contains(msg, "503") ||
		strings.Contains(msg, "overloaded") || strings.Contains(msg, "deadline") ||
		strings.Contains(msg, "connection refused") {
		return &entity.ProviderError{Provider: provider, Outcome: entity.OutcomeError, Retryable: true, Err: err}
	}
	return &entity.ProviderError{Provider: provider, Outcome: entity.OutcomeError, Retryable: false, Err: err}
}
