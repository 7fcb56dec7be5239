// Package llm provides the client the capability adapters (intent
// analysis, SQL generation, SQL verification) use to talk to a language
// model, plus the retry policy for transient provider failures.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Client is the minimal completion interface the capability adapters
// consume.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithBudget bounds the model's output tokens. The
	// generation/verification loop raises the budget on each incomplete
	// verdict, so the bound is a per-call argument rather than client
	// state.
	CompleteWithBudget(ctx context.Context, prompt string, maxOutputTokens int) (string, error)
}

// ProviderError is a non-2xx response from the provider, classified so the
// retry policy can tell transient failures from permanent ones.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// IsTransient reports whether an error belongs to the retriable failure
// classes: rate-limited, timeout, or service-unavailable. Anything else
// propagates immediately without retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.StatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	return false
}
