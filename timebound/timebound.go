// Package timebound bounds how long a caller waits for an optional
// enrichment step.
//
// Contact-name enrichment is an enhancement to a primary result, never a
// prerequisite: a tool response listing messages is still useful with raw
// handles in place of names. Run gives callers a hard budget for that kind
// of call and hands back a fallback value when the budget elapses.
package timebound

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultEnrichmentTimeout is the budget used by callers that enrich a
// primary result with resolved contact names.
const DefaultEnrichmentTimeout = 5 * time.Second

// Run invokes fn and waits at most timeout for it to settle.
//
// On deadline it returns fallback immediately and, when label is non-empty,
// emits one structured warning naming the operation and the configured
// timeout. The wrapped fn is not cancelled: it keeps running on its own
// goroutine to completion so any cache it was warming still benefits the
// next caller.
func Run[T any](ctx context.Context, timeout time.Duration, label string, fallback T, fn func(context.Context) T) T {
	if timeout <= 0 {
		timeout = DefaultEnrichmentTimeout
	}

	done := make(chan T, 1)
	go func() {
		done <- fn(ctx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case value := <-done:
		return value
	case <-timer.C:
		if label != "" {
			log.Warn().
				Str("op", label).
				Dur("timeout", timeout).
				Msg("operation exceeded its deadline, returning fallback")
		}
		return fallback
	}
}
