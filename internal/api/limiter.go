package api

import (
	"context"

	"github.com/vilaca/flatrest/internal/domain"
)

// MaxConcurrentRequests is the default bound used by NewLimitedTransport.
const MaxConcurrentRequests = 5

// LimitedTransport bounds the number of in-flight requests shared by all
// callers of the wrapped Fetcher.
type LimitedTransport struct {
	next      Fetcher
	semaphore chan struct{}
}

// NewLimitedTransport wraps next with a semaphore of size max.
// A max <= 0 selects MaxConcurrentRequests.
func NewLimitedTransport(next Fetcher, max int) *LimitedTransport {
	if max <= 0 {
		max = MaxConcurrentRequests
	}
	return &LimitedTransport{
		next:      next,
		semaphore: make(chan struct{}, max),
	}
}

// WithConcurrencyLimit is the Middleware form of NewLimitedTransport.
func WithConcurrencyLimit(max int) Middleware {
	return func(next Fetcher) Fetcher { return NewLimitedTransport(next, max) }
}

// Fetch waits for a free slot or ctx cancellation, then delegates.
func (l *LimitedTransport) Fetch(ctx context.Context, url string) (*domain.RawResponse, error) {
	select {
	case l.semaphore <- struct{}{}:
		defer func() { <-l.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return l.next.Fetch(ctx, url)
}

// InFlight returns the number of requests currently holding a slot.
func (l *LimitedTransport) InFlight() int { return len(l.semaphore) }
