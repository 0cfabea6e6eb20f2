package api

import (
	"context"
	"net/http"

	"github.com/vilaca/flatrest/internal/domain"
)

// HTTPClient interface for HTTP operations (allows mocking in tests).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher performs one GET per call and returns the raw body.
// Transport implements it; the decorators in this package wrap any Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*domain.RawResponse, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*domain.RawResponse, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (*domain.RawResponse, error) {
	return f(ctx, url)
}

// Middleware wraps a Fetcher with additional behaviour.
type Middleware func(Fetcher) Fetcher

// Chain applies middlewares so that the first one is the outermost.
func Chain(f Fetcher, mws ...Middleware) Fetcher {
	for i := len(mws) - 1; i >= 0; i-- {
		f = mws[i](f)
	}
	return f
}

// ClientConfig holds transport settings.
type ClientConfig struct {
	UserAgent    string
	MaxBodyBytes int64
}
