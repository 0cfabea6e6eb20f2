package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vilaca/flatrest/internal/domain"
	"github.com/vilaca/flatrest/internal/logging"
)

// RetryingTransport retries failed fetches with exponential backoff.
// It is opt-in; the plain Transport never retries.
type RetryingTransport struct {
	next        Fetcher
	maxRetries  int
	baseBackoff time.Duration
	logger      *log.Logger
}

// NewRetryingTransport wraps next. maxRetries is the number of attempts after
// the first one (0 disables retrying); the wait before attempt n is
// baseBackoff * 2^n.
func NewRetryingTransport(next Fetcher, maxRetries int, baseBackoff time.Duration, logger *log.Logger) *RetryingTransport {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseBackoff <= 0 {
		baseBackoff = 500 * time.Millisecond
	}
	return &RetryingTransport{
		next:        next,
		maxRetries:  maxRetries,
		baseBackoff: baseBackoff,
		logger:      logging.OrDiscard(logger),
	}
}

// WithRetry is the Middleware form of NewRetryingTransport.
func WithRetry(maxRetries int, baseBackoff time.Duration, logger *log.Logger) Middleware {
	return func(next Fetcher) Fetcher {
		return NewRetryingTransport(next, maxRetries, baseBackoff, logger)
	}
}

func (r *RetryingTransport) Fetch(ctx context.Context, url string) (*domain.RawResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		resp, err := r.next.Fetch(ctx, url)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !Retryable(err) {
			return nil, err
		}

		if attempt < r.maxRetries {
			wait := r.baseBackoff * (1 << uint(attempt))
			r.logger.Warn("retrying fetch",
				"url", url,
				"attempt", attempt+1,
				"max_retries", r.maxRetries,
				"backoff", wait,
				"err", err)
			select {
			case <-ctx.Done():
				return nil, lastErr
			case <-time.After(wait):
			}
		}
	}
	return nil, lastErr
}

// Retryable reports whether err is worth another attempt: network failures,
// 429 and 5xx responses.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, domain.ErrInvalidQuery) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rerr *domain.RemoteRequestError
	if errors.As(err, &rerr) {
		return rerr.StatusCode == http.StatusTooManyRequests || rerr.StatusCode >= 500
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}
