package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vilaca/flatrest/internal/domain"
	"github.com/vilaca/flatrest/internal/logging"
	"github.com/vilaca/flatrest/internal/parser"
)

const (
	// DefaultUserAgent is sent when ClientConfig.UserAgent is empty.
	DefaultUserAgent = "flatrest/1.0"
	// DefaultMaxBodyBytes caps a response body when ClientConfig.MaxBodyBytes is zero.
	DefaultMaxBodyBytes = 32 << 20
	// errorBodySnippet is how much of a failed response is kept in the error.
	errorBodySnippet = 512
)

// Transport performs plain HTTP GETs. It holds no mutable state and never retries.
type Transport struct {
	httpClient HTTPClient
	userAgent  string
	maxBody    int64
	logger     *log.Logger
}

// NewTransport creates a transport.
// Uses dependency injection for HTTPClient so tests can stub the network.
func NewTransport(config ClientConfig, httpClient HTTPClient, logger *log.Logger) *Transport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Transport{
		httpClient: httpClient,
		userAgent:  config.UserAgent,
		maxBody:    config.MaxBodyBytes,
		logger:     logging.OrDiscard(logger),
	}
}

// Fetch issues exactly one GET request. A non-2xx status yields a
// *domain.RemoteRequestError.
func (t *Transport) Fetch(ctx context.Context, url string) (*domain.RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "text/plain")

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Debug("request failed", "url", url, "err", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodySnippet))
		t.logger.Debug("remote error", "url", url, "status", resp.StatusCode)
		return nil, &domain.RemoteRequestError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > t.maxBody {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, t.maxBody)
	}

	t.logger.Debug("fetched", "url", url, "status", resp.StatusCode, "bytes", len(body), "dur", time.Since(start).Round(time.Millisecond))
	return &domain.RawResponse{URL: url, StatusCode: resp.StatusCode, Body: string(body)}, nil
}

// FetchParsed fetches url and parses the body with p. A body that is empty
// after trimming returns p.Empty() without invoking the parser.
func FetchParsed[T any](ctx context.Context, f Fetcher, url string, p parser.Parser[T]) (T, error) {
	raw, err := f.Fetch(ctx, url)
	if err != nil {
		var zero T
		return zero, err
	}
	return ParseRaw(raw, p)
}

// ParseRaw applies p to an already fetched response with the same empty-body
// short-circuit as FetchParsed.
func ParseRaw[T any](raw *domain.RawResponse, p parser.Parser[T]) (T, error) {
	if raw.Empty() {
		return p.Empty(), nil
	}
	v, err := p.Parse(strings.NewReader(raw.Body))
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to parse %s response from %s: %w", p.Grammar(), raw.URL, err)
	}
	return v, nil
}
