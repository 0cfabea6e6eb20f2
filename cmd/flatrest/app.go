package main

import (
	"net/http"
	"os"

	"github.com/charmbracelet/log"

	"github.com/vilaca/flatrest/internal/api"
	"github.com/vilaca/flatrest/internal/config"
	"github.com/vilaca/flatrest/internal/domain"
	"github.com/vilaca/flatrest/internal/endpoint"
	"github.com/vilaca/flatrest/internal/logging"
	"github.com/vilaca/flatrest/internal/render"
	"github.com/vilaca/flatrest/internal/service"
	"github.com/vilaca/flatrest/internal/store"
)

// app holds the wired dependencies of one command invocation.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	service *service.Service
	cache   *api.CachingTransport
	store   *store.SQLiteStore
	out     render.Renderer
}

// open loads configuration, applies flag overrides and wires the fetcher chain.
// This is the composition root.
func (g *Globals) open() (*app, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if g.BaseURL != "" {
		cfg.BaseURL = g.BaseURL
	}
	if g.Strict {
		cfg.Strict = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := render.ParseFormat(g.Format)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.ParserOptions()
	if err != nil {
		return nil, err
	}
	builder, err := endpoint.New(cfg.BaseURL, cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, out: render.New(format)}

	transport := api.NewTransport(
		api.ClientConfig{UserAgent: cfg.UserAgent},
		&http.Client{Timeout: cfg.Timeout},
		logger.WithPrefix("transport"),
	)
	var mws []api.Middleware
	if cfg.Retries > 0 {
		mws = append(mws, api.WithRetry(cfg.Retries, cfg.RetryBackoff, logger.WithPrefix("retry")))
	}
	mws = append(mws, api.WithConcurrencyLimit(cfg.MaxConcurrent))
	fetcher := api.Chain(transport, mws...)

	if cfg.StoreEnabled() {
		a.store, err = store.Open(cfg.Store.Path, logger.WithPrefix("store"))
		if err != nil {
			return nil, err
		}
	}
	if cfg.CacheEnabled() || a.store != nil {
		cc := api.CacheConfig{Size: cfg.Cache.Size, TTL: cfg.Cache.TTL, StoreMaxAge: cfg.Store.MaxAge}
		if !cfg.CacheEnabled() {
			cc.Size = -1
		}
		if a.store != nil {
			cc.Store = a.store
		}
		a.cache = api.NewCachingTransport(fetcher, cc, logger.WithPrefix("cache"))
		fetcher = a.cache
	}

	a.service, err = service.NewService(service.Config{
		Builder: builder,
		Fetcher: fetcher,
		Parsers: opts,
		Logger:  logger.WithPrefix("service"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Debug("configured",
		"base_url", builder.Root(),
		"batch_size", builder.BatchSize(),
		"cache", cfg.CacheEnabled(),
		"store", cfg.Store.Path,
		"retries", cfg.Retries,
		"strict", cfg.Strict,
		"duplicates", opts.Duplicates,
	)
	return a, nil
}

// Close releases the store, if any.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", "err", err)
		}
	}
}

// emit writes v to stdout in the selected format.
func (a *app) emit(v any) error {
	return a.out.Render(os.Stdout, v)
}

// exitCode maps an error to a process exit status: 2 for invalid input,
// 130 for cancellation, 1 otherwise.
func exitCode(err error) int {
	switch domain.Classify(err) {
	case domain.CodeInvalidQuery:
		return 2
	case domain.CodeCancel:
		return 130
	}
	return 1
}
