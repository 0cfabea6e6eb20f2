// Package gateway exposes the remote operations as a small HTTP JSON API.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"

	"github.com/vilaca/flatrest/internal/api"
	"github.com/vilaca/flatrest/internal/domain"
	"github.com/vilaca/flatrest/internal/logging"
	"github.com/vilaca/flatrest/internal/render"
	"github.com/vilaca/flatrest/internal/service"
)

var (
	validate      = validator.New()
	schemaDecoder = schema.NewDecoder()
)

func init() {
	schemaDecoder.IgnoreUnknownKeys(true)
}

// Operations is the subset of *service.Service the gateway calls.
type Operations interface {
	Info(ctx context.Context, db string) (string, error)
	List(ctx context.Context, db string, entries ...string) (domain.ListMapping, error)
	ListTable(ctx context.Context, db string, entries ...string) (domain.Matrix, error)
	Find(ctx context.Context, db, query, option string) (domain.ListMapping, error)
	FindTable(ctx context.Context, db, query, option string) (domain.Matrix, error)
	Get(ctx context.Context, ids []string, option string) ([]domain.FlatRecord, error)
	GetRaw(ctx context.Context, ids []string, option string) ([]string, error)
	Link(ctx context.Context, target, source string) (domain.LinkRelation, error)
	Conv(ctx context.Context, target string, sources []string, querySize int) ([]domain.ListMapping, error)
	ConvMerged(ctx context.Context, target string, sources []string, querySize int) (domain.ListMapping, error)
	Query(ctx context.Context, op domain.Operation, resource string, entries []string, option string, grammar domain.Grammar) ([]any, error)
}

// StatsSource reports cache counters for /healthz.
type StatsSource interface {
	Stats() api.CacheStats
}

// CacheControl drops cached responses for DELETE /cache.
type CacheControl interface {
	Invalidate(url string) bool
	InvalidatePrefix(prefix string) int
	Purge() int
}

// params are the query string options shared by every route.
type params struct {
	Option    string `schema:"option"`
	Format    string `schema:"format" validate:"omitempty,oneof=json tsv"`
	QuerySize int    `schema:"query_size" validate:"gte=0"`
	Merged    bool   `schema:"merged"`
	Table     bool   `schema:"table"`
	Entries   string `schema:"entries"`
	Grammar   string `schema:"grammar"`
	URL       string `schema:"url"`
	Prefix    string `schema:"prefix"`
}

// HandlerConfig holds the dependencies of a Handler.
type HandlerConfig struct {
	Operations Operations
	Stats      StatsSource
	Cache      CacheControl
	Logger     *log.Logger
	Timeout    time.Duration
}

// Handler serves the gateway routes.
type Handler struct {
	ops     Operations
	stats   StatsSource
	cache   CacheControl
	logger  *log.Logger
	timeout time.Duration
}

// NewHandler creates a new Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		ops:     cfg.Operations,
		stats:   cfg.Stats,
		cache:   cfg.Cache,
		logger:  logging.OrDiscard(cfg.Logger),
		timeout: cfg.Timeout,
	}
}

// Router returns a chi router with every route registered.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	if h.timeout > 0 {
		r.Use(middleware.Timeout(h.timeout))
	}
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all HTTP routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/info/{db}", h.handleInfo)
	r.Get("/list/{db}", h.handleList)
	r.Get("/find/{db}/{query}", h.handleFind)
	r.Get("/get/{ids}", h.handleGet)
	r.Get("/link/{target}/{source}", h.handleLink)
	r.Get("/conv/{target}/{source}", h.handleConv)
	r.Get("/query/{op}/{resource}", h.handleQuery)
	r.Delete("/cache", h.handleCacheDelete)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.stats != nil {
		body["cache"] = h.stats.Stats()
	}
	h.write(w, r, render.FormatJSON, body)
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	_, f, ok := h.decode(w, r)
	if !ok {
		return
	}
	text, err := h.ops.Info(r.Context(), chi.URLParam(r, "db"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if f == render.FormatJSON {
		h.write(w, r, f, map[string]string{"info": text})
		return
	}
	h.write(w, r, f, text)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p, f, ok := h.decode(w, r)
	if !ok {
		return
	}
	db := chi.URLParam(r, "db")
	entries := splitEntries(p.Entries)
	if p.Table {
		h.respond(w, r, f)(h.ops.ListTable(r.Context(), db, entries...))
		return
	}
	h.respond(w, r, f)(h.ops.List(r.Context(), db, entries...))
}

func (h *Handler) handleFind(w http.ResponseWriter, r *http.Request) {
	p, f, ok := h.decode(w, r)
	if !ok {
		return
	}
	db, query := chi.URLParam(r, "db"), chi.URLParam(r, "query")
	if p.Table {
		h.respond(w, r, f)(h.ops.FindTable(r.Context(), db, query, p.Option))
		return
	}
	h.respond(w, r, f)(h.ops.Find(r.Context(), db, query, p.Option))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, f, ok := h.decode(w, r)
	if !ok {
		return
	}
	ids := splitEntries(chi.URLParam(r, "ids"))
	if service.IsRawOption(p.Option) {
		bodies, err := h.ops.GetRaw(r.Context(), ids, p.Option)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, b := range bodies {
			_, _ = w.Write([]byte(b))
		}
		return
	}
	h.respond(w, r, f)(h.ops.Get(r.Context(), ids, p.Option))
}

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	_, f, ok := h.decode(w, r)
	if !ok {
		return
	}
	h.respond(w, r, f)(h.ops.Link(r.Context(), chi.URLParam(r, "target"), chi.URLParam(r, "source")))
}

func (h *Handler) handleConv(w http.ResponseWriter, r *http.Request) {
	p, f, ok := h.decode(w, r)
	if !ok {
		return
	}
	target := chi.URLParam(r, "target")
	sources := splitEntries(chi.URLParam(r, "source"))
	if p.Merged {
		h.respond(w, r, f)(h.ops.ConvMerged(r.Context(), target, sources, p.QuerySize))
		return
	}
	h.respond(w, r, f)(h.ops.Conv(r.Context(), target, sources, p.QuerySize))
}

// handleQuery runs any operation with a parser chosen by ?grammar= (text by default).
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	p, f, ok := h.decode(w, r)
	if !ok {
		return
	}
	grammar := domain.Grammar(p.Grammar)
	if grammar == "" {
		grammar = domain.GrammarText
	}
	h.respond(w, r, f)(h.ops.Query(r.Context(),
		domain.Operation(chi.URLParam(r, "op")),
		chi.URLParam(r, "resource"),
		splitEntries(p.Entries),
		p.Option,
		grammar,
	))
}

// handleCacheDelete drops one URL (?url=), every URL under ?prefix=, or the
// whole in-memory tier.
func (h *Handler) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	p, _, ok := h.decode(w, r)
	if !ok {
		return
	}
	if h.cache == nil {
		h.fail(w, r, &domain.InvalidQueryError{Field: "cache", Reason: "no cache configured"})
		return
	}
	var removed int
	switch {
	case p.URL != "":
		if h.cache.Invalidate(p.URL) {
			removed = 1
		}
	case p.Prefix != "":
		removed = h.cache.InvalidatePrefix(p.Prefix)
	default:
		removed = h.cache.Purge()
	}
	h.logger.Info("cache entries dropped", "removed", removed, "url", p.URL, "prefix", p.Prefix)
	h.write(w, r, render.FormatJSON, map[string]int{"removed": removed})
}

// decode parses and validates the query string, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (params, render.Format, bool) {
	var p params
	if err := schemaDecoder.Decode(&p, r.URL.Query()); err != nil {
		h.fail(w, r, &domain.InvalidQueryError{Field: "query string", Reason: err.Error()})
		return p, "", false
	}
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			err = &domain.InvalidQueryError{Field: strings.ToLower(verrs[0].Field()), Reason: "failed " + verrs[0].Tag()}
		}
		h.fail(w, r, err)
		return p, "", false
	}
	f, err := render.ParseFormat(p.Format)
	if err != nil {
		h.fail(w, r, err)
		return p, "", false
	}
	return p, f, true
}

// respond adapts a (value, error) pair into a written response.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, f render.Format) func(any, error) {
	return func(v any, err error) {
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.write(w, r, f, v)
	}
}

// write renders v into a buffer first so a render failure still yields a 500.
func (h *Handler) write(w http.ResponseWriter, r *http.Request, f render.Format, v any) {
	var buf bytes.Buffer
	if err := render.New(f).Render(&buf, v); err != nil {
		h.fail(w, r, fmt.Errorf("render %s: %w", f, err))
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("failed to write response", "path", r.URL.Path, "err", err)
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error          string      `json:"error"`
	Code           domain.Code `json:"code"`
	UpstreamStatus int         `json:"upstream_status,omitempty"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.Classify(err)
	body := errorBody{Error: err.Error(), Code: code}
	var remote *domain.RemoteRequestError
	if errors.As(err, &remote) {
		body.UpstreamStatus = remote.StatusCode
	}

	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "code", code, "err", err)
	} else {
		h.logger.Debug("request rejected", "path", r.URL.Path, "code", code, "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := render.New(render.FormatJSON).Render(w, body); err != nil {
		h.logger.Error("failed to render error", "err", err)
	}
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(code domain.Code) int {
	switch code {
	case domain.CodeInvalidQuery:
		return http.StatusBadRequest
	case domain.CodeRemote, domain.CodeNetwork, domain.CodeMalformed:
		return http.StatusBadGateway
	case domain.CodeCancel:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"dur", time.Since(start).Round(time.Microsecond),
			"req_id", middleware.GetReqID(r.Context()),
		)
	})
}

// splitEntries splits a "+" or "," separated entry list, dropping blanks.
func splitEntries(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' })
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Addr formats a listen address for port.
func Addr(port int) string { return fmt.Sprintf(":%d", port) }
