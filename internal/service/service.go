package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/vilaca/flatrest/internal/api"
	"github.com/vilaca/flatrest/internal/domain"
	"github.com/vilaca/flatrest/internal/endpoint"
	"github.com/vilaca/flatrest/internal/logging"
	"github.com/vilaca/flatrest/internal/parser"
)

// singleEntryOptions may only be requested for one entry at a time.
var singleEntryOptions = map[string]bool{"image": true, "kgml": true, "conf": true}

// rawOptions select get outputs that are not flat-file records.
var rawOptions = map[string]bool{
	"aaseq": true, "ntseq": true, "mol": true, "kcf": true,
	"image": true, "kgml": true, "conf": true, "json": true,
}

// IsRawOption reports whether a get option yields a body that Get cannot
// parse as flat-file records.
func IsRawOption(option string) bool { return rawOptions[option] }

// Config wires the collaborators of a Service.
type Config struct {
	Builder *endpoint.Builder
	Fetcher api.Fetcher
	Parsers parser.Options
	Logger  *log.Logger
}

// Service exposes the remote operations (info, list, find, get, link, conv).
// It holds no mutable state; batches of one call are fetched sequentially.
type Service struct {
	builder *endpoint.Builder
	fetcher api.Fetcher
	opts    parser.Options
	bank    *parser.Bank
	logger  *log.Logger
}

// NewService creates a new service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Builder == nil {
		return nil, fmt.Errorf("service: builder is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("service: fetcher is required")
	}
	return &Service{
		builder: cfg.Builder,
		fetcher: cfg.Fetcher,
		opts:    cfg.Parsers,
		bank:    parser.NewBank(cfg.Parsers),
		logger:  logging.OrDiscard(cfg.Logger),
	}, nil
}

// Info returns the release information text of db.
func (s *Service) Info(ctx context.Context, db string) (string, error) {
	q, err := domain.NewQuery(domain.OpInfo, db, nil, "")
	if err != nil {
		return "", err
	}
	parts, err := run[string](ctx, s, q, nil, parser.TextParser{})
	if err != nil {
		return "", err
	}
	return parts[0], nil
}

// List returns the entry list of db. Extra entries narrow the list (for
// example an organism code), or list the given entries when db is
// endpoint.DBEntries.
func (s *Service) List(ctx context.Context, db string, entries ...string) (domain.ListMapping, error) {
	q, err := domain.NewQuery(domain.OpList, db, entries, "")
	if err != nil {
		return nil, err
	}
	parts, err := run[domain.ListMapping](ctx, s, q, nil, parser.ListParser{Options: s.opts})
	if err != nil {
		return nil, err
	}
	return parts[0], nil
}

// ListTable is List for multi-column lists, keeping every column.
func (s *Service) ListTable(ctx context.Context, db string, entries ...string) (domain.Matrix, error) {
	q, err := domain.NewQuery(domain.OpList, db, entries, "")
	if err != nil {
		return nil, err
	}
	parts, err := run[domain.Matrix](ctx, s, q, nil, parser.MatrixParser{Options: s.opts})
	if err != nil {
		return nil, err
	}
	return parts[0], nil
}

// Find searches db for query. Whitespace in query becomes "+".
func (s *Service) Find(ctx context.Context, db, query, option string) (domain.ListMapping, error) {
	q, err := s.findQuery(db, query, option)
	if err != nil {
		return nil, err
	}
	parts, err := run[domain.ListMapping](ctx, s, q, nil, parser.ListParser{Options: s.opts})
	if err != nil {
		return nil, err
	}
	return parts[0], nil
}

// FindTable is Find keeping every column of the result.
func (s *Service) FindTable(ctx context.Context, db, query, option string) (domain.Matrix, error) {
	q, err := s.findQuery(db, query, option)
	if err != nil {
		return nil, err
	}
	parts, err := run[domain.Matrix](ctx, s, q, nil, parser.MatrixParser{Options: s.opts})
	if err != nil {
		return nil, err
	}
	return parts[0], nil
}

func (s *Service) findQuery(db, query, option string) (domain.Query, error) {
	if strings.TrimSpace(query) == "" {
		return domain.Query{}, &domain.InvalidQueryError{Field: "query", Reason: "must not be empty"}
	}
	return domain.NewQuery(domain.OpFind, db, []string{query}, option)
}

// Get retrieves flat-file entries for ids. The ids are requested in batches of
// at most the builder's batch size, one after another, and the records of all
// batches are returned in request order.
func (s *Service) Get(ctx context.Context, ids []string, option string) ([]domain.FlatRecord, error) {
	if rawOptions[option] {
		return nil, &domain.InvalidQueryError{Field: "option", Reason: option + " output is not a flat-file record; use GetRaw"}
	}
	q, err := s.getQuery(ids, option)
	if err != nil {
		return nil, err
	}
	parts, err := run[[]domain.FlatRecord](ctx, s, q, nil, parser.FlatFileEntriesParser{Options: s.opts})
	if err != nil {
		return nil, err
	}

	var records []domain.FlatRecord
	for _, p := range parts {
		records = append(records, p...)
	}
	if records == nil {
		records = []domain.FlatRecord{}
	}
	return records, nil
}

// GetRaw retrieves ids with option and returns one unparsed body per batch.
func (s *Service) GetRaw(ctx context.Context, ids []string, option string) ([]string, error) {
	q, err := s.getQuery(ids, option)
	if err != nil {
		return nil, err
	}
	return run[string](ctx, s, q, nil, parser.TextParser{})
}

func (s *Service) getQuery(ids []string, option string) (domain.Query, error) {
	if len(ids) == 0 {
		return domain.Query{}, &domain.InvalidQueryError{Field: "entries", Reason: "get needs at least one entry"}
	}
	if singleEntryOptions[option] && len(ids) > 1 {
		return domain.Query{}, &domain.InvalidQueryError{Field: "entries", Reason: option + " accepts a single entry"}
	}
	return domain.NewQuery(domain.OpGet, endpoint.DBEntries, ids, option)
}

// Link returns the cross-references from source to the target database.
// A single request is issued.
func (s *Service) Link(ctx context.Context, target, source string) (domain.LinkRelation, error) {
	q, err := domain.NewQuery(domain.OpLink, target, []string{source}, "")
	if err != nil {
		return domain.LinkRelation{}, err
	}
	parts, err := run[domain.LinkRelation](ctx, s, q, nil, parser.LinkParser{Options: s.opts})
	if err != nil {
		return domain.LinkRelation{}, err
	}
	return parts[0], nil
}

// Conv converts sources to identifiers of target in groups of querySize
// (domain.DefaultConvQuerySize when <= 0). The per-group results are returned
// in order without merging; see ConvMerged.
func (s *Service) Conv(ctx context.Context, target string, sources []string, querySize int) ([]domain.ListMapping, error) {
	if len(sources) == 0 {
		return nil, &domain.InvalidQueryError{Field: "entries", Reason: "conv needs at least one source"}
	}
	if querySize <= 0 {
		querySize = domain.DefaultConvQuerySize
	}
	q, err := domain.NewQuery(domain.OpConv, target, sources, "")
	if err != nil {
		return nil, err
	}
	return run[domain.ListMapping](ctx, s, q, &querySize, parser.ListParser{Options: s.opts})
}

// ConvMerged is Conv with the per-group results merged into one mapping.
func (s *Service) ConvMerged(ctx context.Context, target string, sources []string, querySize int) (domain.ListMapping, error) {
	parts, err := s.Conv(ctx, target, sources, querySize)
	if err != nil {
		return nil, err
	}
	return domain.MergeLists(parts...), nil
}

// Query runs an arbitrary operation and parses every response with the
// parser registered for grammar, returning one value per request. Get
// queries are batched like Get.
func (s *Service) Query(ctx context.Context, op domain.Operation, resource string, entries []string, option string, grammar domain.Grammar) ([]any, error) {
	p, err := s.bank.Lookup(grammar)
	if err != nil {
		return nil, err
	}
	q, err := domain.NewQuery(op, resource, entries, option)
	if err != nil {
		return nil, err
	}
	return run[any](ctx, s, q, nil, parser.AsParser(p))
}

// Grammars lists the grammar names Query accepts.
func (s *Service) Grammars() []domain.Grammar { return s.bank.Grammars() }

// run builds the URLs of q (batched by *batch when non-nil) and fetches and
// parses them strictly in order. The first failure aborts the call and any
// earlier batch results are discarded.
func run[T any](ctx context.Context, s *Service, q domain.Query, batch *int, p parser.Parser[T]) ([]T, error) {
	var (
		urls []string
		err  error
	)
	if batch != nil {
		urls, err = s.builder.BuildBatches(q, *batch)
	} else {
		urls, err = s.builder.Build(q)
	}
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("op", q.Operation(), "op_id", uuid.NewString())
	start := time.Now()
	logger.Debug("start", "resource", q.Resource(), "batches", len(urls))

	out := make([]T, 0, len(urls))
	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			logger.Warn("cancelled", "batch", i+1, "err", err)
			return nil, err
		}
		v, err := api.FetchParsed(ctx, s.fetcher, u, p)
		if err != nil {
			logger.Error("batch failed", "batch", i+1, "of", len(urls), "url", u, "code", domain.Classify(err), "err", err)
			return nil, fmt.Errorf("%s batch %d/%d: %w", q.Operation(), i+1, len(urls), err)
		}
		out = append(out, v)
	}

	logger.Info("finished", "resource", q.Resource(), "batches", len(urls), "dur", time.Since(start).Round(time.Millisecond))
	return out, nil
}
