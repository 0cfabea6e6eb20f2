// Package endpoint composes request URLs for the flat-text REST service.
package endpoint

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/vilaca/flatrest/internal/domain"
)

// DBEntries as a query resource means the entries are already qualified
// ("hsa:10458") and no database segment is emitted.
const DBEntries = "dbentries"

var whitespace = regexp.MustCompile(`\s`)

// Builder turns queries into escaped request URLs under a base root.
type Builder struct {
	root      string
	batchSize int
}

// New returns a Builder for root. A batchSize <= 0 selects
// domain.MaxEntriesPerRequest.
func New(root string, batchSize int) (*Builder, error) {
	u, err := url.Parse(root)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", root, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: want http(s)://host", root)
	}
	if batchSize <= 0 {
		batchSize = domain.MaxEntriesPerRequest
	}
	return &Builder{root: strings.TrimRight(root, "/"), batchSize: batchSize}, nil
}

// Root returns the base URL without a trailing slash.
func (b *Builder) Root() string { return b.root }

// BatchSize returns the per-request entry cap used for get queries.
func (b *Builder) BatchSize() int { return b.batchSize }

// Build returns the URLs for q. Get queries are split into groups of at most
// BatchSize entries, one URL per group; every other operation yields one URL.
func (b *Builder) Build(q domain.Query) ([]string, error) {
	if q.Operation() == domain.OpGet {
		return b.BuildBatches(q, b.batchSize)
	}
	u, err := b.build(q, q.Entries())
	if err != nil {
		return nil, err
	}
	return []string{u}, nil
}

// BuildBatches partitions the entries of q into groups of size and returns one
// URL per group, in order.
func (b *Builder) BuildBatches(q domain.Query, size int) ([]string, error) {
	if !q.HasEntries() {
		return nil, &domain.InvalidQueryError{Field: "entries", Reason: string(q.Operation()) + " needs at least one entry"}
	}
	plan, err := domain.Partition(q.Entries(), size)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, plan.Len())
	for i := 0; i < plan.Len(); i++ {
		u, err := b.build(q, plan.Group(i))
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

func (b *Builder) build(q domain.Query, entries []string) (string, error) {
	if q.Resource() == "" {
		return "", &domain.InvalidQueryError{Field: "resource", Reason: "must not be empty"}
	}

	segments := []string{string(q.Operation())}
	switch q.Operation() {
	case domain.OpInfo:
		segments = append(segments, q.Resource())

	case domain.OpFind:
		if len(entries) != 1 {
			return "", &domain.InvalidQueryError{Field: "entries", Reason: "find takes exactly one query string"}
		}
		segments = append(segments, q.Resource(), whitespace.ReplaceAllString(entries[0], domain.EntrySeparator))

	case domain.OpGet:
		segments = append(segments, strings.Join(qualify(q.Resource(), entries), domain.EntrySeparator))

	case domain.OpLink, domain.OpConv:
		if len(entries) == 0 {
			return "", &domain.InvalidQueryError{Field: "entries", Reason: string(q.Operation()) + " needs a source"}
		}
		segments = append(segments, q.Resource(), strings.Join(entries, domain.EntrySeparator))

	default:
		if q.Resource() == DBEntries && len(entries) == 0 {
			return "", &domain.InvalidQueryError{Field: "entries", Reason: "dbentries needs at least one entry"}
		}
		if q.Resource() != DBEntries {
			segments = append(segments, q.Resource())
		}
		if len(entries) > 0 {
			segments = append(segments, strings.Join(entries, domain.EntrySeparator))
		}
	}
	if q.Option() != "" {
		segments = append(segments, q.Option())
	}

	return Escape(b.root + "/" + strings.Join(segments, "/")), nil
}

// qualify prefixes bare entries with db unless db is DBEntries.
func qualify(db string, entries []string) []string {
	if db == DBEntries {
		return entries
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		if strings.Contains(e, ":") {
			out[i] = e
		} else {
			out[i] = db + ":" + e
		}
	}
	return out
}
