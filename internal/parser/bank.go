package parser

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/vilaca/flatrest/internal/domain"
)

// TextParser returns the body unchanged. It serves info and sequence options
// that have no line grammar.
type TextParser struct{}

func (TextParser) Grammar() domain.Grammar { return domain.GrammarText }

func (TextParser) Empty() string { return "" }

func (TextParser) Parse(r io.Reader) (string, error) {
	if r == nil {
		return "", &domain.PreconditionViolation{What: "parser input reader is nil"}
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

// Erased is a Parser with its record type hidden, for selection by name.
type Erased interface {
	Grammar() domain.Grammar
	ParseAny(r io.Reader) (any, error)
	EmptyAny() any
}

type erased[T any] struct {
	p Parser[T]
}

func (e erased[T]) Grammar() domain.Grammar { return e.p.Grammar() }
func (e erased[T]) EmptyAny() any           { return e.p.Empty() }

func (e erased[T]) ParseAny(r io.Reader) (any, error) {
	v, err := e.p.Parse(r)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Erase hides the record type of p.
func Erase[T any](p Parser[T]) Erased { return erased[T]{p: p} }

// AsParser exposes an Erased parser as a Parser[any].
func AsParser(e Erased) Parser[any] { return anyParser{e: e} }

type anyParser struct {
	e Erased
}

func (a anyParser) Grammar() domain.Grammar        { return a.e.Grammar() }
func (a anyParser) Empty() any                     { return a.e.EmptyAny() }
func (a anyParser) Parse(r io.Reader) (any, error) { return a.e.ParseAny(r) }

// Bank is a registry of parsers keyed by grammar name.
type Bank struct {
	mu      sync.RWMutex
	parsers map[domain.Grammar]Erased
}

// NewBank returns a bank holding the built-in grammars configured with opts.
// The flatfile grammar is registered in its multi-entry form.
func NewBank(opts Options) *Bank {
	b := &Bank{parsers: make(map[domain.Grammar]Erased)}
	b.Register(Erase[domain.ListMapping](ListParser{Options: opts}))
	b.Register(Erase[[]domain.FlatRecord](FlatFileEntriesParser{Options: opts}))
	b.Register(Erase[domain.Matrix](MatrixParser{Options: opts}))
	b.Register(Erase[domain.LinkRelation](LinkParser{Options: opts}))
	b.Register(Erase[string](TextParser{}))
	return b
}

// Register adds or replaces the parser for p.Grammar().
func (b *Bank) Register(p Erased) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parsers[p.Grammar()] = p
}

// Lookup returns the parser registered for g.
func (b *Bank) Lookup(g domain.Grammar) (Erased, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.parsers[g]
	if !ok {
		return nil, &domain.InvalidQueryError{Field: "grammar", Reason: fmt.Sprintf("no parser registered for %q", g)}
	}
	return p, nil
}

// Grammars lists the registered grammar names in sorted order.
func (b *Bank) Grammars() []domain.Grammar {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Grammar, 0, len(b.parsers))
	for g := range b.parsers {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
