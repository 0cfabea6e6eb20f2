// Package parser converts flat-text response bodies into structured records.
//
// Each grammar has a Parser that reads lines from an io.Reader and never keeps
// state between calls. Malformed lines are skipped unless Options.Strict is
// set, in which case the first one is reported as a *domain.MalformedLineError.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/vilaca/flatrest/internal/domain"
)

// maxLineBytes bounds a single response line.
const maxLineBytes = 4 * 1024 * 1024

// DuplicatePolicy decides what the list parser does with a repeated key.
type DuplicatePolicy int

const (
	// LastWins keeps the value of the last occurrence.
	LastWins DuplicatePolicy = iota
	// FirstWins keeps the value of the first occurrence.
	FirstWins
	// RejectDuplicates fails with a *domain.MalformedLineError.
	RejectDuplicates
)

func (p DuplicatePolicy) String() string {
	switch p {
	case FirstWins:
		return "first"
	case RejectDuplicates:
		return "reject"
	default:
		return "last"
	}
}

// ParseDuplicatePolicy maps "last", "first" or "reject" (alias "error") to a
// policy.
// The empty string selects LastWins.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last":
		return LastWins, nil
	case "first":
		return FirstWins, nil
	case "reject", "error":
		return RejectDuplicates, nil
	}
	return LastWins, fmt.Errorf("unknown duplicate policy %q", s)
}

// Options is shared by every parser.
type Options struct {
	Strict     bool
	Duplicates DuplicatePolicy
}

// Parser turns a response body into a record of type T.
type Parser[T any] interface {
	Grammar() domain.Grammar
	Parse(r io.Reader) (T, error)
	// Empty returns the value Parse would yield for a response with no lines.
	Empty() T
}

// ParseString runs p over text.
func ParseString[T any](p Parser[T], text string) (T, error) {
	return p.Parse(strings.NewReader(text))
}

// malformed returns the error to report for a bad line, or nil when the
// parser is lenient and the line should just be dropped.
func (o Options) malformed(g domain.Grammar, lineNo int, line, reason string) error {
	if !o.Strict {
		return nil
	}
	return &domain.MalformedLineError{Grammar: g, Line: lineNo, Text: line, Reason: reason}
}

// eachLine calls fn for every line of r with trailing "\r" removed.
func eachLine(r io.Reader, fn func(lineNo int, line string) error) error {
	if r == nil {
		return &domain.PreconditionViolation{What: "parser input reader is nil"}
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for sc.Scan() {
		n++
		if err := fn(n, strings.TrimSuffix(sc.Text(), "\r")); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read line %d: %w", n+1, err)
	}
	return nil
}

func isBlank(line string) bool { return strings.TrimSpace(line) == "" }
