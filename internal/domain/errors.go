package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinels usable with errors.Is against the typed errors below.
var (
	ErrInvalidQuery  = errors.New("invalid query")
	ErrRemoteRequest = errors.New("remote request failed")
	ErrPrecondition  = errors.New("precondition violated")
	ErrMalformedLine = errors.New("malformed line")
)

// InvalidQueryError is a local validation failure detected before any network call.
type InvalidQueryError struct {
	Field  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s: %s", e.Field, e.Reason)
}

func (e *InvalidQueryError) Is(target error) bool { return target == ErrInvalidQuery }

// RemoteRequestError is returned when the service answers with a non-2xx status.
type RemoteRequestError struct {
	StatusCode int
	URL        string
	Body       string // leading part of the response body, for diagnosis
}

func (e *RemoteRequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API returned status %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("API returned status %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *RemoteRequestError) Is(target error) bool { return target == ErrRemoteRequest }

// PreconditionViolation signals a programming error in the caller, such as a nil reader.
type PreconditionViolation struct {
	What string
}

func (e *PreconditionViolation) Error() string {
	return "precondition violated: " + e.What
}

func (e *PreconditionViolation) Is(target error) bool { return target == ErrPrecondition }

// MalformedLineError is only produced by parsers running in strict mode.
type MalformedLineError struct {
	Grammar Grammar
	Line    int // 1-based
	Text    string
	Reason  string
}

func (e *MalformedLineError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: malformed line %d: %q", e.Grammar, e.Line, e.Text)
	}
	return fmt.Sprintf("%s: malformed line %d (%s): %q", e.Grammar, e.Line, e.Reason, e.Text)
}

func (e *MalformedLineError) Is(target error) bool { return target == ErrMalformedLine }

// Code is a coarse error category used by logs and the HTTP gateway.
type Code string

const (
	CodeUnknown      Code = "unknown"
	CodeInvalidQuery Code = "invalid_query"
	CodeRemote       Code = "remote"
	CodeNetwork      Code = "network"
	CodeCancel       Code = "cancel"
	CodeMalformed    Code = "malformed"
	CodePrecondition Code = "precondition"
)

// Classify maps an error to its category. Only sentinels and standard error
// types are inspected, never message text.
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	switch {
	case errors.Is(err, ErrInvalidQuery):
		return CodeInvalidQuery
	case errors.Is(err, ErrRemoteRequest):
		return CodeRemote
	case errors.Is(err, ErrMalformedLine):
		return CodeMalformed
	case errors.Is(err, ErrPrecondition):
		return CodePrecondition
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return CodeCancel
		}
		return CodeNetwork
	}
	return CodeUnknown
}
