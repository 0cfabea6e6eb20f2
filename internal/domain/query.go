package domain

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Query describes one remote operation call. Build it with NewQuery; a Query
// is never modified afterwards.
type Query struct {
	op       Operation
	resource string
	entries  []string
	option   string
}

// queryInput carries the validation rules for NewQuery.
type queryInput struct {
	Resource string   `validate:"required"`
	Entries  []string `validate:"omitempty,dive,required"`
}

// NewQuery validates its arguments and returns an immutable Query.
// The entries slice is copied.
func NewQuery(op Operation, resource string, entries []string, option string) (Query, error) {
	if !op.Valid() {
		return Query{}, &InvalidQueryError{Field: "operation", Reason: "unknown operation " + string(op)}
	}
	resource = strings.TrimSpace(resource)
	in := queryInput{Resource: resource, Entries: entries}
	if err := validate.Struct(in); err != nil {
		return Query{}, toInvalidQuery(err)
	}
	if strings.Contains(resource, "/") {
		return Query{}, &InvalidQueryError{Field: "resource", Reason: "must not contain '/'"}
	}

	return Query{
		op:       op,
		resource: resource,
		entries:  append([]string(nil), entries...),
		option:   strings.TrimSpace(option),
	}, nil
}

func toInvalidQuery(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.StructField())
		if strings.HasPrefix(field, "entries[") {
			return &InvalidQueryError{Field: field, Reason: "entry identifier must not be empty"}
		}
		return &InvalidQueryError{Field: field, Reason: "must not be empty"}
	}
	return &InvalidQueryError{Field: "query", Reason: err.Error()}
}

// Operation returns the operation name.
func (q Query) Operation() Operation { return q.op }

// Resource returns the target database or resource identifier.
func (q Query) Resource() string { return q.resource }

// Entries returns a copy of the entry identifiers.
func (q Query) Entries() []string { return append([]string(nil), q.entries...) }

// Option returns the trailing sub-option, or "".
func (q Query) Option() string { return q.option }

// HasEntries reports whether the query carries entry identifiers.
func (q Query) HasEntries() bool { return len(q.entries) > 0 }
