package domain

import (
	"encoding/json"
	"strings"
)

// RawResponse is an unparsed response body together with its HTTP outcome.
type RawResponse struct {
	URL        string
	StatusCode int
	Body       string
}

// Empty reports whether the body is empty after trimming whitespace.
func (r *RawResponse) Empty() bool {
	return r == nil || strings.TrimSpace(r.Body) == ""
}

// ListMapping maps the first column of a list response to its second column.
type ListMapping map[string]string

// FlatRecord is one flat-file entry: each tag maps to its ordered value lines.
type FlatRecord struct {
	Fields map[string][]string
	order  []string
}

// NewFlatRecord returns an empty record.
func NewFlatRecord() FlatRecord {
	return FlatRecord{Fields: make(map[string][]string)}
}

// Touch registers tag without adding a value.
func (r *FlatRecord) Touch(tag string) {
	if r.Fields == nil {
		r.Fields = make(map[string][]string)
	}
	if _, ok := r.Fields[tag]; !ok {
		r.Fields[tag] = []string{}
		r.order = append(r.order, tag)
	}
}

// Add appends value to tag, registering the tag on first use.
func (r *FlatRecord) Add(tag, value string) {
	r.Touch(tag)
	r.Fields[tag] = append(r.Fields[tag], value)
}

// Tags returns the tags in order of first appearance.
func (r FlatRecord) Tags() []string { return append([]string(nil), r.order...) }

// Get returns the value lines of tag.
func (r FlatRecord) Get(tag string) []string { return r.Fields[tag] }

// First returns the first value line of tag, or "".
func (r FlatRecord) First(tag string) string {
	if v := r.Fields[tag]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Len returns the number of distinct tags.
func (r FlatRecord) Len() int { return len(r.Fields) }

// EntryID returns the identifier token of the ENTRY field, or "".
func (r FlatRecord) EntryID() string {
	if f := strings.Fields(r.First("ENTRY")); len(f) > 0 {
		return f[0]
	}
	return ""
}

func (r FlatRecord) MarshalJSON() ([]byte, error) {
	if r.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Fields)
}

// LinkRelation holds both directions of a link response.
// Forward maps a target id to the source ids linking to it; Inverse maps
// each source id to its targets.
type LinkRelation struct {
	Forward map[string][]string `json:"forward"`
	Inverse map[string][]string `json:"inverse"`
}

// NewLinkRelation returns a relation with both maps allocated.
func NewLinkRelation() LinkRelation {
	return LinkRelation{
		Forward: make(map[string][]string),
		Inverse: make(map[string][]string),
	}
}

// Add inserts one (first, second) pair into both maps.
func (l *LinkRelation) Add(first, second string) {
	l.Forward[second] = append(l.Forward[second], first)
	l.Inverse[first] = append(l.Inverse[first], second)
}

// Pairs returns the number of pairs recorded.
func (l LinkRelation) Pairs() int {
	n := 0
	for _, v := range l.Inverse {
		n += len(v)
	}
	return n
}

// Matrix holds the tab-split rows of a tabular response.
type Matrix [][]string

// MergeLists merges per-batch list results in order. A later key overwrites an
// earlier one.
func MergeLists(parts ...ListMapping) ListMapping {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	out := make(ListMapping, size)
	for _, p := range parts {
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}

// MergeLinks merges relations, appending values per key in argument order.
func MergeLinks(parts ...LinkRelation) LinkRelation {
	out := NewLinkRelation()
	for _, p := range parts {
		for k, v := range p.Forward {
			out.Forward[k] = append(out.Forward[k], v...)
		}
		for k, v := range p.Inverse {
			out.Inverse[k] = append(out.Inverse[k], v...)
		}
	}
	return out
}
