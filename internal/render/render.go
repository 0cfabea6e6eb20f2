// Package render writes operation results as JSON or tab-separated text.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/vilaca/flatrest/internal/domain"
)

// Format names an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatTSV  Format = "tsv"
)

// ParseFormat maps "", "json" and "tsv" to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatTSV:
		return FormatTSV, nil
	}
	return "", &domain.InvalidQueryError{Field: "format", Reason: fmt.Sprintf("unknown format %q (use json or tsv)", s)}
}

// ContentType returns the HTTP media type for f.
func (f Format) ContentType() string {
	if f == FormatTSV {
		return "text/tab-separated-values; charset=utf-8"
	}
	return "application/json"
}

// Renderer writes results in one format.
type Renderer interface {
	Render(w io.Writer, v any) error
	Format() Format
}

// New returns the Renderer for f.
func New(f Format) Renderer {
	if f == FormatTSV {
		return TSVRenderer{}
	}
	return JSONRenderer{}
}

// JSONRenderer writes indented JSON.
type JSONRenderer struct{}

func (JSONRenderer) Format() Format { return FormatJSON }

func (JSONRenderer) Render(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// TSVRenderer writes the tab-separated form the remote service itself uses.
// Map-shaped results are sorted by key.
type TSVRenderer struct{}

func (TSVRenderer) Format() Format { return FormatTSV }

func (r TSVRenderer) Render(w io.Writer, v any) error {
	var sb strings.Builder
	switch val := v.(type) {
	case string:
		sb.WriteString(val)
		if val != "" && !strings.HasSuffix(val, "\n") {
			sb.WriteByte('\n')
		}
	case []string:
		for _, s := range val {
			if err := r.Render(&sb, s); err != nil {
				return err
			}
		}
	case []any:
		for _, part := range val {
			if err := r.Render(&sb, part); err != nil {
				return err
			}
		}
	case domain.ListMapping:
		writeList(&sb, val)
	case []domain.ListMapping:
		for _, m := range val {
			writeList(&sb, m)
		}
	case domain.Matrix:
		for _, row := range val {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteByte('\n')
		}
	case domain.FlatRecord:
		writeRecord(&sb, val)
	case []domain.FlatRecord:
		for _, rec := range val {
			writeRecord(&sb, rec)
		}
	case domain.LinkRelation:
		for _, src := range sortedKeys(val.Inverse) {
			for _, dst := range val.Inverse[src] {
				fmt.Fprintf(&sb, "%s\t%s\n", src, dst)
			}
		}
	default:
		return fmt.Errorf("render: no tsv form for %T", v)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeList(sb *strings.Builder, m domain.ListMapping) {
	for _, k := range sortedKeys(m) {
		fmt.Fprintf(sb, "%s\t%s\n", k, m[k])
	}
}

// writeRecord emits "TAG\tvalue" lines in tag order and the "///" terminator.
func writeRecord(sb *strings.Builder, rec domain.FlatRecord) {
	for _, tag := range rec.Tags() {
		values := rec.Get(tag)
		if len(values) == 0 {
			fmt.Fprintf(sb, "%s\t\n", tag)
		}
		for _, v := range values {
			fmt.Fprintf(sb, "%s\t%s\n", tag, v)
		}
	}
	sb.WriteString(domain.EntryTerminator)
	sb.WriteByte('\n')
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
