package parser

import (
	"io"
	"strings"

	"github.com/vilaca/flatrest/internal/domain"
)

// FlatFileParser reads one flat-file record. A line starting in column one
// opens a tag (the token before the first space) and an indented line
// continues the most recent tag. Indented lines seen before any tag are dropped.
type FlatFileParser struct {
	Options Options
}

func (FlatFileParser) Grammar() domain.Grammar { return domain.GrammarFlatFile }

func (FlatFileParser) Empty() domain.FlatRecord { return domain.NewFlatRecord() }

func (p FlatFileParser) Parse(r io.Reader) (domain.FlatRecord, error) {
	rec := domain.NewFlatRecord()
	var s flatState
	err := eachLine(r, func(n int, line string) error {
		return s.feed(p.Options, &rec, n, line)
	})
	if err != nil {
		return domain.FlatRecord{}, err
	}
	return rec, nil
}

// FlatFileEntriesParser reads a body holding several records separated by
// "///" lines. Records without any tag are omitted.
type FlatFileEntriesParser struct {
	Options Options
}

func (FlatFileEntriesParser) Grammar() domain.Grammar { return domain.GrammarFlatFile }

func (FlatFileEntriesParser) Empty() []domain.FlatRecord { return []domain.FlatRecord{} }

func (p FlatFileEntriesParser) Parse(r io.Reader) ([]domain.FlatRecord, error) {
	out := []domain.FlatRecord{}
	rec := domain.NewFlatRecord()
	var s flatState
	err := eachLine(r, func(n int, line string) error {
		if strings.TrimSpace(line) == domain.EntryTerminator {
			if rec.Len() > 0 {
				out = append(out, rec)
			}
			rec = domain.NewFlatRecord()
			s.reset()
			return nil
		}
		return s.feed(p.Options, &rec, n, line)
	})
	if err != nil {
		return nil, err
	}
	if rec.Len() > 0 {
		out = append(out, rec)
	}
	return out, nil
}

// flatState tracks the active tag: tag == "" is NoActiveTag.
type flatState struct {
	tag string
}

func (s *flatState) reset() { s.tag = "" }

func (s *flatState) feed(opts Options, rec *domain.FlatRecord, n int, line string) error {
	if isBlank(line) {
		return nil
	}
	if strings.TrimSpace(line) == domain.EntryTerminator {
		s.reset()
		return nil
	}

	if line[0] == ' ' || line[0] == '\t' {
		if s.tag == "" {
			return opts.malformed(domain.GrammarFlatFile, n, line, "continuation without tag")
		}
		rec.Add(s.tag, strings.TrimSpace(line))
		return nil
	}

	tag, rest, _ := strings.Cut(line, " ")
	s.tag = tag
	if rest = strings.TrimSpace(rest); rest != "" {
		rec.Add(tag, rest)
	} else {
		rec.Touch(tag)
	}
	return nil
}

// ParseFlatFile parses text as a single lenient flat-file record.
func ParseFlatFile(text string) (domain.FlatRecord, error) {
	return ParseString[domain.FlatRecord](FlatFileParser{}, text)
}

// ParseFlatFileEntries parses text as a lenient multi-record flat-file body.
func ParseFlatFileEntries(text string) ([]domain.FlatRecord, error) {
	return ParseString[[]domain.FlatRecord](FlatFileEntriesParser{}, text)
}
