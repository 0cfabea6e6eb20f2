package parser

import (
	"io"
	"strings"

	"github.com/vilaca/flatrest/internal/domain"
)

// ListParser reads "key<TAB>value" lines into a ListMapping. Each line is split
// on its first tab only, so the value may itself contain tabs.
type ListParser struct {
	Options Options
}

func (ListParser) Grammar() domain.Grammar { return domain.GrammarList }

func (ListParser) Empty() domain.ListMapping { return domain.ListMapping{} }

func (p ListParser) Parse(r io.Reader) (domain.ListMapping, error) {
	out := domain.ListMapping{}
	err := eachLine(r, func(n int, line string) error {
		key, value, ok := strings.Cut(line, "\t")
		if !ok {
			if isBlank(line) {
				return nil
			}
			return p.Options.malformed(domain.GrammarList, n, line, "no tab")
		}
		if _, seen := out[key]; seen {
			switch p.Options.Duplicates {
			case FirstWins:
				return nil
			case RejectDuplicates:
				return &domain.MalformedLineError{Grammar: domain.GrammarList, Line: n, Text: line, Reason: "duplicate key"}
			}
		}
		out[key] = value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ParseList parses text with a lenient, last-wins ListParser.
func ParseList(text string) (domain.ListMapping, error) {
	return ParseString[domain.ListMapping](ListParser{}, text)
}
