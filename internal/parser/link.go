package parser

import (
	"io"
	"strings"

	"github.com/vilaca/flatrest/internal/domain"
)

// LinkParser reads two-column link lines into a forward and an inverse map.
// Only lines with exactly two tab-separated fields contribute.
type LinkParser struct {
	Options Options
}

func (LinkParser) Grammar() domain.Grammar { return domain.GrammarLink }

func (LinkParser) Empty() domain.LinkRelation { return domain.NewLinkRelation() }

func (p LinkParser) Parse(r io.Reader) (domain.LinkRelation, error) {
	rel := domain.NewLinkRelation()
	err := eachLine(r, func(n int, line string) error {
		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			if isBlank(line) {
				return nil
			}
			return p.Options.malformed(domain.GrammarLink, n, line, "want 2 fields")
		}
		rel.Add(fields[0], fields[1])
		return nil
	})
	if err != nil {
		return domain.LinkRelation{}, err
	}
	return rel, nil
}

// ParseLink parses text with a lenient LinkParser.
func ParseLink(text string) (domain.LinkRelation, error) {
	return ParseString[domain.LinkRelation](LinkParser{}, text)
}
