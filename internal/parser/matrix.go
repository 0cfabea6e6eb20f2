package parser

import (
	"io"
	"strings"

	"github.com/vilaca/flatrest/internal/domain"
)

// MatrixParser splits every line containing a tab into its columns. There is
// no header detection.
type MatrixParser struct {
	Options Options
}

func (MatrixParser) Grammar() domain.Grammar { return domain.GrammarMatrix }

func (MatrixParser) Empty() domain.Matrix { return domain.Matrix{} }

func (p MatrixParser) Parse(r io.Reader) (domain.Matrix, error) {
	out := domain.Matrix{}
	err := eachLine(r, func(n int, line string) error {
		if !strings.Contains(line, "\t") {
			if isBlank(line) {
				return nil
			}
			return p.Options.malformed(domain.GrammarMatrix, n, line, "no tab")
		}
		out = append(out, strings.Split(line, "\t"))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ParseMatrix parses text with a lenient MatrixParser.
func ParseMatrix(text string) (domain.Matrix, error) {
	return ParseString[domain.Matrix](MatrixParser{}, text)
}
