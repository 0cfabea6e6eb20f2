package endpoint

import (
	"regexp"
	"strings"
)

// SafeChars are left untouched by Escape in addition to ASCII letters, digits and "-._".
const SafeChars = "%/:=&?~#+!$,;'@()*[]"

var escapedScheme = regexp.MustCompile(`(?i)^(https?)%3A//`)

// Escape canonicalises a URL in two steps: percent-encode every byte outside
// the safe set, then restore a scheme prefix that arrived as "http%3A//" or
// "https%3A//".
func Escape(raw string) string {
	return repairScheme(percentEncode(raw))
}

func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isSafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

func isSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_':
		return true
	}
	return strings.IndexByte(SafeChars, c) >= 0
}

func repairScheme(s string) string {
	return escapedScheme.ReplaceAllStringFunc(s, func(m string) string {
		return m[:strings.IndexByte(m, '%')] + "://"
	})
}
