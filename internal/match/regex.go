package match

import (
	"regexp"
	"strings"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
)

// Compile builds a Go regexp from a bson.Regex, translating the supported
// MongoDB option flags (imsxu) the way spec.md §4.3 enumerates them.
//
// i, m, s map directly onto Go's inline (?ims) flags. u is a no-op: Go's
// regexp engine already matches \w/\s etc. against full Unicode. x (extended,
// "ignore unescaped whitespace and # comments in the pattern") has no Go
// equivalent, so it is handled by a small preprocessing pass over the
// pattern text before compilation.
func Compile(rx bson.Regex) (*regexp.Regexp, error) {
	pattern := rx.Pattern
	var inline strings.Builder
	extended := false

	for _, opt := range rx.Options {
		switch opt {
		case 'i', 'm', 's':
			inline.WriteRune(opt)
		case 'u':
			// unicode matching is Go's default behavior
		case 'x':
			extended = true
		default:
			return nil, mongoerr.BadValue("unsupported regex option %q", string(opt))
		}
	}

	if extended {
		pattern = stripExtendedWhitespace(pattern)
	}
	if inline.Len() > 0 {
		pattern = "(?" + inline.String() + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, mongoerr.BadValue("invalid regular expression: %v", err)
	}
	return re, nil
}

// stripExtendedWhitespace removes unescaped whitespace and #-to-end-of-line
// comments from pattern, approximating PCRE's "x" extended mode. It does not
// attempt to special-case character classes, which is an accepted
// simplification for this subset.
func stripExtendedWhitespace(pattern string) string {
	var out strings.Builder
	escaped := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if escaped {
			out.WriteByte(c)
			escaped = false
			continue
		}
		switch c {
		case '\\':
			out.WriteByte(c)
			escaped = true
		case ' ', '\t', '\n', '\r':
			// dropped
		case '#':
			for i < len(pattern) && pattern[i] != '\n' {
				i++
			}
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}
