package tabular

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanText trims surrounding whitespace and, when nfkc is set, applies
// Unicode NFKC normalization first.
func CleanText(s string, nfkc bool) string {
	if nfkc {
		s = norm.NFKC.String(s)
	}
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.TrimSpace(s)
}
