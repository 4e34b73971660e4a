package analysis

import (
	"regexp"
	"strings"
)

// matchEitherFold reports whether either string case-insensitively contains
// the other. This is the fuzzy match used to reconcile extracted list and
// goal names against existing records ("shopping" matches "Shopping List").
// Short names can over-match; callers only use it for merge targeting.
func matchEitherFold(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	la := strings.ToLower(a)
	lb := strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

var whitespaceRunRE = regexp.MustCompile(`\s+`)

// ListCategory derives a category label from a list name: lowercased, with
// whitespace runs replaced by single underscores.
func ListCategory(name string) string {
	return whitespaceRunRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
}
