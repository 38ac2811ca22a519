package agent

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "how": true, "does": true,
	"what": true, "when": true, "where": true, "which": true, "why": true, "who": true,
	"this": true, "that": true, "are": true, "is": true, "was": true, "were": true,
	"from": true, "into": true, "work": true, "works": true, "happens": true, "explain": true,
	"between": true, "difference": true, "compare": true, "versus": true, "about": true,
	"our": true, "their": true, "there": true, "code": true, "codebase": true, "repo": true,
	"get": true, "gets": true, "can": true, "use": true, "used": true, "using": true,
}

var fold = cases.Fold()

// Keywords extracts up to limit distinct search terms from an objective.
func Keywords(objective string, limit int) []string {
	words := strings.FieldsFunc(fold.String(objective), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	seen := map[string]bool{}
	out := make([]string, 0, limit)

	for _, w := range words {
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out
}

// KeywordPattern joins keywords into one alternation regexp.
func KeywordPattern(keywords []string) string {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return strings.Join(quoted, "|")
}
