package prompt

import (
	"regexp"
	"strings"
)

// Sanitized is the cleaned form of a raw completion.
type Sanitized struct {
	CleanText   string
	Suggestions []string
}

// Sanitizer converts raw engine output into display text plus suggestion
// chips. It never fails on malformed input; an absent pattern is a no-op.
type Sanitizer struct {
	markup       Markup
	reasoningRE  *regexp.Regexp
	collapseRE   *regexp.Regexp
	trailChipsRE *regexp.Regexp
	chipRE       *regexp.Regexp
}

// NewSanitizer builds a sanitizer for the given markup conventions.
func NewSanitizer(m Markup) *Sanitizer {
	open := regexp.QuoteMeta(m.ThinkOpen)
	closing := regexp.QuoteMeta(m.ThinkClose)
	return &Sanitizer{
		markup: m,
		// Paired reasoning spans, non-greedy, case-insensitive, spanning newlines.
		reasoningRE:  regexp.MustCompile(`(?is)` + open + `.*?` + closing),
		collapseRE:   regexp.MustCompile(`\n{3,}`),
		trailChipsRE: regexp.MustCompile(`(?:\s*\[[^\[\]\n]+\])+$`),
		chipRE:       regexp.MustCompile(`\[([^\[\]\n]+)\]`),
	}
}

// Sanitize strips reasoning markup and turn delimiters from raw output, then
// splits off a trailing suggestion-chip group from the final non-empty line.
func (s *Sanitizer) Sanitize(raw string) Sanitized {
	text := s.reasoningRE.ReplaceAllString(raw, "")

	// An unterminated opener means generation was cut off mid-reasoning;
	// everything from the marker onward is internal.
	if idx := indexFold(text, s.markup.ThinkOpen); idx >= 0 {
		text = text[:idx]
	}

	text = strings.ReplaceAll(text, s.markup.TurnStart, "")
	text = strings.ReplaceAll(text, s.markup.TurnEnd, "")

	text = s.collapseRE.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	text, suggestions := s.extractSuggestions(text)
	return Sanitized{CleanText: text, Suggestions: suggestions}
}

// extractSuggestions scans only the final non-empty line for a contiguous
// trailing group of [chip] tokens anchored at the line's end. Bracketed text
// anywhere else never produces suggestions.
func (s *Sanitizer) extractSuggestions(text string) (string, []string) {
	lines := strings.Split(text, "\n")
	last := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			last = i
			break
		}
	}
	if last < 0 {
		return text, nil
	}

	line := strings.TrimRight(lines[last], " \t")
	group := s.trailChipsRE.FindString(line)
	if group == "" {
		return text, nil
	}

	var suggestions []string
	for _, m := range s.chipRE.FindAllStringSubmatch(group, -1) {
		suggestions = append(suggestions, strings.TrimSpace(m[1]))
	}

	lines[last] = strings.TrimRight(line[:len(line)-len(group)], " \t")
	text = strings.TrimSpace(strings.Join(lines[:last+1], "\n"))
	return text, suggestions
}

// indexFold is a case-insensitive strings.Index.
func indexFold(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}

// defaultSanitizer handles the package-level Sanitize call.
var defaultSanitizer = NewSanitizer(DefaultMarkup())

// Sanitize cleans raw output using the default markup conventions.
func Sanitize(raw string) Sanitized {
	return defaultSanitizer.Sanitize(raw)
}
