package analysis

import (
	"encoding/json"
	"strings"
)

// NoteItem is one extracted note.
type NoteItem struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ListGroup is one extracted list with its items.
type ListGroup struct {
	ListName string   `json:"listName"`
	Items    []string `json:"items"`
}

// CompletedGoal names a goal the user reported completing.
type CompletedGoal struct {
	Title string `json:"title"`
}

// MindmapNode is one extracted mindmap fact.
type MindmapNode struct {
	Label      string  `json:"label"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Result is the validated shape of one analysis response.
type Result struct {
	Notes          []NoteItem      `json:"notes"`
	ListItems      []ListGroup     `json:"listItems"`
	CompletedGoals []CompletedGoal `json:"completedGoals"`
	MindmapNodes   []MindmapNode   `json:"mindmapNodes"`
}

// rawResult defers per-key decoding so one malformed key doesn't sink the rest.
type rawResult struct {
	Notes          json.RawMessage `json:"notes"`
	ListItems      json.RawMessage `json:"listItems"`
	CompletedGoals json.RawMessage `json:"completedGoals"`
	MindmapNodes   json.RawMessage `json:"mindmapNodes"`
}

// ParseResult turns raw model output into a validated Result, tolerant of
// common formatting noise (markdown fences, stray whitespace). It returns nil
// when the text is not parseable JSON at all; the pipeline treats that as
// nothing-to-apply, not a fatal error. Keys that are missing or not
// array-shaped coerce to empty arrays; item contents pass through unchanged.
func ParseResult(text string) *Result {
	s := strings.TrimSpace(text)
	s = stripFences(s)
	s = strings.TrimSpace(s)

	var raw rawResult
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil
	}

	return &Result{
		Notes:          coerceArray[NoteItem](raw.Notes),
		ListItems:      coerceArray[ListGroup](raw.ListItems),
		CompletedGoals: coerceArray[CompletedGoal](raw.CompletedGoals),
		MindmapNodes:   coerceArray[MindmapNode](raw.MindmapNodes),
	}
}

// stripFences removes an optional leading ```json (or bare ```) opener and an
// optional trailing ``` closer.
func stripFences(s string) string {
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
	}
	return s
}

// coerceArray decodes a raw JSON value into a typed slice, yielding an empty
// slice when the value is absent, null, or not array-shaped.
func coerceArray[T any](raw json.RawMessage) []T {
	out := []T{}
	if len(raw) == 0 {
		return out
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	if items == nil {
		return out
	}
	return items
}
