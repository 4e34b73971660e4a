package analysis

import (
	"strings"

	"github.com/aide-sh/aide/internal/store"
)

// analysisSystemPrompt instructs the model to return the four-key JSON object
// and nothing else. The response is still parsed defensively, since there is no
// schema negotiation beyond these instructions.
const analysisSystemPrompt = `You are an analysis system for a personal assistant. You read a conversation transcript and extract structured records.

RULES:
1. Extract ONLY information explicitly present in the transcript - never infer or assume
2. Return ONLY a single JSON object, no additional text, no markdown fences
3. Use empty arrays for categories where nothing applies

JSON SCHEMA:
{
  "notes": [{"title": "short title", "body": "the note content"}],
  "listItems": [{"listName": "name of the list", "items": ["item 1", "item 2"]}],
  "completedGoals": [{"title": "goal the user said they completed"}],
  "mindmapNodes": [{"label": "a fact about the user", "category": "values|goals|personality|facts", "confidence": 0.9}]
}

GUIDANCE:
- notes: things the user asked to remember or dictated as a note
- listItems: items the user wants added to a named list (shopping, todo, packing)
- completedGoals: recurring goals the user reported finishing (ran today, meditated)
- mindmapNodes: durable facts about who the user is, what they value, what they aim for`

// BuildRequest renders the user-side prompt for one analysis call over a
// batch of conversation turns.
func BuildRequest(turns []*store.Message) string {
	var b strings.Builder
	b.WriteString("Extract records from this conversation:\n\n---\n")
	b.WriteString(RenderTranscript(turns))
	b.WriteString("---\n\nReturn JSON matching the schema.")
	return b.String()
}

// SystemPrompt returns the analysis system instruction.
func SystemPrompt() string {
	return analysisSystemPrompt
}

// RenderTranscript formats turns as speaker-tagged lines.
func RenderTranscript(turns []*store.Message) string {
	var b strings.Builder
	for _, t := range turns {
		switch t.Role {
		case store.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return b.String()
}
