// Package chat implements the conversational send path: persist the user
// turn, compose a persona-framed prompt over recent history, run the
// completion engine, sanitize its output, and persist the assistant turn
// with its suggestion chips.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aide-sh/aide/internal/llm"
	"github.com/aide-sh/aide/internal/prompt"
	"github.com/aide-sh/aide/internal/store"
)

// FallbackReply is persisted as the assistant turn when generation fails.
// The user's turn is already durable by then and feeds the next attempt.
const FallbackReply = "Sorry, I wasn't able to come up with a reply just now. Could you try that again?"

// replyMaxTokens bounds a single chat generation.
const replyMaxTokens = 512

// replyTemperature keeps chat responses conversational without drifting.
const replyTemperature = 0.7

// Reply is one completed assistant response.
type Reply struct {
	MessageID   int64
	Text        string
	Suggestions []string
}

// Engine drives chat turns against a store and a completion provider.
type Engine struct {
	store  store.Store
	engine llm.Provider
	markup prompt.Markup
	log    *zap.Logger
}

// New creates a chat engine. A nil logger disables logging.
func New(st store.Store, engine llm.Provider, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:  st,
		engine: engine,
		markup: prompt.DefaultMarkup(),
		log:    log,
	}
}

// Send processes one user utterance and returns the assistant's reply.
//
// The user turn is persisted before anything else so a generation failure
// never loses input. On such a failure Send persists FallbackReply as the
// assistant turn and returns it without an error; only storage failures
// surface to the caller.
func (e *Engine) Send(ctx context.Context, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message text cannot be empty")
	}

	userID, err := e.store.AddMessage(ctx, &store.Message{Role: store.RoleUser, Content: text})
	if err != nil {
		return nil, fmt.Errorf("persisting user turn: %w", err)
	}

	profile, err := e.store.GetProfile(ctx)
	if err != nil {
		e.log.Warn("loading profile for prompt", zap.Error(err))
		profile = nil
	}

	history, err := e.history(ctx, userID)
	if err != nil {
		e.log.Warn("loading history for prompt", zap.Error(err))
		history = nil
	}

	framed := prompt.TurnPromptWithMarkup(e.markup, prompt.PersonaPreamble(profile), history, text)

	raw, err := e.engine.Complete(ctx, framed, llm.CompletionOpts{
		Temperature: replyTemperature,
		MaxTokens:   replyMaxTokens,
		Stop:        []string{e.markup.TurnEnd},
	})
	if err != nil {
		e.log.Warn("chat generation failed", zap.String("provider", e.engine.Name()), zap.Error(err))
		return e.persistReply(ctx, FallbackReply, nil)
	}

	clean := prompt.Sanitize(raw)
	if clean.CleanText == "" {
		e.log.Warn("chat generation produced no visible text",
			zap.String("provider", e.engine.Name()), zap.Int("raw_len", len(raw)))
		return e.persistReply(ctx, FallbackReply, nil)
	}

	return e.persistReply(ctx, clean.CleanText, clean.Suggestions)
}

// history returns the prompt window of turns preceding the just-persisted
// user turn. The new utterance is framed separately by the composer.
func (e *Engine) history(ctx context.Context, beforeID int64) ([]*store.Message, error) {
	recent, err := e.store.RecentMessages(ctx, prompt.HistoryWindow+1)
	if err != nil {
		return nil, err
	}
	out := recent[:0]
	for _, m := range recent {
		if m.ID != beforeID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (e *Engine) persistReply(ctx context.Context, text string, suggestions []string) (*Reply, error) {
	msg := &store.Message{Role: store.RoleAssistant, Content: text}
	if len(suggestions) > 0 {
		payload, err := EncodeSuggestions(suggestions)
		if err != nil {
			e.log.Warn("encoding suggestion payload", zap.Error(err))
		} else {
			msg.Payload = payload
		}
	}

	id, err := e.store.AddMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("persisting assistant turn: %w", err)
	}

	return &Reply{MessageID: id, Text: text, Suggestions: suggestions}, nil
}

// payloadEnvelope is the message payload side-channel schema.
type payloadEnvelope struct {
	Suggestions []string `json:"suggestions"`
}

// EncodeSuggestions serializes suggestion chips for a message payload.
func EncodeSuggestions(suggestions []string) (string, error) {
	raw, err := json.Marshal(payloadEnvelope{Suggestions: suggestions})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeSuggestions extracts suggestion chips from a message payload.
// Empty or malformed payloads yield nil.
func DecodeSuggestions(payload string) []string {
	if payload == "" {
		return nil
	}
	var env payloadEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil
	}
	return env.Suggestions
}
