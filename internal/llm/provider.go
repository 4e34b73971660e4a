// Package llm provides a provider-agnostic completion adapter for aide.
// The chat path and the analysis pipeline both go through the Provider
// interface; the engine behind it may be a local llama.cpp-style server
// or a remote API reached over net/http.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider is the interface for text completions.
type Provider interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Ready reports whether the engine can accept a completion call.
	// A non-nil error is a skip condition for background work, not a fault.
	Ready(ctx context.Context) error
	// Name returns a human-readable provider name (e.g., "local/gemma-3n").
	Name() string
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int      // Max tokens to generate (0 = provider default)
	Temperature float64  // 0.0-2.0 (0 = deterministic)
	Model       string   // Override model for this request (empty = use provider default)
	Format      string   // "json" for structured output, empty for plain text
	System      string   // System prompt (optional; ignored by raw-completion providers)
	Stop        []string // Stop sequences (raw-completion providers only)
}

// Config holds provider configuration.
type Config struct {
	Provider string // "local", "openrouter", "google"
	Model    string // e.g., "gemma-3n-e4b", "openai/gpt-4o-mini"
	APIKey   string // API key (empty = read from env)
	BaseURL  string // Optional URL override
}

// NewProvider creates a completion provider from the given config.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "local":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("AIDE_LOCAL_URL")
		}
		if baseURL == "" {
			baseURL = "http://127.0.0.1:8080"
		}
		model := cfg.Model
		if model == "" {
			model = "gemma-3n"
		}
		return &localProvider{
			model:   model,
			baseURL: strings.TrimRight(baseURL, "/"),
		}, nil

	case "openrouter":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENROUTER_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openrouter provider requires OPENROUTER_API_KEY env var")
		}
		model := cfg.Model
		if model == "" {
			model = "openai/gpt-4o-mini"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
		return &openrouterProvider{
			apiKey:  key,
			model:   model,
			baseURL: baseURL,
		}, nil

	case "google":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		if key == "" {
			key = os.Getenv("GOOGLE_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("google provider requires GEMINI_API_KEY or GOOGLE_API_KEY env var")
		}
		model := cfg.Model
		if model == "" {
			model = "gemini-2.5-flash"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://generativelanguage.googleapis.com/v1beta"
		}
		return &googleProvider{
			apiKey:  key,
			model:   model,
			baseURL: baseURL,
		}, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: local, openrouter, google)", cfg.Provider)
	}
}

// ParseProviderFlag parses a --llm flag value into a Config.
// Format: "provider/model" e.g., "local/gemma-3n", "openrouter/openai/gpt-4o-mini".
// A bare provider name selects that provider's default model.
func ParseProviderFlag(flag string) (Config, error) {
	if flag == "" {
		return Config{Provider: "local"}, nil
	}

	parts := strings.SplitN(flag, "/", 2)
	provider := strings.ToLower(parts[0])

	switch provider {
	case "local", "openrouter", "google":
	default:
		return Config{}, fmt.Errorf("unknown provider %q in --llm flag (supported: local, openrouter, google)", provider)
	}

	cfg := Config{Provider: provider}
	if len(parts) == 2 {
		cfg.Model = parts[1]
	}
	return cfg, nil
}
