package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestResolveConfigPrecedence(t *testing.T) {
	cfgPath := writeConfig(t, `db_path: ~/.aide/from-config.db
llm:
  provider: openrouter/openai/gpt-4o-mini
  local_url: http://config-host:8080
`)

	t.Setenv("AIDE_DB", "~/from-env.db")
	t.Setenv("AIDE_LLM", "google/gemini-2.5-flash")

	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: cfgPath,
		CLILLM:     "local/gemma-3n",
		CLIDBPath:  "~/from-cli.db",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}

	if resolved.DBPath.Source != SourceCLI {
		t.Fatalf("expected db path source cli, got %s", resolved.DBPath.Source)
	}
	if resolved.LLMProvider.Source != SourceCLI || resolved.LLMProvider.Value != "local/gemma-3n" {
		t.Fatalf("expected llm provider from cli, got %+v", resolved.LLMProvider)
	}
	if resolved.LocalURL.Source != SourceConfig || resolved.LocalURL.Value != "http://config-host:8080" {
		t.Fatalf("expected local url from config, got %+v", resolved.LocalURL)
	}
}

func TestResolveConfigEnvOverridesFile(t *testing.T) {
	cfgPath := writeConfig(t, `db_path: /tmp/from-config.db
`)
	t.Setenv("AIDE_DB", "/tmp/from-env.db")

	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if resolved.DBPath.Value != "/tmp/from-env.db" || resolved.DBPath.Source != SourceEnv {
		t.Fatalf("expected env db path, got %+v", resolved.DBPath)
	}
	if resolved.DBPath.From != "AIDE_DB" {
		t.Fatalf("expected provenance AIDE_DB, got %q", resolved.DBPath.From)
	}
}

func TestResolveConfigMissingFileOK(t *testing.T) {
	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"),
	})
	if err != nil {
		t.Fatalf("missing config file must not error: %v", err)
	}
	if resolved.DBPath.Value != "" {
		t.Fatalf("expected empty db path, got %+v", resolved.DBPath)
	}
}

func TestResolveConfigMalformedFile(t *testing.T) {
	cfgPath := writeConfig(t, "db_path: [not: valid\n")
	if _, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath}); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestAPIKeyForProviderEnvOverridesConfig(t *testing.T) {
	cfgPath := writeConfig(t, `llm:
  provider: openrouter/openai/gpt-4o-mini
  api_key: config-key
`)
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	k := resolved.APIKeyForProvider("openrouter/some-model")
	if k.Value != "env-key" || k.Source != SourceEnv {
		t.Fatalf("expected env key, got %+v", k)
	}
}

func TestAPIKeyForProviderDefaultFallback(t *testing.T) {
	resolved := ResolvedConfig{LLMKeys: map[string]ResolvedValue{
		"default": {Value: "file-key", Source: SourceConfig},
	}}
	if k := resolved.APIKeyForProvider("google"); k.Value != "file-key" {
		t.Fatalf("expected default key fallback, got %+v", k)
	}
	if k := resolved.APIKeyForProvider(""); k.Value != "" {
		t.Fatalf("empty provider must resolve no key, got %+v", k)
	}
}

func TestExpandUserPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := expandUserPath("~/x.db"); got != filepath.Join(home, "x.db") {
		t.Fatalf("expected home expansion, got %q", got)
	}
	if got := expandUserPath("/abs/x.db"); got != "/abs/x.db" {
		t.Fatalf("absolute path must pass through, got %q", got)
	}
}
