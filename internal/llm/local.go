package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// localProvider implements Provider against a llama.cpp-style local server.
// The prompt is sent as-is to the raw /completion endpoint; turn framing is
// the caller's responsibility, which is exactly what the prompt composer
// produces for on-device models.
type localProvider struct {
	model   string
	baseURL string
	client  http.Client
}

type localRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict,omitempty"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
	CachePrompt bool     `json:"cache_prompt"`
}

type localResponse struct {
	Content string `json:"content"`
	Stop    bool   `json:"stop"`
	Model   string `json:"model"`
}

func (l *localProvider) Name() string {
	return "local/" + l.model
}

// Ready probes the server's health endpoint. llama.cpp returns 503 while the
// model is still loading.
func (l *localProvider) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", l.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("local engine unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("local engine not ready (status %d)", resp.StatusCode)
	}
	return nil
}

func (l *localProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	req := localRequest{
		Prompt:      prompt,
		Temperature: opts.Temperature,
		Stop:        opts.Stop,
		CachePrompt: true,
	}
	if opts.MaxTokens > 0 {
		req.NPredict = opts.MaxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", l.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("local engine error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var lResp localResponse
	if err := json.Unmarshal(respBody, &lResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}

	if lResp.Content == "" {
		return "", fmt.Errorf("empty response from local engine")
	}

	return lResp.Content, nil
}
