package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aktagon/llmkit/anthropic"
	anthropictypes "github.com/aktagon/llmkit/anthropic/types"
)

// Provider is one LLM backend able to complete a prompt. Provider
// selection and credentials are configuration, not core logic.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderConfig carries the knobs shared by all provider kinds.
type ProviderConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// NewProvider builds a provider by tag. Unknown tags default to the
// OpenAI-compatible wire format, which most hosted providers speak.
func NewProvider(tag string, cfg ProviderConfig) (Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("provider %q: model must be set", tag)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	switch tag {
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider anthropic: api key must be set")
		}
		return &anthropicProvider{cfg: cfg}, nil
	case "ollama":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434"
		}
		return &ollamaProvider{cfg: cfg, client: defaultClient}, nil
	default:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %q: api key must be set", tag)
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.openai.com/v1"
		}
		return &openAIProvider{tag: tag, cfg: cfg, client: defaultClient}, nil
	}
}

// anthropicProvider wraps llmkit's Anthropic client. llmkit calls are not
// context-aware, so the call runs in a goroutine and the result is
// abandoned on cancellation.
type anthropicProvider struct {
	cfg ProviderConfig
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		settings := anthropictypes.RequestSettings{
			Model:       p.cfg.Model,
			MaxTokens:   p.cfg.MaxTokens,
			Temperature: p.cfg.Temperature,
		}
		resp, err := anthropic.PromptWithSettings("", prompt, "", p.cfg.APIKey, settings)
		if err != nil {
			done <- result{err: fmt.Errorf("anthropic prompt: %w", err)}
			return
		}
		if len(resp.Content) == 0 {
			done <- result{err: fmt.Errorf("anthropic: empty response")}
			return
		}
		done <- result{text: strings.TrimSpace(resp.Content[0].Text)}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("anthropic call canceled: %w", ctx.Err())
	case r := <-done:
		return r.text, r.err
	}
}

// openAIProvider speaks the OpenAI-compatible chat completions format.
type openAIProvider struct {
	tag    string
	cfg    ProviderConfig
	client *http.Client
}

func (p *openAIProvider) Name() string { return p.tag }

func (p *openAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":       p.cfg.Model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"max_tokens":  p.cfg.MaxTokens,
		"temperature": p.cfg.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimSuffix(p.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", p.tag, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%s status %d: %s", p.tag, resp.StatusCode, snippet)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices", p.tag)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// ollamaProvider calls a local Ollama daemon.
type ollamaProvider struct {
	cfg    ProviderConfig
	client *http.Client
}

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) Complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":  p.cfg.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"num_predict": p.cfg.MaxTokens,
			"temperature": p.cfg.Temperature,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimSuffix(p.cfg.BaseURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama status %d", resp.StatusCode)
	}
	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(parsed.Response), nil
}

// defaultClient keeps a shared timeout for providers constructed without
// an explicit HTTP client.
var defaultClient = &http.Client{Timeout: 120 * time.Second}
