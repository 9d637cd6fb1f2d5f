// Package llm defines the Client interface the Planner and Writer agents
// drive (C1, an external collaborator per the spec) and a concrete
// OpenAI-compatible implementation with retry/backoff on transient
// failures.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message is one turn of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is a single-turn chat completion provider. Streaming, if the
// concrete implementation supports it, is internal plumbing only —
// agent loops never observe partial tokens, per the engine's design.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Config configures the OpenAI-compatible client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
	Backoff     time.Duration
}

type openAIClient struct {
	cfg        Config
	httpClient *http.Client
}

// New constructs a Client against an OpenAI-compatible /chat/completions
// endpoint, following the teacher's minimal raw-HTTP provider rather than
// pulling in the official OpenAI SDK.
func New(cfg Config) Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 300 * time.Millisecond
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return &openAIClient{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Complete sends messages to the configured model, retrying transient
// failures (network errors, 5xx, 429) with exponential backoff up to
// MaxRetries before giving up.
func (c *openAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := c.cfg.BaseURL + "/chat/completions"
	var lastErr error
	tries := c.cfg.MaxRetries + 1
	for attempt := 0; attempt < tries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("build chat request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			lastErr = doErr
		} else {
			out, retryable, parseErr := decodeChatResponse(resp)
			if parseErr == nil {
				return out, nil
			}
			lastErr = parseErr
			if !retryable {
				return "", lastErr
			}
		}

		if attempt < tries-1 {
			select {
			case <-time.After(c.cfg.Backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("chat completion failed after %d attempts: %w", tries, lastErr)
}

func decodeChatResponse(resp *http.Response) (string, bool, error) {
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", true, fmt.Errorf("transient llm error %s: %s", resp.Status, b)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", false, fmt.Errorf("llm request failed %s: %s", resp.Status, b)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", false, errors.New("llm response had no choices")
	}
	return out.Choices[0].Message.Content, false, nil
}
