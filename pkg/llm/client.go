// Package llm wraps a chat-completions-compatible endpoint used for
// two narrow, optional jobs: generating a plain-language explanation
// of a triggered "significant news" event alert, and serving as
// pkg/translator's fallback NL→DSL path when the rule-based translator
// can't confidently parse a query. Both jobs degrade gracefully when
// the client is disabled (checked through Enabled); nothing in the core
// pipeline requires it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dewei/screenradar/pkg/model"
)

type Client struct {
	apiURL    string
	apiKey    string
	modelName string
	enabled   bool
	http      *http.Client
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func New(apiURL, apiKey, modelName string, enabled bool) *Client {
	return &Client{
		apiURL:    apiURL,
		apiKey:    apiKey,
		modelName: modelName,
		enabled:   enabled,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Enabled() bool { return c.enabled }

// Chat satisfies pkg/translator's LLMClient interface: a system
// prompt plus one user message in, one completion out.
func (c *Client) Chat(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	return c.ChatMessages(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userMessage},
	})
}

// ChatMessages sends a chat-completions request and returns the first
// choice's message content.
func (c *Client) ChatMessages(ctx context.Context, messages []Message) (string, error) {
	if !c.enabled {
		return "", fmt.Errorf("llm: client disabled")
	}

	body, err := json.Marshal(chatRequest{Model: c.modelName, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: non-200 response: %s", respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("llm: unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// GenerateNewsAnalysis explains why a news item might move a ticker —
// used by the alertengine's significant_news event check.
func (c *Client) GenerateNewsAnalysis(ctx context.Context, news *model.NewsEvent) (string, error) {
	messages := []Message{
		{Role: "system", Content: "You are an equity analyst. Explain briefly why a news item might move a stock's price."},
		{Role: "user", Content: fmt.Sprintf("Ticker: %s\nHeadline: %s\nSummary: %s", news.Symbol, news.Title, news.Summary)},
	}
	return c.ChatMessages(ctx, messages)
}

// GenerateAlertExplanation explains a triggered alert in plain
// language, for inclusion in the notification body.
func (c *Client) GenerateAlertExplanation(ctx context.Context, ticker string, kind model.AlertKind, conditionSummary string) (string, error) {
	messages := []Message{
		{Role: "system", Content: "You are an equity analyst. Explain briefly why a triggered stock alert condition matters."},
		{Role: "user", Content: fmt.Sprintf("Ticker %s triggered a %s alert: %s", ticker, kind, conditionSummary)},
	}
	return c.ChatMessages(ctx, messages)
}
