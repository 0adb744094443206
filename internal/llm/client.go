// Package llm is a thin client for OpenAI-compatible chat-completion APIs
// (Groq, OpenAI, local gateways). One Client is built at startup and shared
// by the classifier and the formal-letter generator.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrDisabled is returned when no API key or endpoint is configured.
	ErrDisabled = errors.New("llm: client disabled")
	// ErrEmptyReply is returned when the API answers without any choices.
	ErrEmptyReply = errors.New("llm: empty reply")
)

// Config configures the chat-completion endpoint.
type Config struct {
	BaseURL    string        // e.g. https://api.groq.com/openai/v1
	APIKey     string        // bearer token
	Model      string        // e.g. llama-3.3-70b-versatile
	Timeout    time.Duration // per request
	MaxRetries int
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the subset of the chat-completions body we send.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client talks to a chat-completions endpoint.
type Client struct {
	http  *resty.Client
	model string
}

// New builds a Client. A Config without BaseURL or APIKey yields a client
// whose calls return ErrDisabled.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return &Client{}
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(250*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: hc, model: cfg.Model}
}

// Enabled reports whether the client can make calls.
func (c *Client) Enabled() bool { return c != nil && c.http != nil }

// Model returns the configured model name.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// Complete sends a system + user prompt and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, Message{Role: "user", Content: user})

	var out completionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(Request{Model: c.model, Messages: msgs, Temperature: temperature, MaxTokens: maxTokens}).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("llm: request: %w", err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("llm: status %d: %s", resp.StatusCode(), msg)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
