// Package llm wraps the generation model endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"course-rag/internal/config"
)

var (
	// ErrUnavailable means the generation call failed or timed out.
	ErrUnavailable = errors.New("generation unavailable")
	// ErrBlocked means the provider filtered the response or returned
	// nothing. An expected condition, not a fault.
	ErrBlocked = errors.New("generation blocked or empty")
)

// Client is a generation model client. Construct one per process and pass it
// to whatever needs it; there is no package-level instance.
type Client struct {
	model   llms.Model
	cfg     *config.GenerationConfig
	timeout time.Duration
}

// New builds a client for an OpenAI-compatible chat completion endpoint.
func New(cfg *config.GenerationConfig) (*Client, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init generation llm: %w", err)
	}
	return &Client{
		model:   model,
		cfg:     cfg,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, nil
}

// Generate sends a system prompt and user message and returns the generated
// text. An empty or filtered response surfaces as ErrBlocked.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}
	callOpts := []llms.CallOption{
		llms.WithTemperature(c.cfg.Temperature),
	}
	if c.cfg.TopP > 0 {
		callOpts = append(callOpts, llms.WithTopP(c.cfg.TopP))
	}
	if c.cfg.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(c.cfg.MaxTokens))
	}

	resp, err := c.model.GenerateContent(callCtx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrBlocked
	}
	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Content) == "" || choice.StopReason == "content_filter" {
		return "", ErrBlocked
	}
	return choice.Content, nil
}
