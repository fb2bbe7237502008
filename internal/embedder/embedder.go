// Package embedder maps text to fixed-dimension dense vectors via an
// external embedding model.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"course-rag/internal/config"
)

// ErrUnavailable covers every embedding failure: transport errors, timeouts
// after retry, and vectors of unexpected dimension.
var ErrUnavailable = errors.New("embedding unavailable")

// Embedder produces a fixed-dimension vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// queryEmbedder is the slice of langchaingo's EmbedderImpl the service
// needs; a narrow interface keeps the retry path testable.
type queryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Service wraps a model client with a per-call timeout, a single retry on
// transient failure, and dimension validation.
type Service struct {
	client  queryEmbedder
	dim     int
	timeout time.Duration
	backoff time.Duration
}

var _ Embedder = (*Service)(nil)

// New builds a Service from the configured provider.
func New(cfg *config.ModelConfig) (*Service, error) {
	var client *embeddings.EmbedderImpl
	var err error
	switch cfg.Provider {
	case "", "openai":
		client, err = newOpenAIEmbedder(cfg)
	case "ollama":
		client, err = newOllamaEmbedder(cfg)
	default:
		err = fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &Service{
		client:  client,
		dim:     cfg.Dimension,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		backoff: time.Second,
	}, nil
}

func newOpenAIEmbedder(cfg *config.ModelConfig) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init embedding llm: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

func newOllamaEmbedder(cfg *config.ModelConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("init embedding llm: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// Dimension reports the vector length the configured model produces.
func (s *Service) Dimension() int { return s.dim }

// Embed returns the embedding vector for text. Transient failures are
// retried once after a short backoff before surfacing ErrUnavailable. A
// vector of unexpected dimension is a configuration-level fault and also
// surfaces as ErrUnavailable.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedOnce(ctx, text)
	if err != nil && retryable(err) {
		log.Warn().Err(err).Msg("embedding call failed, retrying")
		select {
		case <-time.After(s.backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
		vec, err = s.embedOnce(ctx, text)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(vec) != s.dim {
		return nil, fmt.Errorf("%w: model returned %d dimensions, expected %d",
			ErrUnavailable, len(vec), s.dim)
	}
	return vec, nil
}

func (s *Service) embedOnce(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.EmbedQuery(callCtx, text)
}

func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
