package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"course-rag/internal/config"
)

type fakeModel struct {
	resp        *llms.ContentResponse
	err         error
	gotMessages []llms.MessageContent
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.gotMessages = messages
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func newTestClient(model llms.Model) *Client {
	return &Client{
		model:   model,
		cfg:     &config.GenerationConfig{Temperature: 0.7},
		timeout: time.Second,
	}
}

func TestGenerateSuccess(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "an answer"}},
	}}
	c := newTestClient(model)

	out, err := c.Generate(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "an answer", out)

	require.Len(t, model.gotMessages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.gotMessages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.gotMessages[1].Role)
}

func TestGenerateTransportErrorIsUnavailable(t *testing.T) {
	c := newTestClient(&fakeModel{err: errors.New("connection reset")})

	_, err := c.Generate(context.Background(), "system", "user")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGenerateEmptyResponseIsBlocked(t *testing.T) {
	for _, resp := range []*llms.ContentResponse{
		{Choices: nil},
		{Choices: []*llms.ContentChoice{{Content: "   "}}},
		{Choices: []*llms.ContentChoice{{Content: "filtered", StopReason: "content_filter"}}},
	} {
		c := newTestClient(&fakeModel{resp: resp})
		_, err := c.Generate(context.Background(), "system", "user")
		assert.ErrorIs(t, err, ErrBlocked)
	}
}
