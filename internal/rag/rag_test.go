package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-rag/internal/embedder"
	"course-rag/internal/llm"
	"course-rag/internal/store"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func (f *fakeEmbedder) Dimension() int { return len(f.vec) }

type fakeStore struct {
	store.Store
	matches []store.Match
	err     error
	gotK    int
	gotPool int
}

func (f *fakeStore) Search(ctx context.Context, embedding []float32, k, pool int) ([]store.Match, error) {
	f.gotK, f.gotPool = k, pool
	return f.matches, f.err
}

type fakeGenerator struct {
	answer    string
	err       error
	called    bool
	gotSystem string
	gotUser   string
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.called = true
	f.gotSystem = systemPrompt
	f.gotUser = userPrompt
	return f.answer, f.err
}

func match(file string, ordinal int, text string, score float64) store.Match {
	return store.Match{
		Record: store.Record{
			CourseID:   "DATA230",
			SourceFile: file,
			Ordinal:    ordinal,
			Text:       text,
		},
		Score: score,
	}
}

func newResponder(st store.Store, emb *fakeEmbedder, gen *fakeGenerator) *Responder {
	return New(st, emb, gen, Options{}, zerolog.Nop())
}

func TestAnswerHappyPath(t *testing.T) {
	st := &fakeStore{matches: []store.Match{
		match("syllabus.pdf", 3, "late submissions lose 10% per day", 0.91),
		match("syllabus.pdf", 7, "grading is curved", 0.45),
	}}
	gen := &fakeGenerator{answer: "Late submissions lose 10% per day."}
	r := newResponder(st, &fakeEmbedder{vec: []float32{1, 0}}, gen)

	resp, err := r.Answer(context.Background(), "What is the late submission policy?", "")
	require.NoError(t, err)
	assert.Equal(t, KindAnswered, resp.Kind)
	assert.Equal(t, "Late submissions lose 10% per day.", resp.Content)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "syllabus.pdf", resp.Sources[0].SourceFile)
	assert.Equal(t, 0.91, resp.Sources[0].Score)

	assert.Equal(t, 5, st.gotK)
	assert.Equal(t, 100, st.gotPool)
	assert.Equal(t, DefaultSystemPrompt, gen.gotSystem)
	assert.Contains(t, gen.gotUser, "What is the late submission policy?")
	assert.Contains(t, gen.gotUser, "late submissions lose 10% per day")
}

func TestAnswerEmptyStoreSkipsGenerator(t *testing.T) {
	gen := &fakeGenerator{}
	r := newResponder(&fakeStore{}, &fakeEmbedder{vec: []float32{1, 0}}, gen)

	resp, err := r.Answer(context.Background(), "anything", "")
	require.NoError(t, err)
	assert.Equal(t, KindNoContext, resp.Kind)
	assert.Equal(t, NoContextMessage, resp.Content)
	assert.False(t, gen.called, "generator must not be called with no context")
}

func TestAnswerEmbeddingFailurePropagates(t *testing.T) {
	gen := &fakeGenerator{}
	r := newResponder(&fakeStore{}, &fakeEmbedder{err: embedder.ErrUnavailable}, gen)

	_, err := r.Answer(context.Background(), "anything", "")
	assert.ErrorIs(t, err, embedder.ErrUnavailable)
	assert.False(t, gen.called)
}

func TestAnswerStoreFailurePropagates(t *testing.T) {
	r := newResponder(&fakeStore{err: store.ErrIndexNotReady}, &fakeEmbedder{vec: []float32{1}}, &fakeGenerator{})

	_, err := r.Answer(context.Background(), "anything", "")
	assert.ErrorIs(t, err, store.ErrIndexNotReady)
}

func TestAnswerGenerationFailureYieldsFallback(t *testing.T) {
	for _, genErr := range []error{llm.ErrUnavailable, llm.ErrBlocked, errors.New("boom")} {
		st := &fakeStore{matches: []store.Match{match("a.pdf", 0, "context", 0.8)}}
		r := newResponder(st, &fakeEmbedder{vec: []float32{1}}, &fakeGenerator{err: genErr})

		resp, err := r.Answer(context.Background(), "anything", "")
		require.NoError(t, err)
		assert.Equal(t, KindFallback, resp.Kind)
		assert.Equal(t, FallbackMessage, resp.Content)
		assert.NotEmpty(t, resp.Sources)
	}
}

func TestAnswerCustomSystemPrompt(t *testing.T) {
	st := &fakeStore{matches: []store.Match{match("a.pdf", 0, "context", 0.8)}}
	gen := &fakeGenerator{answer: "ok"}
	r := newResponder(st, &fakeEmbedder{vec: []float32{1}}, gen)

	_, err := r.Answer(context.Background(), "q", "You are terse.")
	require.NoError(t, err)
	assert.Equal(t, "You are terse.", gen.gotSystem)
}

func TestBuildContextTagsAndOrder(t *testing.T) {
	matches := []store.Match{
		match("a.pdf", 0, "first chunk", 0.9123),
		match("b.pdf", 1, "second chunk", 0.5),
	}
	ctxStr := BuildContext(matches)

	assert.Contains(t, ctxStr, "Chunk (Score: 0.9123):\nfirst chunk")
	assert.Contains(t, ctxStr, "Chunk (Score: 0.5000):\nsecond chunk")
	assert.Less(t,
		strings.Index(ctxStr, "first chunk"),
		strings.Index(ctxStr, "second chunk"),
		"higher-scored chunk must come first")
	assert.Contains(t, ctxStr, contextSeparator)
}
