// Package rag implements the retrieval-augmented responder: embed the query,
// fetch the most similar stored chunks, and condition the generation model on
// them.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"course-rag/internal/embedder"
	"course-rag/internal/llm"
	"course-rag/internal/store"
)

// DefaultSystemPrompt instructs the model to answer only from the supplied
// context and to decline when the context is insufficient. This is a
// prompt-level contract; generated answers remain unverified text.
const DefaultSystemPrompt = `You are an expert teaching assistant for this course.
Your goal is to answer student questions accurately by synthesizing information found only within the provided course material context.

Instructions:
- Carefully analyze the provided context from course material.
- Formulate a concise answer to the student query using only the relevant information from the context.
- Do not repeat large portions of the context verbatim; synthesize the key information needed to answer the query.
- If the context does not contain the information needed to answer the query, clearly state that the answer is not available in the provided course material.
- Do not add information that is not present in the context.
- If the query is unclear or ambiguous, ask for clarification.
- If the query is off-topic or inappropriate, politely decline to answer.`

// User-facing sentinel texts. Callers must branch on Response.Kind; these
// strings are presentation only.
const (
	NoContextMessage = "No relevant context found in the course material."
	FallbackMessage  = "I could not generate a response based on the provided information."
)

const contextSeparator = "\n---\n"

// Kind tags the outcome of a query so callers branch on an explicit value
// instead of matching answer text.
type Kind int

const (
	// KindAnswered carries a synthesized answer.
	KindAnswered Kind = iota
	// KindNoContext means retrieval found nothing; the generator was never
	// called and Content holds NoContextMessage.
	KindNoContext
	// KindFallback means generation failed or was filtered; Content holds
	// FallbackMessage.
	KindFallback
)

// SourceRef names a chunk that contributed to the answer.
type SourceRef struct {
	SourceFile string
	Ordinal    int
	Score      float64
}

// Response is the tagged outcome of a query.
type Response struct {
	Kind    Kind
	Content string
	Sources []SourceRef
}

// Generator is the slice of the llm client the responder needs.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Responder answers queries against the chunk store.
type Responder struct {
	store    store.Store
	embedder embedder.Embedder
	gen      Generator
	topK     int
	pool     int
	log      zerolog.Logger
}

// Options tune retrieval. Zero values take the usual defaults.
type Options struct {
	TopK          int
	CandidatePool int
}

func New(st store.Store, emb embedder.Embedder, gen Generator, opts Options, logger zerolog.Logger) *Responder {
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}
	pool := opts.CandidatePool
	if pool < topK {
		pool = 100
	}
	return &Responder{store: st, embedder: emb, gen: gen, topK: topK, pool: pool, log: logger}
}

// Answer runs the query path. Embedding and store failures propagate as
// their error kinds so the caller can log them; generation failure is an
// expected condition and comes back as KindFallback with a nil error.
func (r *Responder) Answer(ctx context.Context, query, systemPrompt string) (Response, error) {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return Response{}, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.store.Search(ctx, queryEmbedding, r.topK, r.pool)
	if err != nil {
		return Response{}, fmt.Errorf("search chunks: %w", err)
	}
	if len(matches) == 0 {
		return Response{Kind: KindNoContext, Content: NoContextMessage}, nil
	}

	sources := make([]SourceRef, len(matches))
	for i, m := range matches {
		sources[i] = SourceRef{
			SourceFile: m.Record.SourceFile,
			Ordinal:    m.Record.Ordinal,
			Score:      m.Score,
		}
	}

	answer, err := r.gen.Generate(ctx, systemPrompt, userPrompt(matches, query))
	if err != nil {
		// Blocked or failed generation still yields a defined answer for the
		// end user; the raw cause goes to the log.
		r.log.Error().Err(err).Str("query", query).Msg("generation failed")
		return Response{Kind: KindFallback, Content: FallbackMessage, Sources: sources}, nil
	}

	return Response{Kind: KindAnswered, Content: answer, Sources: sources}, nil
}

// BuildContext joins retrieved chunks, highest score first, each tagged with
// its similarity score.
func BuildContext(matches []store.Match) string {
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = fmt.Sprintf("Chunk (Score: %.4f):\n%s", m.Score, m.Record.Text)
	}
	return strings.Join(parts, contextSeparator)
}

func userPrompt(matches []store.Match, query string) string {
	return fmt.Sprintf(`Context from course material:
---
%s
---

Student Query: %s

Response:`, BuildContext(matches), query)
}

var _ Generator = (*llm.Client)(nil)
