// Package chunker splits raw document text into bounded, overlapping token
// windows sized for the embedding and generation models.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding is the BPE encoding used for all token accounting. GPT-4-class
// models share cl100k_base, so chunk boundaries line up with what the
// downstream models see.
const Encoding = "cl100k_base"

var ErrBounds = errors.New("chunker: max tokens must be greater than overlap")

// Tokenizer converts between text and token ids. The production
// implementation wraps tiktoken; tests substitute a deterministic fake.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t tiktokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Splitter produces chunks of at most maxTokens tokens, consecutive chunks
// sharing overlap tokens of context.
type Splitter struct {
	tok       Tokenizer
	maxTokens int
	overlap   int
}

// New returns a Splitter backed by the cl100k_base encoding.
func New(maxTokens, overlap int) (*Splitter, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("chunker: load encoding: %w", err)
	}
	return NewWithTokenizer(tiktokenizer{enc: enc}, maxTokens, overlap)
}

// NewWithTokenizer is New with an explicit tokenizer.
func NewWithTokenizer(tok Tokenizer, maxTokens, overlap int) (*Splitter, error) {
	if overlap < 0 || maxTokens <= overlap {
		return nil, fmt.Errorf("%w: max=%d overlap=%d", ErrBounds, maxTokens, overlap)
	}
	return &Splitter{tok: tok, maxTokens: maxTokens, overlap: overlap}, nil
}

// MaxTokens reports the configured window size.
func (s *Splitter) MaxTokens() int { return s.maxTokens }

// CountTokens reports the token length of text.
func (s *Splitter) CountTokens(text string) int {
	return len(s.tok.Encode(text))
}

// Split yields fixed token windows over text. Chunk i starts at token offset
// i*(maxTokens-overlap), so the last overlap tokens of each chunk reappear at
// the head of the next one. Every input token lands in at least one chunk;
// the final chunk may be short. Empty input yields nothing. The sequence is
// lazy and restartable.
func (s *Splitter) Split(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		toks := s.tok.Encode(text)
		step := s.maxTokens - s.overlap
		for i := 0; i < len(toks); i += step {
			end := min(i+s.maxTokens, len(toks))
			if !yield(s.tok.Decode(toks[i:end])) {
				return
			}
		}
	}
}

// SplitParagraphs yields chunks that prefer paragraph boundaries: paragraphs
// are accumulated until the next one would push the chunk past the token
// budget. A single paragraph that alone exceeds the budget falls back to
// fixed windows so the window bound still holds.
func (s *Splitter) SplitParagraphs(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if text == "" {
			return
		}
		var buf []string
		var ntok int
		flush := func() bool {
			if len(buf) == 0 {
				return true
			}
			ok := yield(strings.Join(buf, "\n\n"))
			buf, ntok = nil, 0
			return ok
		}
		sepTokens := len(s.tok.Encode("\n\n"))
		for _, para := range strings.Split(text, "\n\n") {
			t := len(s.tok.Encode(para))
			if t > s.maxTokens {
				if !flush() {
					return
				}
				for chunk := range s.Split(para) {
					if !yield(chunk) {
						return
					}
				}
				continue
			}
			cost := t
			if len(buf) > 0 {
				cost += sepTokens
			}
			if ntok+cost > s.maxTokens && len(buf) > 0 {
				if !flush() {
					return
				}
				cost = t
			}
			buf = append(buf, para)
			ntok += cost
		}
		flush()
	}
}
