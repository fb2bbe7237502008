// Package store defines the chunk store boundary: persistence of embedded
// document chunks and approximate-nearest-neighbor retrieval over them.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the backing store could not be reached.
	ErrUnavailable = errors.New("store unavailable")
	// ErrIndexNotReady means the ANN index is missing or still building.
	// Callers should treat it as retryable, not fatal.
	ErrIndexNotReady = errors.New("vector index not ready")
	// ErrDimensionMismatch means a vector's length differs from the store's
	// configured dimension. Nothing is written when it is returned.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// DefaultBatchSize bounds a single write call. Batching is a throughput
// device only, never a consistency boundary.
const DefaultBatchSize = 64

// Record is one stored chunk: immutable once written, removed only by
// purging its whole source file.
type Record struct {
	CourseID   string
	SourceFile string
	// Ordinal is the chunk's position within its source file, preserved so
	// document order can be reconstructed.
	Ordinal   int
	Text      string
	Embedding []float32
}

// Match is a retrieved record annotated with its cosine similarity score.
type Match struct {
	Record Record
	Score  float64
}

// RecordFailure reports one record that could not be written.
type RecordFailure struct {
	SourceFile string
	Ordinal    int
	Err        error
}

// BatchResult reports how a batched write went. A crash or error partway
// leaves previously written records intact; Failures lists exactly the
// records that did not make it.
type BatchResult struct {
	Written  int
	Failures []RecordFailure
}

// Store persists chunk records and answers similarity queries. Implementations
// provide their own concurrency control; callers add no locking.
type Store interface {
	// Setup creates the collection/schema and requests the ANN index.
	// Index builds may complete asynchronously. Idempotent.
	Setup(ctx context.Context) error

	// WriteBatch persists records in bounded batches. Records whose vectors
	// do not match the configured dimension fail the whole call with
	// ErrDimensionMismatch before anything is written.
	WriteBatch(ctx context.Context, records []Record) (BatchResult, error)

	// Search returns up to k records ordered by non-increasing cosine
	// similarity to the query vector. candidatePool (>= k) is the number of
	// candidates the index examines; larger pools trade latency for recall.
	Search(ctx context.Context, embedding []float32, k, candidatePool int) ([]Match, error)

	// Purge removes every record for sourceFile and reports how many.
	Purge(ctx context.Context, sourceFile string) (int, error)

	// DistinctSources lists the source files currently ingested, sorted.
	DistinctSources(ctx context.Context) ([]string, error)

	Close() error
}

// CheckDimensions validates every record against dim before any write.
func CheckDimensions(records []Record, dim int) error {
	for _, r := range records {
		if len(r.Embedding) != dim {
			return fmt.Errorf("%w: %s chunk %d has %d dimensions, store expects %d",
				ErrDimensionMismatch, r.SourceFile, r.Ordinal, len(r.Embedding), dim)
		}
	}
	return nil
}
