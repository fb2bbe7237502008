// Package chromemstore implements the chunk store on chromem-go, an embedded
// vector database. It serves offline/local use and tests without Postgres.
//
// chromem does not expose document enumeration, so per-source chunk counts
// are tracked in a JSON sidecar next to the database directory. Similarity
// search is exhaustive, which makes the candidate pool parameter moot here.
package chromemstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"course-rag/internal/config"
	"course-rag/internal/store"
)

// Store is a chromem-backed chunk store.
type Store struct {
	db        *chromem.DB
	coll      *chromem.Collection
	dim       int
	batchSize int

	mu          sync.Mutex
	sources     map[string]int
	sourcesPath string
}

var _ store.Store = (*Store)(nil)

// New opens (or creates) the database under cfg.Path, or an in-memory one.
func New(cfg *config.StoreConfig, dim int) (*Store, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
	}
	s := &Store{
		db:        db,
		dim:       dim,
		batchSize: store.DefaultBatchSize,
		sources:   map[string]int{},
	}
	if !cfg.InMemory {
		s.sourcesPath = filepath.Join(cfg.Path, cfg.Collection+".sources.json")
		if err := s.loadSources(); err != nil {
			return nil, err
		}
	}
	coll, err := db.GetOrCreateCollection(cfg.Collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	s.coll = coll
	return s, nil
}

// Setup is satisfied by collection creation in New; chromem has no separate
// index build step.
func (s *Store) Setup(ctx context.Context) error { return nil }

// WriteBatch adds records in bounded batches. A failed batch is retried
// document by document so the result names the records that were lost.
func (s *Store) WriteBatch(ctx context.Context, records []store.Record) (store.BatchResult, error) {
	var res store.BatchResult
	if err := store.CheckDimensions(records, s.dim); err != nil {
		return res, err
	}
	written := map[string]int{}
	for start := 0; start < len(records); start += s.batchSize {
		end := min(start+s.batchSize, len(records))
		batch := records[start:end]
		docs := make([]chromem.Document, len(batch))
		for i, r := range batch {
			docs[i] = toDocument(r)
		}
		if err := s.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err == nil {
			res.Written += len(batch)
			for _, r := range batch {
				written[r.SourceFile]++
			}
			continue
		}
		for i, doc := range docs {
			if err := s.coll.AddDocument(ctx, doc); err != nil {
				res.Failures = append(res.Failures, store.RecordFailure{
					SourceFile: batch[i].SourceFile,
					Ordinal:    batch[i].Ordinal,
					Err:        err,
				})
				continue
			}
			res.Written++
			written[batch[i].SourceFile]++
		}
	}
	s.mu.Lock()
	for f, n := range written {
		s.sources[f] += n
	}
	err := s.saveSourcesLocked()
	s.mu.Unlock()
	return res, err
}

// Search compares the query vector against every stored chunk (chromem is
// exhaustive) and returns the top k by cosine similarity.
func (s *Store) Search(ctx context.Context, embedding []float32, k, candidatePool int) ([]store.Match, error) {
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, store expects %d",
			store.ErrDimensionMismatch, len(embedding), s.dim)
	}
	n := s.coll.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	results, err := s.coll.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	matches := make([]store.Match, len(results))
	for i, r := range results {
		ordinal, _ := strconv.Atoi(r.Metadata["ordinal"])
		matches[i] = store.Match{
			Record: store.Record{
				CourseID:   r.Metadata["course_id"],
				SourceFile: r.Metadata["source_file"],
				Ordinal:    ordinal,
				Text:       r.Content,
			},
			Score: float64(r.Similarity),
		}
	}
	return matches, nil
}

// Purge removes every chunk of sourceFile.
func (s *Store) Purge(ctx context.Context, sourceFile string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.sources[sourceFile]
	if s.coll.Count() > 0 {
		if err := s.coll.Delete(ctx, map[string]string{"source_file": sourceFile}, nil); err != nil {
			return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
	}
	delete(s.sources, sourceFile)
	return n, s.saveSourcesLocked()
}

// DistinctSources lists ingested source files, sorted.
func (s *Store) DistinctSources(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := make([]string, 0, len(s.sources))
	for f := range s.sources {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func (s *Store) Close() error { return nil }

func toDocument(r store.Record) chromem.Document {
	return chromem.Document{
		ID:      uuid.NewString(),
		Content: r.Text,
		Metadata: map[string]string{
			"course_id":   r.CourseID,
			"source_file": r.SourceFile,
			"ordinal":     strconv.Itoa(r.Ordinal),
		},
		Embedding: r.Embedding,
	}
}

func (s *Store) loadSources() error {
	data, err := os.ReadFile(s.sourcesPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return json.Unmarshal(data, &s.sources)
}

func (s *Store) saveSourcesLocked() error {
	if s.sourcesPath == "" {
		return nil
	}
	data, err := json.Marshal(s.sources)
	if err != nil {
		return err
	}
	return os.WriteFile(s.sourcesPath, data, 0o644)
}
