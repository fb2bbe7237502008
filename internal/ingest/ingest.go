// Package ingest runs the ingestion path: extract a document's text, chunk
// it, embed each chunk, and write the records in bounded batches.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"course-rag/internal/chunker"
	"course-rag/internal/embedder"
	"course-rag/internal/extract"
	"course-rag/internal/store"
)

// FileResult summarizes the ingestion of one source file.
type FileResult struct {
	SourceFile string
	// Purged counts the stale chunks removed before re-ingestion.
	Purged   int
	Written  int
	Failures []store.RecordFailure
}

// Pipeline wires the ingestion stages together. Safe for concurrent use
// across distinct files; chunks within one file are processed in order.
type Pipeline struct {
	splitter  *chunker.Splitter
	embedder  embedder.Embedder
	store     store.Store
	batchSize int
	progress  bool
	log       zerolog.Logger
}

func New(splitter *chunker.Splitter, emb embedder.Embedder, st store.Store, batchSize int, progress bool, logger zerolog.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = store.DefaultBatchSize
	}
	return &Pipeline{
		splitter:  splitter,
		embedder:  emb,
		store:     st,
		batchSize: batchSize,
		progress:  progress,
		log:       logger,
	}
}

// IngestFile ingests one document under courseID. All previously stored
// chunks of the same source file are purged first, so re-running ingestion
// on an unchanged file never accumulates stale duplicates.
func (p *Pipeline) IngestFile(ctx context.Context, path, courseID string) (FileResult, error) {
	sourceFile := filepath.Base(path)
	res := FileResult{SourceFile: sourceFile}

	text, err := extract.Text(path)
	if err != nil {
		return res, fmt.Errorf("extract %s: %w", path, err)
	}

	purged, err := p.store.Purge(ctx, sourceFile)
	if err != nil {
		return res, fmt.Errorf("purge %s: %w", sourceFile, err)
	}
	res.Purged = purged

	var bar *progressbar.ProgressBar
	if p.progress {
		bar = progressbar.Default(-1, sourceFile)
		defer bar.Finish()
	}

	batch := make([]store.Record, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		br, err := p.store.WriteBatch(ctx, batch)
		res.Written += br.Written
		res.Failures = append(res.Failures, br.Failures...)
		batch = batch[:0]
		return err
	}

	ordinal := 0
	for chunk := range p.splitter.Split(text) {
		vec, err := p.embedder.Embed(ctx, chunk)
		if err != nil {
			return res, fmt.Errorf("embed %s chunk %d: %w", sourceFile, ordinal, err)
		}
		batch = append(batch, store.Record{
			CourseID:   courseID,
			SourceFile: sourceFile,
			Ordinal:    ordinal,
			Text:       chunk,
			Embedding:  vec,
		})
		ordinal++
		if bar != nil {
			_ = bar.Add(1)
		}
		if len(batch) == p.batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	if len(res.Failures) > 0 {
		p.log.Warn().
			Str("file", sourceFile).
			Int("written", res.Written).
			Int("failed", len(res.Failures)).
			Msg("batch write completed with per-record failures")
	}
	return res, nil
}

// IngestAll ingests paths in parallel, at most workers files at a time.
// Files share no mutable state, so cross-file parallelism is safe; results
// come back in input order.
func (p *Pipeline) IngestAll(ctx context.Context, paths []string, courseID string, workers int) ([]FileResult, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]FileResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			res, err := p.IngestFile(ctx, path, courseID)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// ExpandPaths resolves each argument to ingestable files: a directory
// expands (non-recursively) to its supported files, a file is taken as-is.
func ExpandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if e.IsDir() || !extract.Supported(filepath.Ext(e.Name())) {
				continue
			}
			found = append(found, filepath.Join(arg, e.Name()))
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no ingestable files found")
	}
	return paths, nil
}
