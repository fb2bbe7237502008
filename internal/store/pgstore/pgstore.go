// Package pgstore implements the chunk store on Postgres with the pgvector
// extension. Similarity search runs through an HNSW cosine index.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"course-rag/internal/config"
	"course-rag/internal/store"
)

type chunkRow struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`

	ID         int64   `bun:"id,pk,autoincrement"`
	CourseID   string  `bun:"course_id,notnull"`
	SourceFile string  `bun:"source_file,notnull"`
	Ordinal    int     `bun:"ordinal,notnull"`
	Text       string  `bun:"text,notnull"`
	Embedding  string  `bun:"embedding,notnull"`
	Score      float64 `bun:"score,scanonly"`
}

// Store is a Postgres-backed chunk store.
type Store struct {
	db        *bun.DB
	dim       int
	batchSize int
}

var _ store.Store = (*Store)(nil)

// New connects to Postgres and wraps the connection with bun.
func New(cfg *config.StoreConfig, dim int) (*Store, error) {
	opts := []pgdriver.Option{
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithTimeout(30 * time.Second),
	}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return &Store{db: db, dim: dim, batchSize: store.DefaultBatchSize}, nil
}

// Setup creates the vector extension, the chunks table, and the HNSW cosine
// index. The index build runs inside Postgres; until it exists, searches
// report ErrIndexNotReady.
func (s *Store) Setup(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id BIGSERIAL PRIMARY KEY,
			course_id TEXT NOT NULL,
			source_file TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.dim),
		"CREATE INDEX IF NOT EXISTS chunks_source_file_idx ON chunks (source_file)",
		"CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks USING hnsw (embedding vector_cosine_ops)",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

// WriteBatch inserts records in batches. A bulk insert that fails is retried
// record by record so the result reports exactly which records made it.
func (s *Store) WriteBatch(ctx context.Context, records []store.Record) (store.BatchResult, error) {
	var res store.BatchResult
	if err := store.CheckDimensions(records, s.dim); err != nil {
		return res, err
	}
	for start := 0; start < len(records); start += s.batchSize {
		end := min(start+s.batchSize, len(records))
		batch := records[start:end]
		rows := make([]chunkRow, len(batch))
		for i, r := range batch {
			rows[i] = toRow(r)
		}
		if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err == nil {
			res.Written += len(batch)
			continue
		}
		// Bulk insert failed; find the individual culprits.
		for i, r := range batch {
			row := toRow(r)
			if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
				mapped := mapErr(err)
				res.Failures = append(res.Failures, store.RecordFailure{
					SourceFile: r.SourceFile,
					Ordinal:    r.Ordinal,
					Err:        mapped,
				})
				if errors.Is(mapped, store.ErrUnavailable) {
					// The store is gone, not the record; stop hammering it.
					for _, rest := range batch[i+1:] {
						res.Failures = append(res.Failures, store.RecordFailure{
							SourceFile: rest.SourceFile,
							Ordinal:    rest.Ordinal,
							Err:        mapped,
						})
					}
					return res, mapped
				}
				continue
			}
			res.Written++
		}
	}
	return res, nil
}

// Search runs ANN retrieval over the HNSW index. candidatePool maps onto
// hnsw.ef_search, the number of candidates the index examines before
// selecting the top k. Ties break on insertion order via the id column.
func (s *Store) Search(ctx context.Context, embedding []float32, k, candidatePool int) ([]store.Match, error) {
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, store expects %d",
			store.ErrDimensionMismatch, len(embedding), s.dim)
	}
	if candidatePool < k {
		candidatePool = k
	}
	vec := vectorLiteral(embedding)

	var rows []chunkRow
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", candidatePool)); err != nil {
			return err
		}
		return tx.NewSelect().
			Model(&rows).
			Column("course_id", "source_file", "ordinal", "text").
			ColumnExpr("1 - (c.embedding <=> ?) AS score", vec).
			OrderExpr("c.embedding <=> ?", vec).
			OrderExpr("c.id ASC").
			Limit(k).
			Scan(ctx)
	})
	if err != nil {
		return nil, mapErr(err)
	}

	matches := make([]store.Match, len(rows))
	for i, row := range rows {
		matches[i] = store.Match{
			Record: store.Record{
				CourseID:   row.CourseID,
				SourceFile: row.SourceFile,
				Ordinal:    row.Ordinal,
				Text:       row.Text,
			},
			Score: row.Score,
		}
	}
	return matches, nil
}

// Purge deletes every chunk of sourceFile.
func (s *Store) Purge(ctx context.Context, sourceFile string) (int, error) {
	res, err := s.db.NewDelete().
		Model((*chunkRow)(nil)).
		Where("source_file = ?", sourceFile).
		Exec(ctx)
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DistinctSources lists ingested source files.
func (s *Store) DistinctSources(ctx context.Context) ([]string, error) {
	var files []string
	err := s.db.NewSelect().
		Model((*chunkRow)(nil)).
		ColumnExpr("DISTINCT source_file").
		OrderExpr("source_file").
		Scan(ctx, &files)
	if err != nil {
		return nil, mapErr(err)
	}
	return files, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func toRow(r store.Record) chunkRow {
	return chunkRow{
		CourseID:   r.CourseID,
		SourceFile: r.SourceFile,
		Ordinal:    r.Ordinal,
		Text:       r.Text,
		Embedding:  vectorLiteral(r.Embedding),
	}
}

// vectorLiteral renders a vector in pgvector's input syntax, e.g. [1,2.5,3].
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec)*10 + 2)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// SQLSTATE classes we care about: 42xxx means a relation, type, or index is
// missing (setup not run or the index build failed), class 08 and 57 are
// connection trouble.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch code := pgErr.Field('C'); {
		case strings.HasPrefix(code, "42"):
			return fmt.Errorf("%w: %v", store.ErrIndexNotReady, err)
		case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "57"):
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
