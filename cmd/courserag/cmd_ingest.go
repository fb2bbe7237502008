package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"course-rag/internal/chunker"
	"course-rag/internal/ingest"
)

var (
	flagCourse  string
	flagWorkers int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Chunk, embed, and store documents",
	Long: `Ingest one or more documents (or a directory of them) under a course
identifier. Any prior chunks of the same files are purged first, so
re-ingesting an unchanged file never duplicates its chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		course := strings.TrimSpace(flagCourse)
		if course == "" {
			return fmt.Errorf("a non-empty --course identifier is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		paths, err := ingest.ExpandPaths(args)
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		emb, err := newEmbedder(cfg)
		if err != nil {
			return err
		}
		splitter, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
		if err != nil {
			return err
		}

		pipeline := ingest.New(splitter, emb, st, cfg.RAG.BatchSize, true, log.Logger)
		results, err := pipeline.IngestAll(cmd.Context(), paths, course, flagWorkers)
		for _, res := range results {
			if res.SourceFile == "" {
				continue
			}
			fmt.Printf("%s: %d chunks stored", res.SourceFile, res.Written)
			if res.Purged > 0 {
				fmt.Printf(" (%d stale chunks purged)", res.Purged)
			}
			if len(res.Failures) > 0 {
				fmt.Printf(", %d failed", len(res.Failures))
			}
			fmt.Println()
		}
		return err
	},
}

func init() {
	ingestCmd.Flags().StringVar(&flagCourse, "course", "", "course/corpus identifier (required)")
	ingestCmd.Flags().IntVar(&flagWorkers, "workers", runtime.NumCPU(), "parallel files")
	rootCmd.AddCommand(ingestCmd)
}
