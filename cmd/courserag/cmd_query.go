package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"course-rag/internal/llm"
	"course-rag/internal/rag"
)

var flagSystemPrompt string

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Answer a question from ingested course material",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(args[0])
		if question == "" {
			return fmt.Errorf("question must not be empty")
		}

		cfg, err := loadConfig()
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
		gen, err := llm.New(&cfg.Generation)
		if err != nil {
			return err
		}

		responder := rag.New(st, emb, gen, rag.Options{
			TopK:          cfg.RAG.TopK,
			CandidatePool: cfg.RAG.CandidatePool,
		}, log.Logger)

		resp, err := responder.Answer(cmd.Context(), question, flagSystemPrompt)
		if err != nil {
			// Raw cause to the log; the user gets the defined apology.
			log.Error().Err(err).Msg("query failed")
			fmt.Println(rag.FallbackMessage)
			return nil
		}

		fmt.Println(resp.Content)
		if resp.Kind == rag.KindAnswered && len(resp.Sources) > 0 {
			fmt.Println("\nSources:")
			for _, src := range resp.Sources {
				fmt.Printf("  %s (chunk %d, score %.4f)\n", src.SourceFile, src.Ordinal, src.Score)
			}
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&flagSystemPrompt, "system-prompt", "", "override the built-in system prompt")
	rootCmd.AddCommand(queryCmd)
}
