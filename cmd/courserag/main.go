// Command courserag ingests course documents into a vector store and
// answers questions about them with retrieval-augmented generation.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"course-rag/internal/config"
	"course-rag/internal/embedder"
	"course-rag/internal/store"
	"course-rag/internal/store/chromemstore"
	"course-rag/internal/store/pgstore"
)

var (
	flagConfig  string
	flagStore   string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:           "courserag",
	Short:         "Retrieval-augmented Q&A over course material",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		level := zerolog.InfoLevel
		if flagVerbose {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Caller().Logger()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "./configs/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "store backend: postgres or chromem (default from config)")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "debug logging")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagStore != "" {
		cfg.Store.Driver = flagStore
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	log.Debug().Interface("config", cfg).Msg("loaded config")
	return cfg, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return pgstore.New(&cfg.Store, cfg.Embedding.Dimension)
	case "chromem":
		return chromemstore.New(&cfg.Store, cfg.Embedding.Dimension)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

func newEmbedder(cfg *config.Config) (*embedder.Service, error) {
	return embedder.New(&cfg.Embedding)
}
