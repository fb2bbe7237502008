package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the chunk collection and its vector index",
	Long: `Create the storage schema and request the ANN index. Safe to run
repeatedly. With the postgres backend the index may finish building after
this command returns; searches report a retryable error until it does.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Setup(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Vector index requested (dimension %d, cosine similarity).\n", cfg.Embedding.Dimension)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
