package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List ingested source files",
	Args:  cobra.NoArgs,
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

		files, err := st.DistinctSources(cmd.Context())
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No documents ingested.")
			return nil
		}
		for _, f := range files {
			fmt.Println(f)
		}
		fmt.Printf("\n%d distinct files\n", len(files))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
