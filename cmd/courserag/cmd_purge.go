package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge <source-file>",
	Short: "Remove every stored chunk of a source file",
	Args:  cobra.ExactArgs(1),
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

		n, err := st.Purge(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d chunks removed\n", args[0], n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
