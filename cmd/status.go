package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Load a snapshot and print its summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), snap.Info())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
