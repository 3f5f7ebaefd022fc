package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that every chain compiles",
	Long:  `Loads the chain definitions and builds each one, reporting unknown agents and invalid routes or conditions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(eng engine) error {
			names := eng.Definitions()
			for _, name := range names {
				if _, err := eng.Build(name); err != nil {
					return fmt.Errorf("validation failed: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d chain(s) valid.\n", len(names))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
