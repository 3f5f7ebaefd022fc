package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/chainflow"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of chainflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chainflow version %s\n", strings.TrimSpace(chainflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
