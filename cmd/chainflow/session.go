package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/chainflow/internal/cli"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"runs"},
	Short:   "Manage persisted runs",
	Long:    `List, inspect, and remove the runs kept in the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(eng engine) error {
			return cli.ListRuns(cmd.Context(), eng, cmd.OutOrStdout())
		})
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <run-id>",
	Short: "Print the snapshot of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(eng engine) error {
			return cli.InspectRun(cmd.Context(), eng, args[0], cmd.OutOrStdout())
		})
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <run-id>...",
	Short: "Remove one or more runs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(eng engine) error {
			return cli.RemoveRuns(cmd.Context(), eng, args, cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}
