package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/chainflow/internal/cli"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [chain]",
	Short: "Export the chain graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of a chain definition. With --run the
diagram highlights the visited steps and the step the run is suspended at.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")
		var name string
		if len(args) > 0 {
			name = args[0]
		}
		if name == "" && runID == "" {
			return fmt.Errorf("graph needs a chain name or --run")
		}
		return withEngine(cmd, func(eng engine) error {
			out, err := cli.Graph(cmd.Context(), eng, name, runID)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("run", "", "Overlay the progress of this run")
}
