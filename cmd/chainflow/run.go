package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/chainflow/internal/cli"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <chain>",
	Short: "Run a chain interactively",
	Long: `Starts a run of the chain and prompts for every parameter it waits for.
In headless mode the run is persisted as soon as it suspends and can be
continued with 'chainflow resume'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptions(cmd)
		opts.Chain = args[0]
		_, err := cli.Execute(cmd.Context(), opts)
		return err
	},
}

// resumeCmd represents the resume command
var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a suspended run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptions(cmd)
		opts.RunID = args[0]
		_, err := cli.Resume(cmd.Context(), opts)
		return err
	},
}

func runOptions(cmd *cobra.Command) cli.RunOptions {
	opts := cli.RunOptions{Config: loadConfig(cmd)}
	opts.Vars, _ = cmd.Flags().GetString("vars")
	opts.Headless, _ = cmd.Flags().GetBool("headless")
	opts.JSON, _ = cmd.Flags().GetBool("json")
	opts.Stdin = cmd.InOrStdin()
	opts.Stdout = cmd.OutOrStdout()
	return opts
}

func init() {
	for _, c := range []*cobra.Command{runCmd, resumeCmd} {
		rootCmd.AddCommand(c)
		c.Flags().String("vars", "", "Initial values as a JSON object")
		c.Flags().Bool("headless", false, "Run in headless mode (no prompts, stop when suspended)")
		c.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")
	}
}
