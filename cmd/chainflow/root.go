package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/chainflow/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "chainflow",
	Short: "Chainflow runs resumable agent chains",
	Long: `Chainflow composes agents into sequential, parallel, loop and router chains.
Runs suspend when an agent misses a parameter and resume later from their snapshot.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands). CHAINFLOW_* variables
	// provide the defaults.
	defaults := cli.ConfigFromEnv()
	flags := rootCmd.PersistentFlags()
	flags.String("dir", defaults.ChainsDir, "Directory containing the chain definitions")
	flags.String("store", defaults.Store, "Run store: memory, file or redis")
	flags.String("store-path", defaults.StorePath, "Directory of the file store (default <dir>/.chainflow/runs)")
	flags.String("redis-url", defaults.RedisURL, "Redis URL of the redis store")
	flags.String("tools", defaults.ToolsPath, "Process tools allow-list")
	flags.String("chat-tool", defaults.ChatTool, "Process tool answering router prompts")
	flags.Bool("debug", defaults.Debug, "Log debug output to stderr")
}

// loadConfig resolves the persistent flags over the environment defaults.
func loadConfig(cmd *cobra.Command) cli.Config {
	cfg := cli.ConfigFromEnv()
	flags := cmd.Flags()
	cfg.ChainsDir, _ = flags.GetString("dir")
	cfg.Store, _ = flags.GetString("store")
	cfg.StorePath, _ = flags.GetString("store-path")
	cfg.RedisURL, _ = flags.GetString("redis-url")
	cfg.ToolsPath, _ = flags.GetString("tools")
	cfg.ChatTool, _ = flags.GetString("chat-tool")
	cfg.Debug, _ = flags.GetBool("debug")
	if flags.Changed("redis-url") && !flags.Changed("store") {
		cfg.Store = cli.StoreRedis
	}
	return cfg
}
