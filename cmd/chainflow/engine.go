package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/chainflow"
	"github.com/aretw0/chainflow/internal/cli"
)

type engine = *chainflow.Engine

// withEngine builds the engine of the persistent flags, runs fn and releases
// the store.
func withEngine(cmd *cobra.Command, fn func(engine) error, opts ...chainflow.Option) error {
	cfg := loadConfig(cmd)
	eng, closeStore, err := cli.NewEngine(cfg, cli.CreateLogger(cfg.Debug), opts...)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(eng)
}
