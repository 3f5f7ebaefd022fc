package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/aretw0/chainflow"
	"github.com/aretw0/chainflow/internal/cli"
	httpAdapter "github.com/aretw0/chainflow/pkg/adapters/http"
	"github.com/aretw0/chainflow/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Exposes the chains over a JSON API: start, inspect, resume and stream runs. Prometheus metrics are served on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		cfg := loadConfig(cmd)
		logger := cli.CreateLogger(cfg.Debug)

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := observability.NewMetrics(reg)
		if err != nil {
			return err
		}

		return withEngine(cmd, func(eng engine) error {
			handler, err := httpAdapter.NewHandler(eng,
				httpAdapter.WithLogger(logger),
				httpAdapter.WithRegistry(reg),
			)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              ":" + port,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Channel to listen for errors coming from the listener.
			serverErrors := make(chan error, 1)
			go func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Starting chainflow server on %s\n", srv.Addr)
				fmt.Fprintf(cmd.OutOrStdout(), "Serving chains from: %s\n", cfg.ChainsDir)
				serverErrors <- srv.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
				fmt.Fprintln(cmd.OutOrStdout(), "\nStart shutdown...")

				// Give outstanding requests a deadline for completion.
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					_ = srv.Close()
					return fmt.Errorf("graceful shutdown did not complete: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Chainflow server stopped gracefully")
				return nil
			}
		}, chainflow.WithMetrics(metrics))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
}
