package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/server"
)

func newCollectCmd(g *globals) *cobra.Command {
	var (
		addr       string
		tokens     []string
		privateKey string
		retain     int
		echo       bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run a local ingestion collector",
		Long: `Run a development collector that accepts SDK batches on
/api/{traces,logs,metrics}/ingest and keeps the latest ones in memory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			// Flags override config
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Collector.Addr = addr
			}
			if flags.Changed("tokens") {
				cfg.Collector.Tokens = tokens
			}
			if flags.Changed("private-key") {
				cfg.Collector.PrivateKeyFile = privateKey
			}
			if flags.Changed("retain") {
				cfg.Collector.Retain = retain
			}

			logger, err := g.logger(cfg)
			if err != nil {
				return err
			}

			srv, err := server.New(cfg.Collector, server.Options{Logger: logger, EchoLogs: echo})
			if err != nil {
				return err
			}
			return runUntilSignal(logger, srv.Run, srv.Close)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":4400", "Listen address")
	cmd.Flags().StringSliceVar(&tokens, "tokens", nil, "Accepted tokens (default: any)")
	cmd.Flags().StringVar(&privateKey, "private-key", "", "PEM private key for encrypted payloads")
	cmd.Flags().IntVar(&retain, "retain", 50, "Batches kept per signal")
	cmd.Flags().BoolVar(&echo, "echo", true, "Print received log records")
	return cmd
}

// runUntilSignal runs serve until it fails or SIGINT/SIGTERM arrives, then
// calls shutdown.
func runUntilSignal(logger *zap.Logger, serve func() error, shutdown func(context.Context) error) error {
	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- serve()
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		logger.Info("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return shutdown(ctx)
	case err := <-errChan:
		return err
	}
}
