package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fedseries/fedseries/internal/observability"
	"github.com/fedseries/fedseries/internal/server"
	"github.com/fedseries/fedseries/internal/source"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server exposing the configured data sources.

Every source whose credentials are configured is registered. SIGINT or
SIGTERM triggers a graceful shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		logger := observability.NewServerLogger(cfg.Logging.Level, "fedseries")
		defer func() { _ = logger.Sync() }()

		metrics := observability.NewMetrics("fedseries")
		hook := metrics.ObserveAttempt

		sources := make(map[string]source.DataSource)
		for _, name := range source.Names() {
			if err := cfg.CheckCredentials(name); err != nil {
				logger.Info("skipping source without credentials", zap.String("source", name))
				continue
			}
			opts := sourceOptions(cfg, logger)
			opts.FRED.OnAttempt = hook
			opts.Haver.OnAttempt = hook
			ds, err := source.New(name, opts)
			if err != nil {
				return err
			}
			defer func() { _ = ds.Close() }()
			sources[name] = ds
		}
		if len(sources) == 0 {
			logger.Warn("no sources have credentials configured; only health and version endpoints will be useful")
		}

		srv := server.New(cfg.Server, logger, metrics, sources)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
