package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/echocomponent"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/federation"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/gateway"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/observability"
)

var adminAddr string

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot a federation process from a manifest",
		Long:  "Load the manifest named by --config, wire up a Rollback Manager, Priority Message Queue, and Execution Loop for each locally hosted component, and serve the admin HTTP surface until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("run: --config is required")
			}

			cfg, err := federation.Load(configPath)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}

			logger := observability.NewLogger(observability.LogConfig{
				Level:      cfg.Log.Level,
				Format:     cfg.Log.Format,
				Filename:   cfg.Log.Filename,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
				Compress:   cfg.Log.Compress,
			})
			slog.SetDefault(logger)

			reg := make(federation.Registry, len(cfg.Components))
			for _, compCfg := range cfg.Components {
				reg[compCfg.ID] = federation.ComponentBinding{
					Component: echocomponent.Echo{Limit: 0},
					Routes: gateway.RouteTable{
						"self": {ComponentId: compCfg.ID},
					},
				}
			}

			metrics := observability.NewEngineMetrics("timewarp")
			bus := observability.NewEventBus(logger, metrics)

			proc, err := federation.Build(cfg, reg, metrics, bus, logger)
			if err != nil {
				return fmt.Errorf("run: building federation process: %w", err)
			}

			admin := observability.NewAdminServer(adminAddr, bus, proc, logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bus.Start(ctx)

			go func() {
				if err := admin.ListenAndServe(ctx); err != nil {
					logger.Error("admin server exited", "error", err)
				}
			}()

			logger.Info("federation process starting", "bind_addr", cfg.BindAddr, "admin_addr", adminAddr, "components", len(cfg.Components))

			if err := proc.Run(ctx); err != nil {
				return fmt.Errorf("run: %w", err)
			}

			bus.Stop()
			logger.Info("federation process stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&adminAddr, "admin-addr", "0.0.0.0:9090", "bind address for the admin HTTP server (healthz, metrics, status, ws)")

	return cmd
}
