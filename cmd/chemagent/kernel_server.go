package main

import (
	"context"
	"time"

	"chemagent/internal/kernel"
	"chemagent/internal/observability"
	"chemagent/internal/server"

	"github.com/spf13/cobra"
)

func newKernelServerCommand(state *cli) *cobra.Command {
	var (
		spawnGateway bool
		readyTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "kernel-server",
		Short: "Serve Python kernel sessions over HTTP for agents in remote mode",
		Long: `kernel-server owns one Jupyter kernel per conversation and exposes
POST /execute for agents started with --kernel-mode=remote. With
--spawn-gateway it also launches a local Jupyter kernel gateway.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.serveKernels(cmd, spawnGateway, readyTimeout)
		},
	}
	fs := cmd.Flags()
	fs.String("addr", "", "listen address (default :8000)")
	fs.BoolVar(&spawnGateway, "spawn-gateway", false, "start a local jupyter kernelgateway")
	fs.DurationVar(&readyTimeout, "gateway-ready-timeout", 30*time.Second, "how long to wait for the spawned gateway")
	return cmd
}

func (c *cli) serveKernels(cmd *cobra.Command, spawnGateway bool, readyTimeout time.Duration) (err error) {
	ctx := cmd.Context()
	cfg := c.cfg
	logger := c.logger("kernel-server")

	kcfg := kernelConfig(cfg)
	if spawnGateway {
		gateway := &kernel.LocalGateway{ReadyTimeout: readyTimeout, Logger: c.logger("gateway")}
		url, err := gateway.Start(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if serr := gateway.Stop(); serr != nil {
				logger.Warn("Stopping kernel gateway: %v", serr)
			}
		}()
		kcfg.GatewayURL = url
	}

	metrics, err := observability.NewMetricsCollector(cfg.Observability.Metrics)
	if err != nil {
		return err
	}
	defer func() { _ = metrics.Shutdown(context.Background()) }()
	tracer, err := observability.NewTracerProvider(cfg.Observability.Tracing)
	if err != nil {
		return err
	}
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	manager, err := kernel.NewManager(kcfg, kernel.WithLogger(c.logger("kernel")), kernel.WithMetrics(metrics))
	if err != nil {
		return err
	}

	opts := []server.Option{server.WithLogger(logger)}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(metrics))
	}
	srv := server.New(manager, server.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Debug:          cfg.Log.Level == "debug",
	}, opts...)
	logger.Info("Kernel gateway at %s", kcfg.GatewayURL)
	return srv.Run(ctx)
}
