package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"offlineproxy/internal/domain"
	"offlineproxy/internal/interface/handler"
	"offlineproxy/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the caching gateway and the admin server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.manifests.Watch(func(m *domain.Manifest) {
		if _, err := a.container.Register(ctx, *m); err != nil {
			a.logger.Error("Update install failed", err, map[string]interface{}{
				"version": m.Version,
			})
		}
	}); err != nil {
		a.logger.Warn("Manifest watcher disabled", map[string]interface{}{
			"error": err.Error(),
		})
	}

	metricsUseCase := usecase.NewMetricsUseCase(a.metrics, a.logger, usecase.MetricsConfig{
		SaveInterval: cfg.metricsSaveInterval,
	})
	metricsUseCase.Start()
	defer func() {
		if err := metricsUseCase.Stop(); err != nil {
			a.logger.Error("Failed to save metrics", err, nil)
		}
	}()

	tunnel := usecase.NewTunnelUseCase(a.metrics, a.logger)
	gateway := handler.NewGatewayHandler(a.container, tunnel, a.metrics, a.logger, handler.GatewayConfig{
		Upstream: cfg.upstream,
	})
	admin := handler.NewAdminHandler(metricsUseCase, a.container, a.logger)

	gatewayServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.port),
		Handler:           gateway,
		ReadHeaderTimeout: 10 * time.Second,
	}
	adminServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.adminPort),
		Handler:           admin.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 2)
	start := func(name string, srv *http.Server) {
		a.logger.Info("Starting "+name+" server", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go start("gateway", gatewayServer)
	go start("admin", adminServer)

	// 初回インストールを待たずに中継を始める. 完了までは全リクエストを素通しする
	waitInstall := a.installInBackground(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received", nil)
	case runErr = <-serverErr:
		a.logger.Error("Server error", runErr, nil)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := gatewayServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error shutting down gateway server", err, nil)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error shutting down admin server", err, nil)
	}

	cancel()
	waitInstall()

	a.logger.Info("Shutdown complete", nil)
	return runErr
}
