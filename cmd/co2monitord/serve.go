package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"co2-bank-monitor/config"
	"co2-bank-monitor/internal/api"
	"co2-bank-monitor/internal/notification"
	"co2-bank-monitor/internal/poller"
	"co2-bank-monitor/internal/portal"
)

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := wireApp(cfg, logger)
	if err != nil {
		return err
	}
	if !cfg.Alerts.Notify {
		logger.Info("email notifications disabled; alerts are logged only")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.webpush != nil {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, a.db, a.webpush, logger)
		pool.Start(ctx)
		a.engine.SetDispatcher(pool)
		logger.Info("push notifications enabled", "workers", cfg.WorkerPool.Size)
	}

	transport := portal.NewTransport(cfg.Portal, logger)
	authenticator := portal.NewAuthenticator(cfg.Portal, a.creds, transport, a.clock, logger)
	session := portal.NewSession(authenticator, a.clock, cfg.Poller.TokenMaxAge, logger)
	client := portal.NewClient(cfg.Portal, transport)

	pollerSvc := poller.NewService(cfg.Poller, session, client, a.readings, a.engine, a.clock, a.loc, logger)
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		pollerSvc.Run(ctx)
	}()

	handler := api.NewHandler(api.Deps{
		Snapshots:    pollerSvc,
		Readings:     a.readings,
		Ledger:       a.ledger,
		DB:           a.db,
		Webpush:      a.webpush,
		Clock:        a.clock,
		Location:     a.loc,
		Logger:       logger,
		PlotDays:     cfg.Server.PlotDays,
		Threshold:    cfg.Alerts.LowContentThreshold,
		DashboardURL: cfg.Portal.DashboardURL,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handler, cfg.Server, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping services")
	case err := <-serverErr:
		stop()
		<-pollerDone
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	<-pollerDone

	logger.Info("server gracefully stopped")
	return nil
}
