package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/sungazer/internal/adapter/driving/http"
	"github.com/ericfisherdev/sungazer/internal/config"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the polling scheduler and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), c.cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"max_detail_sites", cfg.MaxDetailSites,
		"energy_lookback_days", cfg.EnergyLookbackDays,
	)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.provider.HasAny(ctx) {
		slog.Warn("no vendor credentials configured, cycles will be empty until one is added")
	}

	schedCtx, stopScheduler := context.WithCancel(ctx)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		a.scheduler.Start(schedCtx)
	}()
	// Runs before a.Close: the database stays open until the scheduler loop
	// and every background cycle or on-demand fetch have returned.
	defer func() {
		stopScheduler()
		<-schedDone
		a.scheduler.Wait()
		slog.Info("scheduler drained")
	}()

	apiHandler := httphandler.NewHandler(a.sites, a.devices, a.energy, a.ledgerStore, a.scheduler, a.manual, a.factory, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, a.observer.Handler(), slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	slog.Info("sungazer started", "listen_addr", cfg.ListenAddr, "poll_interval", cfg.PollInterval)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-srvErr:
		slog.Error("http server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
