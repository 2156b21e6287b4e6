package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/ericfisherdev/sungazer/internal/adapter/driven/connectors"
	"github.com/ericfisherdev/sungazer/internal/adapter/driven/prom"
	sqliteadapter "github.com/ericfisherdev/sungazer/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/sungazer/internal/application"
	"github.com/ericfisherdev/sungazer/internal/config"
	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// app holds the wired adapters and services shared by serve and fetch.
type app struct {
	db          *sqliteadapter.DB
	sites       *sqliteadapter.SiteRepo
	devices     *sqliteadapter.DeviceRepo
	energy      *sqliteadapter.EnergyRepo
	ledgerStore *sqliteadapter.LedgerRepo
	credentials *sqliteadapter.CredentialRepo

	factory   *connectors.Factory
	observer  *prom.Observer
	provider  *application.CredentialProvider
	scheduler *application.Scheduler
	manual    *application.ManualFetcher
}

// newLogger builds the process logger from the log_format and log_level settings.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openDB opens the database and applies migrations.
func openDB(ctx context.Context, cfg *config.Config) (*sqliteadapter.DB, error) {
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", cfg.DBPath)

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("migrations complete")

	return db, nil
}

// newApp opens the database and wires every adapter and service.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		db:          db,
		sites:       sqliteadapter.NewSiteRepo(db),
		devices:     sqliteadapter.NewDeviceRepo(db),
		energy:      sqliteadapter.NewEnergyRepo(db),
		ledgerStore: sqliteadapter.NewLedgerRepo(db),
		credentials: sqliteadapter.NewCredentialRepo(db, cfg.EncryptionKey),
		factory:     connectors.New(connectorConfig(cfg)),
		observer:    prom.NewObserver(),
	}

	if !cfg.HasEncryptionKey() {
		slog.Info("no encryption key configured, using environment credentials only")
	}
	a.provider = application.NewCredentialProvider(a.credentials, cfg.Credentials)

	ledger := application.NewFetchLedger(a.ledgerStore, cfg.DefaultCooldown)
	orchestrator := application.NewOrchestrator(
		a.factory,
		a.sites,
		a.devices,
		a.energy,
		ledger,
		application.OrchestratorConfig{
			MaxDetailSites:     cfg.MaxDetailSites,
			EnergyLookbackDays: cfg.EnergyLookbackDays,
		},
		application.WithObserver(a.observer),
		application.WithLogger(slog.Default()),
	)
	a.scheduler = application.NewScheduler(orchestrator, a.provider, cfg.PollInterval)
	a.manual = application.NewManualFetcher(orchestrator, a.provider, a.sites, a.scheduler, slog.Default())

	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// connectorConfig maps the vendor settings onto the connector factory.
func connectorConfig(cfg *config.Config) connectors.Config {
	vendor := func(v model.Vendor) connectors.VendorConfig {
		s := cfg.Vendors[v]
		return connectors.VendorConfig{
			BaseURL:     s.BaseURL,
			MinInterval: s.MinInterval,
			DailyQuota:  s.DailyQuota,
		}
	}

	return connectors.Config{
		SolarEdge:     vendor(model.VendorSolarEdge),
		Enphase:       vendor(model.VendorEnphase),
		Generac:       vendor(model.VendorGenerac),
		EnphaseAppKey: cfg.EnphaseAppKey,
		Timeout:       cfg.RequestTimeout,
	}
}
