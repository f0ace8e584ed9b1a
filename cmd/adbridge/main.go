package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/adbridge-lab/adbridge/internal/callback"
	"github.com/adbridge-lab/adbridge/internal/config"
	"github.com/adbridge-lab/adbridge/internal/ecpm"
	"github.com/adbridge-lab/adbridge/internal/migrations"
	"github.com/adbridge-lab/adbridge/internal/report"
	"github.com/adbridge-lab/adbridge/internal/server"
	"github.com/adbridge-lab/adbridge/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "adbridge.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"server", cfg.Server,
		"reporting_enabled", cfg.Reporting.Enabled,
		"ad_sources", cfg.Network.AdSources)

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 2.2. Seed the client directory if a seed file is configured
	if err := postgres.SeedClients(context.Background(), dbAdapter.DB(), cfg.Directory.SeedFile); err != nil {
		slog.Error("Failed to seed client directory", "error", err)
		os.Exit(1)
	}

	aggStore := postgres.NewAggregateAdapter(dbAdapter.DB())

	// 3. Initialize the callback dispatcher
	forwarder := callback.NewHTTPForwarder(cfg.Callback.Timeout())
	callbackSvc := callback.NewService(dbAdapter, dbAdapter, forwarder, callback.Options{
		PrivateKey:         cfg.Network.PrivateKey,
		EnforceIPAllowList: cfg.Network.EnforceIPAllowList,
		AllowedIPs:         cfg.Network.AllowedIPs,
	})

	// 4. Initialize the eCPM read API
	ecpmSvc := ecpm.NewService(dbAdapter, aggStore)

	// 5. Initialize the daily reporting pipeline
	var scheduler *report.Scheduler
	if cfg.Reporting.Enabled {
		sink, err := report.NewCSVSink(cfg.Reporting.SheetDir)
		if err != nil {
			slog.Error("Failed to open reporting sheet directory", "error", err)
			os.Exit(1)
		}

		fetcher := report.NewFetcher(
			cfg.Network.AuthURL,
			cfg.Network.ReportURL,
			report.NetworkCredentials{
				SecretKey:    cfg.Network.SecretKey,
				RefreshToken: cfg.Network.RefreshToken,
			},
			cfg.Network.Timeout(),
		)
		job := report.NewJob(fetcher, sink, aggStore, cfg.Network.AdSources)

		scheduler, err = report.NewScheduler(job, cfg.Reporting.RunAt, cfg.Reporting.RunOnStart)
		if err != nil {
			slog.Error("Failed to initialize reporting scheduler", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("Reporting disabled by config")
	}

	// 6. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	callbackSvc.RegisterRoutes(srv.Engine)
	ecpmSvc.RegisterRoutes(srv.Engine)

	// 7. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if scheduler != nil {
		go func() {
			if err := scheduler.Start(ctx); err != nil {
				slog.Error("Reporting scheduler stopped with error", "error", err)
			}
		}()
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
