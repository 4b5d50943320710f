package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/shiftdeck/shiftdeck/pkg/api"
	"github.com/shiftdeck/shiftdeck/pkg/audit"
	"github.com/shiftdeck/shiftdeck/pkg/config"
	"github.com/shiftdeck/shiftdeck/pkg/observability"
	"github.com/shiftdeck/shiftdeck/pkg/sso"
	"github.com/shiftdeck/shiftdeck/pkg/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("shiftdeck exited")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database.
	connections, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:   cfg.Database.URL,
		ReplicaURLs:  cfg.Database.ReplicaURLList(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnLifetime: cfg.Database.ConnLifetime,
	}, log)
	if err != nil {
		return err
	}
	defer connections.Close()
	connections.StartHealthCheckRoutine(ctx, 0)

	db := connections.Primary()
	if err := postgres.RunMigrations(ctx, db, log); err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	deps := api.Dependencies{DB: db, Metrics: metrics}

	// Redis is optional; without it rate limiting stays in-process.
	if cfg.Redis.Enabled() {
		redisClient, err := postgres.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		deps.Redis = redisClient
	}

	// Audit sink and retention.
	auditLogger, err := audit.NewDBLogger(db, log, metrics)
	if err != nil {
		return err
	}
	defer auditLogger.Close()
	deps.AuditLogger = auditLogger

	retention := audit.NewRetentionJob(audit.NewStore(db), audit.RetentionPolicy{
		RetentionDays: cfg.Audit.RetentionDays,
		Schedule:      cfg.Audit.CleanupSchedule,
	}, log)
	if err := retention.Start(); err != nil {
		return err
	}
	defer retention.Stop()

	if cfg.SSO.Enabled {
		provider, err := sso.NewOIDCProvider(ctx, sso.Config{
			IssuerURL:    cfg.SSO.IssuerURL,
			ClientID:     cfg.SSO.ClientID,
			ClientSecret: cfg.SSO.ClientSecret,
			RedirectURL:  cfg.SSO.RedirectURL,
			Scopes:       cfg.SSO.Scopes,
		})
		if err != nil {
			return err
		}
		deps.SSOProvider = provider
	}

	server, err := api.NewServer(cfg, log, deps)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(server.ListenAndServe)
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")
		return server.Shutdown(context.Background())
	})

	return group.Wait()
}
