// Command atelier runs the studio access API: invitation-gated
// registration, role management and the session state machine over the
// configured identity provider.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/atelierhq/atelier/config"
	"github.com/atelierhq/atelier/internal/bootstrap"
	"github.com/atelierhq/atelier/internal/devseed"
)

func main() {
	logger := bootstrap.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("atelier exited with error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // top-level exit after cleanup.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logger.Info("starting atelier",
		"auth_mode", cfg.Auth.Mode,
		"addr", cfg.HTTP.Addr,
		"dev", cfg.IsDev,
	)

	db, redisClient, err := initInfrastructure(&cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("closing database failed", "error", closeErr)
		}
	}()
	if redisClient != nil {
		defer func() {
			if closeErr := redisClient.Close(); closeErr != nil {
				logger.Error("closing redis failed", "error", closeErr)
			}
		}()
	}

	if cfg.Postgres.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	}

	if cfg.IsDev && cfg.Auth.Mode == config.AuthModeMock {
		if err := devseed.Run(ctx, devseed.NewServices(db, logger), cfg.Auth.DevAuth.Accounts, logger); err != nil {
			logger.Warn("dev seeding incomplete", "error", err)
		}
	}

	provider, err := bootstrap.NewIdentityProvider(bootstrap.AuthProviderConfig{
		Auth:   cfg.Auth,
		Redis:  redisClient,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	services := bootstrap.BuildServices(bootstrap.ServicesConfig{
		DB:       db,
		Provider: provider,
		Logger:   logger,
	})

	if err := bootstrap.StartServices(ctx, services); err != nil {
		return err
	}
	defer bootstrap.StopServices(services, logger)

	server := bootstrap.StartHTTPServer(bootstrap.HTTPServerConfig{
		Config:   &cfg,
		Services: services,
		Logger:   logger,
	})

	<-ctx.Done()
	logger.Info("shutdown signal received")

	return bootstrap.ShutdownHTTPServer(bootstrap.ShutdownConfig{
		Context: context.Background(),
		Server:  server,
		Timeout: cfg.HTTP.ShutdownTimeout,
		Logger:  logger,
	})
}

// initInfrastructure connects to postgres and, when the gotrue provider is
// selected, to redis. The mock provider keeps tokens in memory, so redis
// stays nil in that mode.
func initInfrastructure(cfg *config.AppConfig, logger *slog.Logger) (*sql.DB, goredis.UniversalClient, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cfg.Postgres,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}

	if cfg.Auth.Mode != config.AuthModeGoTrue {
		return db, nil, nil
	}

	redisClient, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
		RedisConfig: cfg.Redis,
		Logger:      logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return db, redisClient, nil
}
