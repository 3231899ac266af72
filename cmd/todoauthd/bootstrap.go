package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/kzhama/todoauth/internal/config"
	"github.com/kzhama/todoauth/internal/obs"
	pg "github.com/kzhama/todoauth/internal/repository/postgres"
	rds "github.com/kzhama/todoauth/internal/repository/redis"
	authsvc "github.com/kzhama/todoauth/internal/services/auth"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(*cfg.Log.AsLoggerConfig(cfg.App))
}

func initOTel(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	closer, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		return nil, err
	}
	return closer.Shutdown, nil
}

func initDB(ctx context.Context, cfg *config.Config) (*pg.DB, error) {
	return pg.New(ctx, cfg.DB)
}

func initRedis(ctx context.Context, cfg *config.Config) (*rds.TokenCache, error) {
	return rds.New(ctx, cfg.Redis)
}

func buildService(cfg *config.Config, logger *zap.Logger, db *pg.DB, cache *rds.TokenCache) (*authsvc.Service, error) {
	return authsvc.NewService(
		pg.NewUserRepo(db),
		pg.NewLoginFailureRepo(db),
		pg.NewTokenLedgerRepo(db),
		cache,
		pg.NewTransactor(db, logger),
		logger,
		cfg.AsServiceConfig(),
	)
}
