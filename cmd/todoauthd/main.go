package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kzhama/todoauth/internal/config"
	"github.com/kzhama/todoauth/internal/obs"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := flag.String("config", "config/todoauth.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting todoauthd", zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version))

	otelShutdown, err := initOTel(rootCtx, cfg)
	if err != nil {
		logger.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := initDB(rootCtx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	cache, err := initRedis(rootCtx, cfg)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer func() { _ = cache.Close() }()

	svc, err := buildService(cfg, logger, db, cache)
	if err != nil {
		logger.Fatal("build auth service", zap.Error(err))
	}

	httpSrv := buildHTTPServer(cfg, logger, svc)
	httpErrCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		httpErrCh <- httpSrv.ListenAndServe()
	}()

	metricsSrv := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		return db.Pool.Ping(ctx)
	}, logger)

	var runErr error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal")
	case runErr = <-httpErrCh:
		if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(runErr))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shCtx)
	_ = metricsSrv.Shutdown(shCtx)

	time.Sleep(100 * time.Millisecond)
	logger.Info("bye")
}
