// Package main migrates the database and installs the default permissions, roles and accounts.
package main

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cpd-events/backoffice/config"
	"github.com/cpd-events/backoffice/internal/rbac"
	"github.com/cpd-events/backoffice/internal/seed"
	"github.com/cpd-events/backoffice/pkg/database"
	"github.com/cpd-events/backoffice/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.LogLevel, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Cached permission sets of re-seeded accounts are dropped when Redis is configured.
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("redis unavailable; skipping cache invalidation", zap.Error(err))
	}
	var cacheClient *goredis.Client
	if rdb != nil {
		defer rdb.Close()
		cacheClient = rdb.Client
	}
	rbacSvc := rbac.NewService(rbac.NewRepository(pool), rbac.NewCache(cacheClient, cfg.RBAC.PermissionCacheTTL, logger), logger)

	res, err := seed.New(pool, rbacSvc, logger).Run(ctx, seed.Accounts(cfg.Seed))
	if err != nil {
		logger.Fatal("seed", zap.Error(err))
	}
	for email := range res.Users {
		logger.Info("account ready", zap.String("email", email))
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
