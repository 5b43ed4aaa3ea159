package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
)

// NewPostgresPool creates a pgx connection pool for PostgreSQL.
// maxConns <= 0 keeps the pgx default. logLevel is a pgx trace level ("none", "error", "warn",
// "info", "debug", "trace"); queries are traced through logger unless it is "none".
func NewPostgresPool(ctx context.Context, dsn string, maxConns int32, logLevel string, logger *zap.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	level, err := tracelog.LogLevelFromString(logLevel)
	if err != nil {
		return nil, fmt.Errorf("database log level: %w", err)
	}
	if level != tracelog.LogLevelNone {
		config.ConnConfig.Tracer = newQueryTracer(logger.Named("pgx"), level)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("PostgreSQL connection pool established",
		zap.Int32("max_conns", config.MaxConns), zap.String("trace_level", level.String()))
	return pool, nil
}
