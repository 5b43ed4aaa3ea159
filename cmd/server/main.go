// Package main runs the back-office HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cpd-events/backoffice/config"
	"github.com/cpd-events/backoffice/internal/auth"
	"github.com/cpd-events/backoffice/internal/events"
	"github.com/cpd-events/backoffice/internal/middleware"
	"github.com/cpd-events/backoffice/internal/rbac"
	"github.com/cpd-events/backoffice/internal/users"
	"github.com/cpd-events/backoffice/pkg/database"
	"github.com/cpd-events/backoffice/pkg/metrics"
	"github.com/cpd-events/backoffice/pkg/redis"
	"github.com/cpd-events/backoffice/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.LogLevel, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	var cacheClient *goredis.Client
	if rdb != nil {
		defer rdb.Close()
		cacheClient = rdb.Client
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpireHours)

	// RBAC
	rbacRepo := rbac.NewRepository(pool)
	rbacSvc := rbac.NewService(rbacRepo, rbac.NewCache(cacheClient, cfg.RBAC.PermissionCacheTTL, logger), logger)
	rbacSvc.SetMetrics(appMetrics)
	gate := middleware.NewGate(rbacSvc, logger)
	gate.SetMetrics(appMetrics)
	permissionHandler := rbac.NewPermissionHandler(rbacSvc, logger)
	roleHandler := rbac.NewRoleHandler(rbacSvc, logger)

	// Users and auth
	userRepo := users.NewRepository(pool)
	userHandler := users.NewHandler(userRepo, rbacSvc, logger)
	authHandler := auth.NewHandler(userRepo, rbacSvc, jwtService, logger)

	// Events
	eventRepo := events.NewRepository(pool, logger)
	eventHandler := events.NewHandler(eventRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(appMetrics))

	// Health and metrics
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(metrics.Handler(registry)))

	// Auth (public)
	router.POST("/auth/login", authHandler.Login)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	api.GET("/auth/me", authHandler.Me)

	// Users
	u := api.Group("/users")
	{
		u.GET("", gate.RequirePermission("users.view"), userHandler.List)
		u.POST("", gate.RequirePermission("users.create"), userHandler.Create)
		u.GET("/:id", gate.RequirePermission("users.view"), userHandler.Get)
		u.PATCH("/:id", gate.RequirePermission("users.edit"), userHandler.Update)
		u.DELETE("/:id", gate.RequirePermission("users.delete"), userHandler.Delete)
		u.PUT("/:id/roles", gate.RequirePermission("users.edit"), userHandler.SyncRoles)
		u.POST("/:id/roles/:roleId", gate.RequirePermission("users.edit"), userHandler.AssignRole)
		u.DELETE("/:id/roles/:roleId", gate.RequirePermission("users.edit"), userHandler.RemoveRole)
	}

	// Roles
	r := api.Group("/roles")
	{
		r.GET("", gate.RequirePermission("roles.view"), roleHandler.List)
		r.POST("", gate.RequirePermission("roles.create"), roleHandler.Create)
		r.GET("/:id", gate.RequirePermission("roles.view"), roleHandler.Get)
		r.PATCH("/:id", gate.RequirePermission("roles.edit"), roleHandler.Update)
		r.DELETE("/:id", gate.RequirePermission("roles.delete"), roleHandler.Delete)
		r.GET("/:id/users", gate.RequirePermission("roles.view"), roleHandler.Users)
		r.GET("/:id/permissions", gate.RequirePermission("roles.view"), roleHandler.Permissions)
		r.PUT("/:id/permissions", gate.RequirePermission("roles.edit"), roleHandler.SyncPermissions)
		r.POST("/:id/permissions/:permissionId", gate.RequirePermission("roles.edit"), roleHandler.GivePermission)
		r.DELETE("/:id/permissions/:permissionId", gate.RequirePermission("roles.edit"), roleHandler.RevokePermission)
	}

	// Permissions
	p := api.Group("/permissions")
	{
		p.GET("", gate.RequirePermission("permissions.view"), permissionHandler.List)
		p.POST("", gate.RequirePermission("permissions.create"), permissionHandler.Create)
		p.POST("/generate", gate.RequirePermission("permissions.create"), permissionHandler.Generate)
		p.POST("/assign-to-roles", gate.RequirePermission("roles.edit"), permissionHandler.AssignToRoles)
		p.POST("/bulk-delete", gate.RequirePermission("permissions.delete"), permissionHandler.BulkDelete)
		p.GET("/:id", gate.RequirePermission("permissions.view"), permissionHandler.Get)
		p.PATCH("/:id", gate.RequirePermission("permissions.edit"), permissionHandler.Update)
		p.DELETE("/:id", gate.RequirePermission("permissions.delete"), permissionHandler.Delete)
		p.POST("/:id/duplicate", gate.RequirePermission("permissions.create"), permissionHandler.Duplicate)
		p.GET("/:id/roles", gate.RequirePermission("permissions.view"), permissionHandler.Roles)
	}

	// Events
	e := api.Group("/events")
	{
		e.GET("", gate.RequirePermission("events.view"), eventHandler.List)
		e.POST("", gate.RequirePermission("events.create"), eventHandler.Create)
		e.POST("/bulk/delete", gate.RequirePermission("events.delete"), eventHandler.BulkDelete)
		e.POST("/bulk/restore", gate.RequirePermission("events.delete"), eventHandler.BulkRestore)
		e.POST("/bulk/force-delete", gate.RequirePermission("events.delete"), eventHandler.BulkForceDelete)
		e.POST("/bulk/archive", gate.RequirePermission("events.edit"), eventHandler.BulkArchive)
		e.POST("/bulk/unarchive", gate.RequirePermission("events.edit"), eventHandler.BulkUnarchive)
		e.GET("/:id", gate.RequirePermission("events.view"), eventHandler.Get)
		e.PUT("/:id", gate.RequirePermission("events.edit"), eventHandler.Update)
		e.DELETE("/:id", gate.RequirePermission("events.delete"), eventHandler.Delete)
		e.POST("/:id/restore", gate.RequirePermission("events.delete"), eventHandler.Restore)
		e.DELETE("/:id/force", gate.RequirePermission("events.delete"), eventHandler.ForceDelete)
		e.POST("/:id/archive", gate.RequirePermission("events.edit"), eventHandler.Archive)
		e.POST("/:id/unarchive", gate.RequirePermission("events.edit"), eventHandler.Unarchive)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
