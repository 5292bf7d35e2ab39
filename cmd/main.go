package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modelgate/tokenpool/internal/auth"
	"github.com/modelgate/tokenpool/internal/calllog"
	"github.com/modelgate/tokenpool/internal/config"
	"github.com/modelgate/tokenpool/internal/db"
	"github.com/modelgate/tokenpool/internal/logger"
	"github.com/modelgate/tokenpool/internal/outcome"
	"github.com/modelgate/tokenpool/internal/pool"
)

func main() {
	cfg := config.Load()
	flag.Parse()
	errFile := cfg.ApplyFile()

	appLogger := logger.New(cfg.DebugMode)
	defer func() {
		_ = appLogger.Sync() // Ignore sync errors on close, as per zap documentation
	}()

	if errFile != nil {
		appLogger.Fatal("Failed to load config file",
			"error", errFile,
		)
	}

	gin.SetMode(gin.ReleaseMode)
	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.Default()
	if cfg.DebugMode {
		router.Use(cors.New(cors.Config{
			AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Authorization", "Content-Type", "Accept"},
			ExposeHeaders: []string{"Content-Type"},
			AllowOriginFunc: func(origin string) bool {
				return true
			},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.OPTIONS("/*path", func(c *gin.Context) { c.Status(204) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := openConn(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open database",
			"error", err,
		)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			appLogger.Error("Failed to close database",
				"error", err,
			)
		}
	}()

	if err := registerHandlers(ctx, router, cfg, conn, appLogger); err != nil {
		appLogger.Fatal("Failed to register handlers",
			"error", err,
		)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLogger.Info("Server starting",
			"port", cfg.Port,
			"storage", cfg.StorageMode,
			"debug_mode", cfg.DebugMode,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server failed to start",
				"error", err,
			)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutdown signal received, shutting down server...")

	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown",
			"error", err,
		)
	}

	appLogger.Info("Server exited gracefully")
}

// openConn creates the database connection based on the configured
// storage mode.
//
// Storage modes:
//   - in-memory (default): Ephemeral storage, data lost on restart
//   - disk: Persistent local storage using a file (single replica only)
//   - external: External database (PostgreSQL), supports multiple replicas
func openConn(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (*db.Conn, error) {
	switch cfg.StorageMode {
	case config.StorageModeInMemory, "":
		appLogger.Info("Using in-memory storage (data will be lost on restart). " +
			"For persistent storage, use --storage=disk or --storage=external")
		return db.OpenSQLite(ctx, db.SQLiteMemory)

	case config.StorageModeDisk:
		dataPath := strings.TrimSpace(cfg.DataPath)
		if dataPath == "" {
			dataPath = config.DefaultDataPath
		}
		appLogger.Info("Using persistent disk storage", "path", dataPath)
		return db.OpenSQLite(ctx, dataPath)

	case config.StorageModeExternal:
		dbURL := strings.TrimSpace(cfg.DBConnectionURL)
		if dbURL == "" {
			return nil, errors.New("--db-connection-url is required when using --storage=external")
		}
		appLogger.Info("Connecting to external database...")
		return db.OpenPostgres(ctx, dbURL)

	default:
		return nil, fmt.Errorf("unknown storage mode: %q (valid modes: in-memory, disk, external)", cfg.StorageMode)
	}
}

func registerHandlers(ctx context.Context, router *gin.Engine, cfg *config.Config, conn *db.Conn, appLogger *logger.Logger) error {
	router.GET("/health", func(c *gin.Context) {
		if err := conn.DB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	store, err := pool.NewStore(ctx, appLogger, conn)
	if err != nil {
		return fmt.Errorf("failed to initialize token store: %w", err)
	}

	callLog, err := calllog.NewStore(ctx, conn)
	if err != nil {
		return fmt.Errorf("failed to initialize call log: %w", err)
	}

	allocator := pool.NewAllocator(appLogger, store)
	health := pool.NewHealthTracker(appLogger, store)
	query := pool.NewQueryService(store)

	poolHandler := pool.NewHandler(appLogger, store, query, allocator)
	outcomeHandler := outcome.NewHandler(appLogger, store, health, callLog)

	v1Routes := router.Group("/v1")
	v1Routes.POST("/tokens/select", poolHandler.SelectToken)
	v1Routes.POST("/outcomes", outcomeHandler.Report)

	adminRoutes := router.Group("/admin", auth.AdminAuthMiddleware(cfg.AdminAPIKey))
	adminRoutes.POST("/tokens", poolHandler.AddTokens)
	adminRoutes.DELETE("/tokens", poolHandler.DeleteTokens)
	adminRoutes.GET("/tokens", poolHandler.ListTokens)
	adminRoutes.PUT("/tokens/tags", poolHandler.UpdateTags)
	adminRoutes.PUT("/tokens/note", poolHandler.UpdateNote)
	adminRoutes.PUT("/tokens/quota", poolHandler.UpdateQuota)
	adminRoutes.GET("/tags", poolHandler.ListTags)
	adminRoutes.GET("/calls", outcomeHandler.Recent)

	return nil
}
