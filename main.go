package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dealflowhq/dealflow/core/audit"
	"github.com/dealflowhq/dealflow/core/cache"
	"github.com/dealflowhq/dealflow/core/config"
	"github.com/dealflowhq/dealflow/core/controller"
	"github.com/dealflowhq/dealflow/core/db"
	logger "github.com/dealflowhq/dealflow/core/logging"
	"github.com/dealflowhq/dealflow/core/router"
	"github.com/dealflowhq/dealflow/core/service"
	"github.com/dealflowhq/dealflow/core/sweeper"
	"github.com/dealflowhq/dealflow/core/util"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	// Initialize logger
	logger.InitLogger(config.GetString("log.dir"))
	defer logger.Sync()

	// Initialize Neo4j
	if err := db.InitNeo4j(); err != nil {
		logger.Fatal("Failed to initialize Neo4j", zap.Error(err))
	}
	defer db.CloseNeo4j()

	// Initialize Redis
	if err := db.InitRedis(); err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer db.CloseRedis()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize EventBus
	eventBus := util.NewEventBus()
	eventBus.Start(ctx)

	// Cache coordinator: one per process, subscribed to the invalidation
	// bus for its whole lifetime.
	coordinator := cache.NewCoordinator(db.RedisClient)
	coordinator.Subscribe(ctx)
	defer coordinator.Close()

	// Initialize services and utilities
	validationUtil := util.NewValidationUtil()
	auditRepository, err := audit.NewElasticsearchRepository(config.GetString("elasticsearch.url"))
	if err != nil {
		logger.Fatal("Failed to initialize audit repository", zap.Error(err))
	}
	auditService := audit.NewService(auditRepository)

	services, err := service.InitializeServices(
		db.Neo4jDriver,
		db.RedisClient,
		coordinator,
		auditService,
		validationUtil,
		eventBus,
	)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}

	// Background reconciliation of orphaned sessions and tokens.
	sweeper.New(db.RedisClient).Start(ctx)

	// Initialize controllers
	controllers := controller.InitializeControllers(services)

	// Set up the server
	engine := router.SetupRouter(controllers, services.Auth, 100, time.Minute)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.GetString("server.port")),
		Handler: engine,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", config.GetString("server.port")))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
