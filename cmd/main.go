package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tesseract-nexus/pubsub-gateway/internal/admin"
	"github.com/tesseract-nexus/pubsub-gateway/internal/auth"
	"github.com/tesseract-nexus/pubsub-gateway/internal/bus"
	"github.com/tesseract-nexus/pubsub-gateway/internal/config"
	"github.com/tesseract-nexus/pubsub-gateway/internal/counter"
	"github.com/tesseract-nexus/pubsub-gateway/internal/gateway"
	"github.com/tesseract-nexus/pubsub-gateway/internal/heartbeat"
	"github.com/tesseract-nexus/pubsub-gateway/internal/middleware"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
	"github.com/tesseract-nexus/pubsub-gateway/internal/registry"
	"github.com/tesseract-nexus/pubsub-gateway/internal/repository"
	"github.com/tesseract-nexus/pubsub-gateway/internal/session"
	"github.com/tesseract-nexus/pubsub-gateway/internal/usage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := newLogger(cfg.App)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := initDatabase(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	if err := db.AutoMigrate(&model.Agent{}, &model.Tenant{}, &model.DailyUsage{}); err != nil {
		logger.WithError(err).Fatal("failed to auto-migrate schema")
	}
	logger.Info("database migration completed")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}

	busClient := bus.New(cfg.NATS, logger)
	if err := busClient.Connect(); err != nil {
		logger.WithError(err).Warn("bus: initial connect failed, continuing with background retry")
	}

	conns := registry.New(rdb, cfg.Redis.RegistryTable)
	challenges := registry.NewChallengeRegistry(rdb)

	agentRepo := repository.NewAgentRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	tenantRepo := repository.NewTenantRepository(db)

	verifier := auth.NewVerifier(cfg.JWT, challenges, agentRepo)

	msgCounter := counter.New(cfg.Usage, rdb, logger)
	usageAggregator := usage.New(cfg.Usage, rdb, conns, usageRepo, logger)

	manager := session.NewManager(cfg.WebSocket, busClient, conns, msgCounter, logger, cfg.Server.ID)
	monitor := heartbeat.New(manager, conns, logger)

	gw := gateway.New(cfg.WebSocket, verifier, manager, tenantRepo, logger)
	adminAPI := admin.New(db, rdb, busClient, conns, usageAggregator)

	ctx, cancel := context.WithCancel(context.Background())

	go msgCounter.Run(ctx)
	go usageAggregator.Run(ctx)
	go monitor.Run(ctx)

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	gw.RegisterRoutes(router)
	adminAPI.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("failed to start server")
		}
	}()
	logger.WithField("addr", cfg.GetServerAddress()).Info("pubsub-gateway started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	manager.CloseAll(session.CloseServerShutdown)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("server forced to shutdown")
	}

	if err := busClient.Close(shutdownCtx); err != nil {
		logger.WithError(err).Warn("error closing bus client")
	}
	if err := rdb.Close(); err != nil {
		logger.WithError(err).Warn("error closing redis client")
	}

	logger.Info("pubsub-gateway stopped")
}

func newLogger(cfg config.AppConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	switch cfg.LogLevel {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

func initDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	gormLog := gormlogger.Default.LogMode(gormlogger.Silent)
	if os.Getenv("DB_LOG_LEVEL") == "info" {
		gormLog = gormlogger.Default.LogMode(gormlogger.Info)
	}

	fullCfg := &config.Config{Database: *cfg}
	db, err := gorm.Open(postgres.Open(fullCfg.GetDatabaseDSN()), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

