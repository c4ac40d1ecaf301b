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
	"go.uber.org/zap"

	"github.com/wuwenbin0122/chatquota/internal/api"
	"github.com/wuwenbin0122/chatquota/internal/chat"
	"github.com/wuwenbin0122/chatquota/internal/completion"
	"github.com/wuwenbin0122/chatquota/internal/db"
	"github.com/wuwenbin0122/chatquota/internal/identity"
	"github.com/wuwenbin0122/chatquota/internal/ratelimit"
	"github.com/wuwenbin0122/chatquota/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: failed to build: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	mongoStore, err := db.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		logger.Fatal("mongo: failed to connect", zap.Error(err))
	}
	defer func() {
		if err := mongoStore.Close(context.Background()); err != nil {
			logger.Warn("mongo: close error", zap.Error(err))
		}
	}()

	if err := mongoStore.Ping(ctx); err != nil {
		logger.Fatal("mongo: ping failed", zap.Error(err))
	}
	if err := mongoStore.EnsureCollections(ctx); err != nil {
		logger.Fatal("mongo: ensure collections", zap.Error(err))
	}

	messages := db.NewMessageStore(mongoStore)
	limiter := ratelimit.New(messages, ratelimit.Limits{
		BurstWindow: cfg.Limits.BurstWindow,
		BurstLimit:  cfg.Limits.BurstLimit,
		DailyLimit:  cfg.Limits.DailyLimit,
	})
	resolver := identity.NewResolver(db.NewUserStore(mongoStore), logger.Named("identity"))
	gateway := completion.NewGateway(cfg.Completion, logger.Named("completion"))

	opts := []chat.Option{chat.WithLogger(logger.Named("chat"))}
	if cfg.Redis.Enabled() {
		redisClient, err := db.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("redis: failed to connect", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis: close error", zap.Error(err))
			}
		}()
		opts = append(opts, chat.WithTurnLock(db.NewTurnLock(redisClient, cfg.Redis.LockTTL)))
		logger.Info("per-user turn lock enabled", zap.String("redis_addr", cfg.Redis.Addr))
	}

	chatService := chat.NewService(resolver, limiter, gateway, messages, opts...)

	gin.SetMode(cfg.GinMode)
	router := setupRouter(api.NewHandler(chatService, mongoStore, logger.Named("api")), logger)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Completion.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server crashed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("server stopped cleanly")
}

func setupRouter(handler *api.Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestID(), api.RequestLogger(logger.Named("http")))

	handler.RegisterRoutes(router)

	return router
}
