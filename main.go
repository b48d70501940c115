package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"chorus/messaging-service/config"
	"chorus/messaging-service/db"
	"chorus/messaging-service/gateway"
	"chorus/messaging-service/handlers"
	"chorus/messaging-service/services"
	"chorus/messaging-service/utils"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize logger
	logger := utils.NewLogger(cfg.LogLevel)

	policy, err := services.ParseUnreadPolicy(cfg.UnreadPolicy)
	if err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	// Connect to database
	database, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	// Connect to Redis
	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := services.NewRedisClient(startCtx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err)
	}

	// Repositories
	users := db.NewUserRepository(database)
	conversations := db.NewConversationRepository(database)
	messages := db.NewMessageRepository(database)

	// Core services
	presence := services.NewPresenceTracker(redisClient, users, logger)
	if err := presence.Reset(startCtx); err != nil {
		logger.Fatal("Failed to reset presence", "error", err)
	}
	startCancel()

	resolver := services.NewConversationResolver(conversations, logger)
	delivery := services.NewDeliveryMachine(messages, resolver, policy, logger)
	pipeline := services.NewMessagePipeline(users, messages, conversations, resolver, presence, delivery, logger)
	inbox := services.NewInbox(users, conversations, messages, resolver, presence, policy, services.PageSizes{
		Default: cfg.DefaultPageSize,
		History: cfg.HistoryPageSize,
		Max:     cfg.MaxPageSize,
	}, logger)

	// Live connections
	hub := gateway.NewHub(logger)
	notifier := services.NewNotifier(hub, logger)
	gw := gateway.New(hub, gateway.Services{
		Presence: presence,
		Pipeline: pipeline,
		Delivery: delivery,
		Inbox:    inbox,
		Notifier: notifier,
	}, gateway.Options{
		EventsPerSecond: cfg.EventsPerSecond,
		EventBurst:      cfg.EventBurst,
		SendBufferSize:  cfg.SendBufferSize,
	}, logger)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		JWTSecret:   cfg.JWTSecret,
		Connections: hub,
		WebSocket:   handlers.NewWebSocketHandler(gw, logger),
		Chat:        handlers.NewChatHandler(inbox, presence, logger),
		Logger:      logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting Messaging Service", "port", cfg.Port, "unread_policy", policy)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close live connections first so their presence is released
	if err := gw.Shutdown(ctx); err != nil {
		logger.Error("Gateway shutdown incomplete", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("Failed to close Redis connection", "error", err)
	}
	if err := db.Close(database); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	logger.Info("Server exited")
}
