package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chorus/messaging-service/middleware"
	"chorus/messaging-service/utils"
)

type RouterConfig struct {
	JWTSecret   string
	Connections ConnectionCounter
	WebSocket   *WebSocketHandler
	Chat        *ChatHandler
	Logger      *utils.Logger
}

// NewRouter wires every HTTP route of the service.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.Metrics())

	router.GET("/health", HealthCheck(cfg.Connections))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Live connection endpoint
	router.GET("/ws", middleware.Auth(cfg.JWTSecret), cfg.WebSocket.Connect)

	// API routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTSecret))
	{
		conversations := v1.Group("/conversations")
		{
			conversations.GET("", cfg.Chat.ListConversations)
			conversations.GET("/:id/messages", cfg.Chat.GetMessages)
		}

		v1.GET("/users", cfg.Chat.ListUsers)
		v1.GET("/presence/online", cfg.Chat.OnlineUsers)
		v1.GET("/presence/:id", cfg.Chat.GetPresence)
	}

	return router
}
