package main

import (
	"log"

	"github.com/mossy-p/peercall/config"
	"github.com/mossy-p/peercall/internal/handlers"
	"github.com/mossy-p/peercall/internal/middleware"
	"github.com/mossy-p/peercall/internal/redis"
	"github.com/mossy-p/peercall/internal/registry"
	"github.com/mossy-p/peercall/internal/relay"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to Redis
	store, err := redis.Connect(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer store.Close()

	log.Println("Redis connection established")

	// Signaling core
	reg := registry.New()
	router := relay.NewRouter(reg)
	coord := relay.NewCoordinator(reg, router, store)
	signaling := handlers.NewSignaling(router, coord, store)
	rooms := handlers.NewRoomAPI(store)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.Default()

	// Global CORS middleware (runs before routing)
	engine.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Room management API (authenticated)
	apiGroup := engine.Group("/api")
	{
		// Login endpoint (public)
		apiGroup.POST("/auth/login", handlers.Login(cfg.JWTSecret))

		// Create room (requires JWT)
		apiGroup.POST("/rooms", middleware.JWTAuth(cfg.JWTSecret), rooms.CreateRoom)

		// Get room info (public)
		apiGroup.GET("/rooms/:roomId", rooms.GetRoom)

		// Delete room (requires JWT, creator only)
		apiGroup.DELETE("/rooms/:roomId", middleware.JWTAuth(cfg.JWTSecret), rooms.DeleteRoom)
	}

	// WebSocket signaling endpoint
	wsGroup := engine.Group("/ws")
	{
		// WebSocket signaling - accepts room code or ID
		wsGroup.GET("/signal/:roomId", signaling.HandleSignaling)
	}

	// Start server
	log.Printf("Starting signaling relay on port %s", cfg.Port)
	if err := engine.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
