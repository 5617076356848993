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

	"colabcanvas/internal/api"
	"colabcanvas/internal/config"
	"colabcanvas/internal/db"
	"colabcanvas/internal/openai"
	"colabcanvas/internal/repository"
	"colabcanvas/internal/services"
	"colabcanvas/internal/services/collaboration"
	"colabcanvas/internal/telemetry"
)

/*
LEARNING: GRACEFUL SHUTDOWN PATTERN WITH OBSERVABILITY

This main function demonstrates:
1. Service initialization and dependency injection
2. Concurrent server, changefeed, and session hub management
3. Distributed tracing with Jaeger
4. Graceful shutdown handling (listening for SIGINT/SIGTERM)
5. Proper resource cleanup order
*/

func main() {
	log.Println("🚀 Starting collaborative canvas server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Initialize Jaeger tracing
	// Learning: Do this FIRST so all operations are traced
	jaegerShutdown, err := telemetry.InitJaeger("colabcanvas", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	// Initialize GORM database (migrations + changefeed trigger)
	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Initialize repositories
	objectRepo := repository.NewObjectRepository(database.DB)

	// Initialize WebSocket session manager for real-time collaboration
	sessionManager := collaboration.NewSessionManager()
	sessionManager.Start()

	// Initialize WebSocket handler
	wsHandler := collaboration.NewWebSocketHandler(sessionManager)

	// Tail the Postgres changefeed and relay object changes into rooms.
	// Learning: LISTEN/NOTIFY gives every server instance the full change
	// stream, so clients hear about writes made through any instance.
	changefeed, err := repository.NewChangefeed(cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("❌ Failed to start changefeed: %v", err)
	}
	defer changefeed.Close()

	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()
	go changefeed.Run(feedCtx, sessionManager.PublishObjectChange)
	log.Println("✓ Changefeed relaying canvas_changes into rooms")

	// Initialize the optional canvas assistant
	var assistant api.Assistant
	if cfg.OpenAIAPIKey != "" {
		openaiClient := openai.NewClient(cfg.OpenAIAPIKey)
		assistant = services.NewAssistantService(openaiClient, objectRepo)
		log.Println("✓ Canvas assistant enabled")
	} else {
		log.Println("  Canvas assistant disabled (no OPENAI_API_KEY)")
	}

	// Initialize handlers with dependency injection
	handler := api.NewHandler(objectRepo, assistant, wsHandler)

	// Setup routes
	router := api.SetupRoutes(handler)

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	// Learning: This allows us to handle shutdown signals concurrently
	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		log.Printf("📚 API Endpoints:")
		log.Printf("   GET    /api/rooms                       - List rooms")
		log.Printf("   GET    /api/rooms/:room/objects         - List canvas objects")
		log.Printf("   POST   /api/rooms/:room/objects         - Create canvas object")
		log.Printf("   PATCH  /api/rooms/:room/objects/:id     - Merge field write")
		log.Printf("   PATCH  /api/rooms/:room/objects/batch   - Atomic batch write")
		log.Printf("   DELETE /api/rooms/:room/objects/:id     - Delete canvas object")
		log.Printf("   POST   /api/rooms/:room/assistant       - Prompt to shapes")
		log.Printf("   WS     /ws/room/:room                   - Cursor/presence channel")
		log.Println()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	// Learning: This is the graceful shutdown pattern
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	// Shutdown HTTP server with timeout
	// Learning: Give the server 30 seconds to finish existing requests
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	// Stop relaying changes before tearing the sockets down
	stopFeed()

	// Shutdown WebSocket session manager
	// Learning: This closes all active WebSocket connections gracefully
	sessionManager.Shutdown()

	log.Println("✓ Server shutdown complete")
}
