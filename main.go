package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"madrasa-audio/config"
	"madrasa-audio/gemini"
	"madrasa-audio/prefs"
	"madrasa-audio/server"
	"madrasa-audio/session"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Preference store (custom Tajweed rules), shared by both servers
	store := prefs.NewStore(ctx, cfg.RedisURL, cfg.RedisPassword)
	defer store.Close()

	// Create session manager for live tutoring
	sessionManager, err := session.NewManager(cfg, store.Rules)
	if err != nil {
		log.Fatalf("Failed to create session manager: %v", err)
	}

	// Start cleanup routine
	go sessionManager.StartCleanupRoutine(ctx)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	newAnalyzer := func() *gemini.Analyzer {
		analyzer, err := gemini.NewAnalyzer(ctx, cfg.GeminiAPIKey)
		if err != nil {
			log.Fatalf("Failed to create analyzer: %v", err)
		}
		return analyzer
	}

	switch cfg.ServerType {
	case "websocket":
		srv := server.NewServerWebsocket(cfg, sessionManager)

		go func() {
			<-sigChan
			log.Println("\nReceived shutdown signal...")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("Server shutdown error: %v", err)
			}
		}()

		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Fatalf("Server error: %v", err)
		}

	case "api":
		apiSrv := server.NewServerAPI(cfg, newAnalyzer(), store)

		go func() {
			<-sigChan
			log.Println("\nReceived shutdown signal...")
			cancel()
			sessionManager.Shutdown()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := apiSrv.Shutdown(shutdownCtx); err != nil {
				log.Printf("API server shutdown error: %v", err)
			}
		}()

		if err := apiSrv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Fatalf("API server error: %v", err)
		}

	case "both":
		srv := server.NewServerWebsocket(cfg, sessionManager)
		apiSrv := server.NewServerAPI(cfg, newAnalyzer(), store)

		go func() {
			<-sigChan
			log.Println("\nReceived shutdown signal...")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("WebSocket server shutdown error: %v", err)
			}
			if err := apiSrv.Shutdown(shutdownCtx); err != nil {
				log.Printf("API server shutdown error: %v", err)
			}
		}()

		// Start API server in background
		go func() {
			if err := apiSrv.Start(); err != nil && err.Error() != "http: Server closed" {
				log.Fatalf("API server error: %v", err)
			}
		}()

		// Start WebSocket server (blocks)
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Fatalf("WebSocket server error: %v", err)
		}

	default:
		log.Fatalf("Unknown SERVER_TYPE: %s", cfg.ServerType)
	}

	log.Println("Server stopped")
}
