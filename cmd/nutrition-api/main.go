package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nutrition-resolver/internal/api"
	"nutrition-resolver/internal/app"
	"nutrition-resolver/internal/config"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	ctx := context.Background()

	// Missing credentials keep the server up; requests then get a
	// configuration_error instead of a connection refused.
	var resolver api.TextResolver
	jwtSecret := os.Getenv("API_JWT_SECRET")

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Printf("Configuration incomplete, serving configuration errors: %v", err)
	} else {
		services, err := app.Build(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to initialize services: %v", err)
		}
		defer services.Close()
		resolver = services.App
		jwtSecret = cfg.APIJWTSecret
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           api.NewServer(resolver, jwtSecret).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Nutrition API listening on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
