package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mindgraph/api/internal/app"
	"mindgraph/api/internal/config"
	"mindgraph/api/internal/idp"
	"mindgraph/api/internal/session"
	"mindgraph/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var provider idp.Provider
	if strings.EqualFold(cfg.AuthProvider, "cognito") {
		log.Printf("Using Cognito identity provider")
		provider = idp.NewCognito(cfg.CognitoURL, cfg.CognitoClientID, cfg.CognitoClientSecret)
	} else {
		log.Printf("Using local identity provider")
		local, err := idp.NewLocal(cfg.TokenSecret, cfg.AccessTTL, cfg.DevUsers)
		if err != nil {
			log.Fatalf("local identity provider failed: %v", err)
		}
		provider = local
	}

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for token revocation")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		service = app.NewWithRevocations(cfg, dataStore, redisStore, provider)
	} else {
		log.Printf("Using PostgreSQL for token revocation")
		service = app.New(cfg, dataStore, provider)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Mindgraph API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
