package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/store"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("Starting room chat server...")

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Nothing works without durable storage.
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open message store: %v", err)
	}
	log.Printf("Message store ready at %s", cfg.DatabasePath)

	var history chat.MessageStore = store.NewMessages(db)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = store.NewRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Printf("Redis unavailable, serving history without cache: %v", err)
		} else {
			cacheCfg := store.DefaultCacheConfig()
			cacheCfg.Size = cfg.HistoryLimit
			history = store.NewCachedHistory(history, redisClient, cacheCfg)
			log.Println("Redis history cache enabled")
		}
	}

	if cfg.JWTSecret == "" {
		log.Println("JWT_SECRET not set; using a random secret, tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Secret: cfg.JWTSecret,
		TTL:    cfg.TokenTTL,
	})
	if err != nil {
		log.Fatalf("Failed to create token manager: %v", err)
	}
	authSvc := auth.NewService(store.NewUsers(db), auth.NewPasswordHasher(), tokens)

	hub := server.NewHub(history, server.HubOptions{
		HistoryLimit:  cfg.HistoryLimit,
		RoomRetention: cfg.Retention(),
	})
	server.StartHub(hub)

	srv := server.NewServer(*cfg, hub, authSvc, history)
	httpServer := server.CreateServer(cfg.Port, srv.SetupRoutes())

	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.ShutdownServer(ctx, httpServer)
			},
			// The store closes only after the hub has drained in-flight saves.
			"chat": func(ctx context.Context) error {
				if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
					log.Printf("Hub shutdown error: %v", err)
				}
				if redisClient != nil {
					if err := redisClient.Close(); err != nil {
						log.Printf("Error closing Redis client: %v", err)
					}
				}
				return store.Close(db)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Server exited with code: %d", exitCode)
	os.Exit(exitCode)
}
