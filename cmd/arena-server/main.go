// cmd/arena-server/main.go
// Entry point: loads configuration, establishes database connections,
// wires the Matchmaker/SessionHub/Supervisor, and starts the HTTP
// server. Shuts down gracefully on SIGINT/SIGTERM.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arena-core/internal/arena"
	"arena-core/internal/authbridge"
	"arena-core/internal/clock"
	"arena-core/internal/config"
	"arena-core/internal/database"
	"arena-core/internal/grader"
	"arena-core/internal/hub"
	"arena-core/internal/matchmaker"
	"arena-core/internal/statestore"
	"arena-core/internal/store"
	"arena-core/internal/supervisor"
)

func main() {
	logger := log.New(os.Stdout, "[arena-core] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	conns, err := database.Initialize(ctx, database.Config{
		MySQL: database.MySQLConfig{
			DSN:             cfg.Database.MySQL.DSN,
			MaxOpenConns:    cfg.Database.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.MySQL.ConnMaxLifetime,
		},
		MongoDB: database.MongoConfig{
			URI:      cfg.Database.MongoDB.URI,
			Database: cfg.Database.MongoDB.Database,
		},
		Redis: database.RedisConfig{
			Addr:     cfg.Database.Redis.Addr,
			Password: cfg.Database.Redis.Password,
			DB:       cfg.Database.Redis.DB,
		},
	}, logger)
	cancel()
	if err != nil {
		logger.Fatalf("failed to establish database connections: %v", err)
	}
	defer conns.Close()

	persist := store.NewCompositeStore(
		store.NewMySQLStore(conns.MySQL),
		store.NewMongoArchive(conns.MongoDB),
	)
	snapshots := statestore.NewRedisStore(conns.Redis, logger)

	graderClient := grader.NewFallbackClient(
		grader.NewHTTPClient(cfg.Match.GraderBaseURL, cfg.Match.GraderTimeout),
		nil,
		arena.DefaultScoreWeights,
	)

	clk := clock.NewReal()

	// Hub needs a Router (the Supervisor) and the Supervisor needs a
	// Broadcaster (the Hub) — construct the Hub with its router attached
	// after the Supervisor exists, breaking the cycle.
	h := hub.NewHub(nil, logger)
	h.SetChatRateLimit(cfg.Match.ChatRatePerWindow, cfg.Match.ChatRateWindow)

	sv := supervisor.New(clk, snapshots, persist, graderClient, h, supervisor.Config{
		MaxMatchesPerProcess: cfg.Match.MaxMatchesPerProcess,
		ShutdownTimeout:      30 * time.Second,
		RuntimeConfig:        matchRuntimeConfig(cfg),
	}, logger)
	h.SetRouter(sv)

	mm := matchmaker.New(clk, sv, h, matchmakingConfig(cfg), logger)
	h.SetMatchmaking(mm)

	mmStop := make(chan struct{})
	go mm.Run(mmStop)
	go h.Run()

	validator := authbridge.NewValidator(cfg.Auth.JWTSecret)
	srv := newHTTPServer(cfg, h, validator, sv, logger)

	go func() {
		logger.Printf("arena-core listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Println("shutting down...")
	close(mmStop)
	gracefulShutdown(srv, sv, logger)
}
