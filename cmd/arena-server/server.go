package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"arena-core/internal/authbridge"
	"arena-core/internal/config"
	"arena-core/internal/hub"
	"arena-core/internal/matchmaker"
	"arena-core/internal/middleware"
	"arena-core/internal/runtime"
	"arena-core/internal/supervisor"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// matchRuntimeConfig maps the env-sourced match tunables onto runtime.Config.
func matchRuntimeConfig(cfg *config.Config) runtime.Config {
	return runtime.Config{
		StartingCountdown:   cfg.Match.StartingCountdown,
		AutoStartTimeout:    cfg.Match.AutoStartTimeout,
		GradingBudget:       cfg.Match.GradingBudget,
		DisconnectGrace:     cfg.Match.DisconnectGrace,
		RetentionWindow:     cfg.Match.RetentionWindow,
		MaxConcurrentGrades: cfg.Match.MaxConcurrentGrades,
	}
}

// matchmakingConfig maps the env-sourced matchmaking tunables onto
// matchmaker.Config.
func matchmakingConfig(cfg *config.Config) matchmaker.Config {
	return matchmaker.Config{
		BucketWidenStep:     cfg.Matchmaking.BucketWidenStep,
		BucketWidenInterval: cfg.Matchmaking.BucketWidenInterval,
		BucketWidenMax:      cfg.Matchmaking.BucketWidenMax,
		ConfirmWindow:       cfg.Matchmaking.ConfirmWindow,
		FillDeadline:        cfg.Matchmaking.FillDeadline,
		TickInterval:        cfg.Matchmaking.TickInterval,
	}
}

// newHTTPServer builds the gin router (health check + WS upgrade) and
// wraps it in an *http.Server with the configured timeouts.
func newHTTPServer(cfg *config.Config, h *hub.Hub, validator *authbridge.Validator, presence hub.PresenceTracker, logger *log.Logger) *http.Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
	}))
	if cfg.Features.MaintenanceMode {
		router.Use(middleware.MaintenanceMode())
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", hub.UpgradeHandler(h, validator, presence, logger))

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

// gracefulShutdown drains in-flight matches before closing the HTTP
// server, bounded by the supervisor's configured shutdown timeout.
func gracefulShutdown(srv *http.Server, sv *supervisor.Supervisor, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sv.Shutdown(ctx); err != nil {
		logger.Printf("supervisor shutdown: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("http server shutdown: %v", err)
	}
	logger.Println("shutdown complete")
}
