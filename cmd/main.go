package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/consortium/relay/internal/auth"
	"github.com/consortium/relay/internal/cache"
	"github.com/consortium/relay/internal/config"
	"github.com/consortium/relay/internal/db"
	apierrors "github.com/consortium/relay/internal/errors"
	"github.com/consortium/relay/internal/events"
	"github.com/consortium/relay/internal/httpapi"
	"github.com/consortium/relay/internal/logger"
	"github.com/consortium/relay/internal/middleware"
	"github.com/consortium/relay/internal/relay"
	"github.com/consortium/relay/internal/router"
	"github.com/consortium/relay/internal/rpc"
	"github.com/consortium/relay/internal/sweeper"
	"github.com/consortium/relay/internal/wsapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.Module("main")

	database, err := db.NewDatabase(db.Config{DSN: cfg.DatabaseURL})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisCache, err := cache.NewCache(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Enabled:  cfg.CacheEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache")
	}

	tokens := auth.NewTokenService(auth.TokenConfig{MasterSecret: cfg.MasterSecret}, redisCache)

	// nodeID distinguishes this process's own emits from a NATS-relayed
	// copy of the same event (§4.3).
	nodeID := uuid.New().String()
	hub := router.NewHub()
	rpcRegistry := rpc.NewRegistry()

	eventsCfg := events.DefaultConfig(cfg.NATSURL)
	publisher := events.NewPublisher(eventsCfg, nodeID)
	defer publisher.Close()

	subscriber := events.NewSubscriber(eventsCfg, hub, nodeID)
	if subscriber.IsEnabled() {
		subCtx, cancelSub := context.WithCancel(context.Background())
		defer cancelSub()
		go func() {
			if err := subscriber.Start(subCtx); err != nil {
				log.Error().Err(err).Msg("event subscriber stopped")
			}
		}()
	}

	service := relay.New(database, redisCache, tokens, hub, publisher, rpcRegistry)

	sweep := sweeper.New(database)
	if err := sweep.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to start sweeper")
	}
	defer sweep.Stop()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		apierrors.Recovery(),
		middleware.StructuredLogger(middleware.DefaultStructuredLoggerConfig()),
		middleware.CORS(),
		middleware.DefaultSizeLimiter(),
		apierrors.ErrorHandler(),
	)

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	httpapi.NewHandler(service, tokens).Register(engine)

	wsServer := wsapi.NewServer(service)
	engine.GET("/v1/updates", wsServer.Handle)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           engine,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0, // WebSocket connections on this server must not be write-deadlined
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
}
