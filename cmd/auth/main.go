package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/userauth/internal/cache"
	"github.com/Skotchmaster/userauth/internal/config"
	"github.com/Skotchmaster/userauth/internal/db"
	"github.com/Skotchmaster/userauth/internal/events"
	"github.com/Skotchmaster/userauth/internal/httpserver"
	"github.com/Skotchmaster/userauth/internal/logging"
	middleware "github.com/Skotchmaster/userauth/internal/middleware/auth"
	loggingmw "github.com/Skotchmaster/userauth/internal/middleware/logging"
	"github.com/Skotchmaster/userauth/internal/purge"
	"github.com/Skotchmaster/userauth/internal/repo"
	"github.com/Skotchmaster/userauth/internal/service"
)

func main() {
	cfg := config.Load()
	cfg.Validate()

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DBDriver, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	gormRepo := repo.New(gdb)

	tokenSvc := &service.TokenService{
		Ledger:        gormRepo,
		JWTSecret:     cfg.JWTSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	}

	ready := func(ctx context.Context) error { return db.Ping(ctx, gdb) }

	var closeRedis func() error
	if cfg.RedisURL != "" {
		redisCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.NewRedisClient(redisCtx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatalf("redis init error: %v", err)
		}
		tokenSvc.Ledger = cache.NewRevocationCache(client, gormRepo, tokenSvc.MaxLifetime())
		closeRedis = client.Close
		logger.Info("revocation_cache_enabled")
	}

	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaUserTopic)

	authSvc := &service.AuthService{
		Users:  gormRepo,
		Tokens: tokenSvc,
		Events: publisher,
	}

	purger := purge.New(gormRepo, tokenSvc.MaxLifetime(), logger)
	if err := purger.Start(cfg.PurgeSchedule); err != nil {
		log.Fatalf("purge schedule error: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover(), echomw.RequestID(), loggingmw.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: authSvc},
		UserHandler: &httpserver.UserHTTP{Svc: authSvc},
		TokenAuth:   middleware.NewTokenAuth(tokenSvc),
		Ready:       ready,
	})

	go func() {
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("echo shutdown: %v", err)
	}
	purger.Stop()
	if err := publisher.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}
	if closeRedis != nil {
		if err := closeRedis(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}
	if err := db.Close(gdb); err != nil {
		log.Printf("db close error: %v", err)
	}

	logger.Info("shutdown_complete")
}
