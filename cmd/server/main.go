package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/iliyamo/devhub-auth/internal/bootstrap"
	"github.com/iliyamo/devhub-auth/internal/cache"
	"github.com/iliyamo/devhub-auth/internal/config"
	"github.com/iliyamo/devhub-auth/internal/handler"
	"github.com/iliyamo/devhub-auth/internal/logger"
	"github.com/iliyamo/devhub-auth/internal/middleware"
	"github.com/iliyamo/devhub-auth/internal/profile"
	"github.com/iliyamo/devhub-auth/internal/queue"
	"github.com/iliyamo/devhub-auth/internal/router"
	"github.com/iliyamo/devhub-auth/internal/session"
	"github.com/iliyamo/devhub-auth/internal/utils"
	"github.com/iliyamo/devhub-auth/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		l := logger.New(logger.Options{})
		l.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(logger.Options{Level: cfg.App.LogLevel, Pretty: cfg.App.LogPretty})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	stores, err := bootstrap.OpenStores(ctx, cfg, cfg.App.MigrateOnStart, logger.Component(log, "store"))
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	c, rdb := bootstrap.OpenCache(ctx, cfg, logger.Component(log, "cache"))
	if rdb != nil {
		defer rdb.Close()
	}
	ucache := cache.NewUsers(c, cfg.Cache.UserTTL, logger.Component(log, "cache"))

	pub := queue.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, logger.Component(log, "publisher"))
	defer pub.Close()

	issuer := utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	sessions := session.NewManager(stores.Users, stores.Tokens, c, ucache, issuer, session.Config{
		AccessTTL:             cfg.Auth.AccessTTL,
		RefreshTTL:            cfg.Auth.RefreshTTL,
		ResetTTL:              cfg.Auth.ResetTTL,
		BcryptCost:            cfg.Auth.BcryptCost,
		Rotate:                cfg.Auth.RotateRefresh,
		SessionBoundUserCache: cfg.Auth.SessionBoundUserCache,
	}, logger.Component(log, "session"))
	profiles := profile.NewCoordinator(stores.Users, c, ucache, pub, logger.Component(log, "profile"))

	if cfg.Worker.Embedded {
		go runWorker(ctx, cfg, stores, log)
	}

	e := router.New(logger.Component(log, "http"))
	health := handler.NewHealthHandler(logger.Component(log, "health")).
		Require("store", stores.Users).
		Require("broker", pub).
		Observe("cache", c)
	jwt := middleware.JWTAuth(sessions)
	limiter := middleware.NewTokenBucket(cfg.RateLimit, rdb, logger.Component(log, "ratelimit"))

	router.RegisterRoutes(e, health)
	router.RegisterAuth(e, handler.NewAuthHandler(sessions, cfg.App.Env == "dev"), jwt, limiter)
	router.RegisterUsers(e, handler.NewUserHandler(profiles), jwt)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.App.Port
		log.Info().Str("addr", addr).Str("env", cfg.App.Env).Str("store", cfg.App.StoreDriver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// runWorker runs the sync consumer and the token janitor inside the API
// process until ctx is cancelled.
func runWorker(ctx context.Context, cfg *config.Config, stores *bootstrap.Stores, log zerolog.Logger) {
	syncer := worker.NewSyncer(stores.Users, stores.Tokens, logger.Component(log, "syncer"))
	consumer := queue.NewConsumer(queue.ConsumerConfig{
		URL:        cfg.RabbitMQ.URL,
		Queue:      cfg.RabbitMQ.Queue,
		Prefetch:   cfg.RabbitMQ.Prefetch,
		RetryDelay: cfg.RabbitMQ.RetryDelay,
	}, syncer.Handle, logger.Component(log, "consumer"))

	go worker.NewJanitor(stores.Tokens, cfg.Worker.JanitorInterval, logger.Component(log, "janitor")).Run(ctx)
	if err := consumer.Run(ctx); err != nil {
		log.Error().Err(err).Msg("embedded worker stopped")
	}
}
