// Command worker consumes profile events and applies them to the credential
// store. It also sweeps expired and revoked tokens.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/iliyamo/devhub-auth/internal/bootstrap"
	"github.com/iliyamo/devhub-auth/internal/config"
	"github.com/iliyamo/devhub-auth/internal/logger"
	"github.com/iliyamo/devhub-auth/internal/queue"
	"github.com/iliyamo/devhub-auth/internal/worker"
)

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
		log.Fatal().Err(err).Msg("worker stopped")
	}
	log.Info().Msg("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// Schema changes belong to the API process.
	stores, err := bootstrap.OpenStores(ctx, cfg, false, logger.Component(log, "store"))
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	syncer := worker.NewSyncer(stores.Users, stores.Tokens, logger.Component(log, "syncer"))
	consumer := queue.NewConsumer(queue.ConsumerConfig{
		URL:        cfg.RabbitMQ.URL,
		Queue:      cfg.RabbitMQ.Queue,
		Prefetch:   cfg.RabbitMQ.Prefetch,
		RetryDelay: cfg.RabbitMQ.RetryDelay,
	}, syncer.Handle, logger.Component(log, "consumer"))

	go worker.NewJanitor(stores.Tokens, cfg.Worker.JanitorInterval, logger.Component(log, "janitor")).Run(ctx)

	log.Info().Str("queue", cfg.RabbitMQ.Queue).Str("store", cfg.App.StoreDriver).Msg("worker started")
	return consumer.Run(ctx)
}
