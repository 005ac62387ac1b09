// Package bootstrap opens the backing services shared by the API and the
// sync worker.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/devhub-auth/internal/cache"
	"github.com/iliyamo/devhub-auth/internal/config"
	"github.com/iliyamo/devhub-auth/internal/database"
	"github.com/iliyamo/devhub-auth/internal/repository"
	"github.com/iliyamo/devhub-auth/internal/repository/mongostore"
)

// Stores is the credential store selected by STORE_DRIVER.
type Stores struct {
	Users  repository.UserStore
	Tokens repository.TokenStore
	close  func(context.Context) error
}

// Close releases the underlying connection pool.
func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// OpenStores connects to the configured store. With the MySQL driver the
// embedded migrations run first when migrate is true.
func OpenStores(ctx context.Context, cfg *config.Config, migrate bool, log zerolog.Logger) (*Stores, error) {
	switch cfg.App.StoreDriver {
	case config.StoreMongo:
		client, db, err := mongostore.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongo")
		return &Stores{
			Users:  mongostore.NewUserStore(db),
			Tokens: mongostore.NewTokenStore(db),
			close:  client.Disconnect,
		}, nil

	case config.StoreMySQL:
		db, err := database.Open(ctx, cfg.MySQL)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := database.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
			log.Info().Msg("migrations applied")
		}
		log.Info().Str("host", cfg.MySQL.Host).Str("database", cfg.MySQL.Name).Msg("connected to mysql")
		return &Stores{
			Users:  repository.NewUserRepo(db),
			Tokens: repository.NewTokenRepo(db),
			close:  func(context.Context) error { return db.Close() },
		}, nil
	}
	return nil, fmt.Errorf("bootstrap: unsupported store driver %q", cfg.App.StoreDriver)
}

// OpenCache returns the Redis-backed cache and its client. When caching is
// disabled or Redis is unreachable it returns cache.Nop and a nil client,
// and every lookup goes to the store.
func OpenCache(ctx context.Context, cfg *config.Config, log zerolog.Logger) (cache.Cache, *redis.Client) {
	if !cfg.Cache.Enabled {
		log.Info().Msg("cache disabled")
		return cache.Nop{}, nil
	}
	rdb, err := config.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable; caching and rate limiting disabled")
		return cache.Nop{}, nil
	}
	return cache.NewRedis(rdb, cfg.Cache.Prefix), rdb
}
