package infra

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/settlement/internal/config"
)

// Stores holds the external connections the service runs against. Either
// field may be nil in development, where in-memory backends take over.
type Stores struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Open connects to Postgres and Redis. Outside development both are required;
// in development each is only dialed when its URL is set.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stores, error) {
	s := &Stores{}
	if cfg.DatabaseURL != "" || !cfg.IsDev() {
		db, err := NewPostgresPool(ctx, cfg.DatabaseURL, PoolOptions{
			MaxConns:        cfg.DBMaxConns,
			MaxConnIdleTime: 5 * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		s.DB = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	if cfg.RedisURL != "" || !cfg.IsDev() {
		cache, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Cache = cache
	} else {
		logger.Warn("REDIS_URL not set, idempotency cache and login rate limit disabled")
	}
	return s, nil
}

// Close releases every open connection.
func (s *Stores) Close() error {
	var errs []error
	if s.Cache != nil {
		errs = append(errs, s.Cache.Close())
	}
	if s.DB != nil {
		s.DB.Close()
	}
	return errors.Join(errs...)
}
