package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kirinyoku/airbook-go/internal/config"
	"github.com/kirinyoku/airbook-go/internal/events"
	"github.com/kirinyoku/airbook-go/internal/metrics"
	"github.com/kirinyoku/airbook-go/internal/postgres"
	"github.com/kirinyoku/airbook-go/internal/redis"
	"github.com/kirinyoku/airbook-go/internal/repository"
	"github.com/kirinyoku/airbook-go/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/airbook-go/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/airbook-go/internal/repository/redis"
	"github.com/kirinyoku/airbook-go/internal/service"
	"github.com/kirinyoku/airbook-go/internal/service/booking"
	"github.com/kirinyoku/airbook-go/internal/service/search"
)

// infra holds the connections shared by the API and the worker.
type infra struct {
	store    repository.Store
	rdb      *goredis.Client
	producer *events.Producer
	metrics  *metrics.Metrics
	closers  []func()
}

func newInfra(ctx context.Context, cfg *config.Config, logger *slog.Logger, appName string) (*infra, error) {
	const op = "app.newInfra"

	in := &infra{}

	switch cfg.Storage {
	case config.StorageMemory:
		in.store = memory.NewStore()
		logger.Warn("using in-memory storage; data is lost on exit")
	default:
		pool, err := postgres.New(ctx, postgres.Config{DSN: cfg.Postgres.DSN(), AppName: appName})
		if err != nil {
			return nil, fmt.Errorf("%s: postgres: %w", op, err)
		}
		in.closers = append(in.closers, pool.Close)
		in.store = postgresrepo.NewStore(pool)
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			in.close()
			return nil, fmt.Errorf("%s: redis: %w", op, err)
		}
		in.rdb = rdb
		in.closers = append(in.closers, func() { _ = rdb.Close() })
	}

	if len(cfg.Kafka.Brokers) > 0 {
		in.producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic)
		in.closers = append(in.closers, func() { _ = in.producer.Close() })
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	in.metrics = metrics.New(reg)

	return in, nil
}

func (in *infra) services(cfg *config.Config, logger *slog.Logger) *service.Services {
	deps := service.Deps{Metrics: in.metrics}

	if in.rdb != nil {
		deps.Cache = redisrepo.New(in.rdb)
		if cfg.Booking.RateLimitPerMinute > 0 {
			deps.Limiter = redisrepo.NewSlidingWindowLimiter(in.rdb, "orders", cfg.Booking.RateLimitPerMinute, time.Minute)
		}
	}

	if in.producer != nil {
		deps.Publisher = in.producer
	}

	return service.NewServices(in.store, deps, logger, service.Config{
		Booking: booking.Config{DefaultPaymentMethod: cfg.Booking.DefaultPaymentMethod},
		Search:  search.Config{SearchTTL: cfg.Booking.SearchCacheTTL},
	})
}

func (in *infra) idempotency(cfg *config.Config) *redisrepo.IdempotencyStore {
	if in.rdb == nil {
		return nil
	}
	return redisrepo.NewIdempotencyStore(in.rdb, cfg.Booking.IdempotencyTTL)
}

// close releases resources in reverse order of acquisition.
func (in *infra) close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
	in.closers = nil
}
