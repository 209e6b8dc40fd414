package service

import (
	"log/slog"

	"github.com/kirinyoku/airbook-go/internal/metrics"
	"github.com/kirinyoku/airbook-go/internal/repository"
	redisrepo "github.com/kirinyoku/airbook-go/internal/repository/redis"
	"github.com/kirinyoku/airbook-go/internal/service/admin"
	"github.com/kirinyoku/airbook-go/internal/service/booking"
	"github.com/kirinyoku/airbook-go/internal/service/orders"
	"github.com/kirinyoku/airbook-go/internal/service/search"
)

type Services struct {
	Booking *booking.Service
	Search  *search.Service
	Admin   *admin.Service
	Orders  *orders.Service
}

type Config struct {
	Booking booking.Config
	Search  search.Config
}

// Deps are the optional collaborators of the services. Any of them may be nil.
type Deps struct {
	Cache     *redisrepo.Cache
	Limiter   *redisrepo.SlidingWindowLimiter
	Publisher booking.Publisher
	Metrics   *metrics.Metrics
}

func NewServices(store repository.Store, deps Deps, logger *slog.Logger, cfg Config) *Services {
	// typed nil pointers must not reach the interface fields
	var (
		flightCache booking.FlightCache
		adminCache  admin.FlightCache
		limiter     booking.Limiter
	)
	if deps.Cache != nil {
		flightCache = deps.Cache
		adminCache = deps.Cache
	}
	if deps.Limiter != nil {
		limiter = deps.Limiter
	}

	return &Services{
		Booking: booking.New(store, flightCache, deps.Publisher, limiter, deps.Metrics, logger, cfg.Booking),
		Search:  search.New(store, deps.Cache, logger, cfg.Search),
		Admin:   admin.New(store, adminCache, logger),
		Orders:  orders.New(store),
	}
}
