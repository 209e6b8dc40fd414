package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/repository"
	redisrepo "github.com/kirinyoku/airbook-go/internal/repository/redis"
)

const dateLayout = "2006-01-02"

type Config struct {
	FlightTTL       time.Duration
	SearchTTL       time.Duration
	DefaultPageSize int
	MaxPageSize     int
}

type Service struct {
	store  repository.Store
	cache  *redisrepo.Cache
	logger *slog.Logger
	cfg    Config
}

// New builds the search service. cache may be nil, in which case every call
// goes to the store.
func New(store repository.Store, cache *redisrepo.Cache, logger *slog.Logger, cfg Config) *Service {
	if cfg.FlightTTL <= 0 {
		cfg.FlightTTL = 30 * time.Second
	}

	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = 15 * time.Second
	}

	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 100
	}

	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 1000
	}

	return &Service{
		store:  store,
		cache:  cache,
		logger: logger,
		cfg:    cfg,
	}
}

// Query is the raw form of a search as it arrives from a client.
type Query struct {
	From       string
	To         string
	Date       string
	Class      string
	Passengers int
}

// Criteria validates q and turns it into search criteria. Passengers
// defaults to 1 when omitted.
func (q Query) Criteria() (domain.SearchCriteria, error) {
	c := domain.SearchCriteria{
		DepartureCity: strings.TrimSpace(q.From),
		ArrivalCity:   strings.TrimSpace(q.To),
		Passengers:    q.Passengers,
	}

	if c.DepartureCity == "" || c.ArrivalCity == "" {
		return c, fmt.Errorf("%w: departure and arrival city are required", ErrInvalidCriteria)
	}

	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(q.Date), time.UTC)
	if err != nil {
		return c, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidCriteria)
	}
	c.Date = day

	if q.Class != "" {
		class, ok := domain.ParseCabinClass(q.Class)
		if !ok {
			return c, fmt.Errorf("%w: unknown class %q", ErrInvalidCriteria, q.Class)
		}
		c.Class = &class
	}

	switch {
	case c.Passengers < 0 || c.Passengers > 9:
		return c, fmt.Errorf("%w: passengers must be between 1 and 9", ErrInvalidCriteria)
	case c.Passengers == 0:
		c.Passengers = 1
	}

	return c, nil
}

// Search lists scheduled flights matching q in departure order. Seat counts
// in the result are advisory: a later booking may still find the class full.
//
// Parameters:
//   - ctx: request-scoped context.
//   - q: raw search parameters.
//
// Returns:
//   - []domain.Flight: matching flights, possibly empty.
//   - error: search.ErrInvalidCriteria if q does not validate.
func (s *Service) Search(ctx context.Context, q Query) ([]domain.Flight, error) {
	const op = "service.search.Search"

	c, err := q.Criteria()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	load := func(ctx context.Context) ([]domain.Flight, error) {
		flights, err := s.store.Flights().Search(ctx, c)
		if err != nil {
			return nil, err
		}
		if flights == nil {
			flights = []domain.Flight{}
		}
		return flights, nil
	}

	if s.cache == nil {
		flights, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return flights, nil
	}

	gen, err := s.cache.SearchGeneration(ctx)
	if err != nil {
		s.logger.Warn("search cache unavailable", "error", err)
		flights, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return flights, nil
	}

	flights, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeySearch(gen, c), s.cfg.SearchTTL, load)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return flights, nil
}

// GetFlight returns one flight with its cabins, served from cache when possible.
//
// Returns:
//   - *domain.Flight: the flight.
//   - error: search.ErrFlightNotFound if it does not exist.
func (s *Service) GetFlight(ctx context.Context, id int64) (*domain.Flight, error) {
	const op = "service.search.GetFlight"

	load := func(ctx context.Context) (domain.Flight, error) {
		f, err := s.store.Flights().Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Flight{}, ErrFlightNotFound
			}
			return domain.Flight{}, err
		}
		return *f, nil
	}

	var (
		flight domain.Flight
		err    error
	)
	if s.cache != nil {
		flight, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyFlight(id), s.cfg.FlightTTL, load)
	} else {
		flight, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &flight, nil
}

// ListFlights pages through the schedule in departure order.
//
// Parameters:
//   - limit: page size; non-positive uses the default, capped at the maximum.
//   - offset: number of flights to skip.
func (s *Service) ListFlights(ctx context.Context, limit, offset int) ([]domain.Flight, error) {
	const op = "service.search.ListFlights"

	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}

	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	flights, err := s.store.Flights().List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if flights == nil {
		flights = []domain.Flight{}
	}

	return flights, nil
}
