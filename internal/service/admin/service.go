package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/repository"
	"github.com/kirinyoku/airbook-go/internal/uow"
)

type FlightCache interface {
	InvalidateFlight(ctx context.Context, flightID int64) error
}

type Service struct {
	store    repository.Store
	cache    FlightCache
	logger   *slog.Logger
	uow      *uow.UoW
	validate *validator.Validate
}

// New builds the schedule admin service. cache may be nil.
func New(store repository.Store, cache FlightCache, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		cache:    cache,
		logger:   logger,
		uow:      uow.NewUoW(store),
		validate: validator.New(),
	}
}

type RouteInput struct {
	DepartureCity string `validate:"required,max=64"`
	ArrivalCity   string `validate:"required,max=64,nefield=DepartureCity"`
	DistanceKM    int    `validate:"gte=0"`
}

// CreateRoute registers a city pair.
//
// Returns:
//   - *domain.Route: the stored route with its ID.
//   - error: admin.ErrRouteConflict if the pair already exists.
func (s *Service) CreateRoute(ctx context.Context, in RouteInput) (*domain.Route, error) {
	const op = "service.admin.CreateRoute"

	in.DepartureCity = strings.TrimSpace(in.DepartureCity)
	in.ArrivalCity = strings.TrimSpace(in.ArrivalCity)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%s:%w", op, &ValidationError{Err: err})
	}

	route := &domain.Route{
		DepartureCity: in.DepartureCity,
		ArrivalCity:   in.ArrivalCity,
		DistanceKM:    in.DistanceKM,
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Store, after func(uow.AfterCommit)) error {
		if err := tx.Admin().CreateRoute(ctx, route); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrRouteConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return route, nil
}

func (s *Service) CreateAircraft(ctx context.Context, model string) (*domain.Aircraft, error) {
	const op = "service.admin.CreateAircraft"

	model = strings.TrimSpace(model)
	if err := s.validate.Var(model, "required,max=64"); err != nil {
		return nil, fmt.Errorf("%s:%w", op, &ValidationError{Err: err})
	}

	a := &domain.Aircraft{Model: model}
	if err := s.store.Admin().CreateAircraft(ctx, a); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return a, nil
}

type CabinInput struct {
	Class      string `validate:"required,oneof=economy business first"`
	Capacity   int    `validate:"gt=0,lte=1000"`
	PriceCents int64  `validate:"gte=0"`
}

type FlightInput struct {
	FlightNumber  string       `validate:"required,max=16"`
	Airline       string       `validate:"required,max=64"`
	RouteID       int64        `validate:"gt=0"`
	AircraftID    int64        `validate:"gt=0"`
	DepartureTime time.Time    `validate:"required"`
	ArrivalTime   time.Time    `validate:"required,gtfield=DepartureTime"`
	Cabins        []CabinInput `validate:"required,min=1,max=3,dive"`
}

// CreateFlight schedules a flight with every cabin fully available and
// retires cached searches that could now list it.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: flight data; each cabin class may appear once.
//
// Returns:
//   - *domain.Flight: the scheduled flight.
//   - error: admin.ErrScheduleRefMissing if the route or aircraft does not exist.
//   - error: *admin.ValidationError if the input is malformed.
func (s *Service) CreateFlight(ctx context.Context, in FlightInput) (*domain.Flight, error) {
	const op = "service.admin.CreateFlight"

	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%s:%w", op, &ValidationError{Err: err})
	}

	cabins := make(map[domain.CabinClass]domain.Cabin, len(in.Cabins))
	for _, c := range in.Cabins {
		class, _ := domain.ParseCabinClass(c.Class)
		if _, dup := cabins[class]; dup {
			return nil, fmt.Errorf("%s:%w", op, &ValidationError{Err: fmt.Errorf("cabin %s listed twice", class)})
		}
		cabins[class] = domain.Cabin{Class: class, Capacity: c.Capacity, PriceCents: c.PriceCents}
	}

	f := &domain.Flight{
		FlightNumber:  strings.ToUpper(strings.TrimSpace(in.FlightNumber)),
		Airline:       strings.TrimSpace(in.Airline),
		Route:         domain.Route{ID: in.RouteID},
		Aircraft:      domain.Aircraft{ID: in.AircraftID},
		DepartureTime: in.DepartureTime.UTC(),
		ArrivalTime:   in.ArrivalTime.UTC(),
		Status:        domain.FlightScheduled,
		Cabins:        cabins,
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Store, after func(uow.AfterCommit)) error {
		if err := tx.Admin().CreateFlight(ctx, f); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrScheduleRefMissing
			}
			return err
		}

		s.invalidateAfter(after, f.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.logger.Info("flight scheduled", "flight_id", f.ID, "flight_number", f.FlightNumber)

	return f, nil
}

// SetCabinPrice changes the price future bookings pay. Existing orders keep
// the price they were booked at.
//
// Returns:
//   - error: admin.ErrCabinNotFound if the flight has no such cabin.
func (s *Service) SetCabinPrice(ctx context.Context, flightID int64, class string, priceCents int64) error {
	const op = "service.admin.SetCabinPrice"

	c, ok := domain.ParseCabinClass(class)
	if !ok || priceCents < 0 {
		return fmt.Errorf("%s:%w", op, &ValidationError{Err: fmt.Errorf("class %q price %d", class, priceCents)})
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Store, after func(uow.AfterCommit)) error {
		if err := tx.Admin().SetCabinPrice(ctx, flightID, c, priceCents); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCabinNotFound
			}
			return err
		}

		s.invalidateAfter(after, flightID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (s *Service) invalidateAfter(after func(uow.AfterCommit), flightID int64) {
	if s.cache == nil {
		return
	}
	after(func(ctx context.Context) {
		if err := s.cache.InvalidateFlight(ctx, flightID); err != nil {
			s.logger.Warn("flight cache invalidation failed", "flight_id", flightID, "error", err)
		}
	})
}
