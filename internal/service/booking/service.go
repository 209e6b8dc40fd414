package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/events"
	"github.com/kirinyoku/airbook-go/internal/metrics"
	"github.com/kirinyoku/airbook-go/internal/repository"
	"github.com/kirinyoku/airbook-go/internal/uow"
)

// FlightCache drops cached flight data once seat counts change.
type FlightCache interface {
	InvalidateFlight(ctx context.Context, flightID int64) error
}

type Publisher interface {
	PublishOrderEvent(ctx context.Context, ev events.OrderEvent) error
}

type Limiter interface {
	Allow(ctx context.Context, id string) (bool, int64, time.Duration, error)
}

type Config struct {
	DefaultPaymentMethod string
}

type Service struct {
	store    repository.Store
	cache    FlightCache
	events   Publisher
	limiter  Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	uow      *uow.UoW
	validate *validator.Validate
	cfg      Config
	now      func() time.Time
}

// New builds the booking service. cache, publisher, limiter and m may be nil.
func New(
	store repository.Store,
	cache FlightCache,
	publisher Publisher,
	limiter Limiter,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.DefaultPaymentMethod == "" {
		cfg.DefaultPaymentMethod = "card"
	}

	return &Service{
		store:    store,
		cache:    cache,
		events:   publisher,
		limiter:  limiter,
		metrics:  m,
		logger:   logger,
		uow:      uow.NewUoW(store),
		validate: validator.New(),
		cfg:      cfg,
		now:      time.Now,
	}
}

type PassengerInput struct {
	FullName   string `validate:"required,max=100"`
	IDDocument string `validate:"required,max=32"`
	Phone      string `validate:"omitempty,max=32"`
	Class      string `validate:"required"`
}

type CreateOrderInput struct {
	UserID     int64            `validate:"gt=0"`
	FlightID   int64            `validate:"gt=0"`
	Passengers []PassengerInput `validate:"required,min=1,max=9,dive"`
}

// CreateOrder books seats for every passenger and records the order in one
// unit of work. Passengers are priced at the quote taken inside that unit;
// seats are reserved class by class, first to economy.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: the booking request.
//
// Returns:
//   - *domain.OrderView: the new order in pending_checkin / unpaid.
//   - error: booking.ErrFlightNotFound if the flight does not exist.
//   - error: booking.ErrFlightNotBookable if the flight is not scheduled or has
//     already departed.
//   - error: *booking.InvalidClassError if a class is unknown or not offered.
//   - error: *booking.InsufficientSeatsError naming the class that ran out.
//   - error: *booking.ValidationError if the input is malformed.
//   - error: *booking.RateLimitedError if the user books too often.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.OrderView, error) {
	const op = "service.booking.CreateOrder"

	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%s:%w", op, &ValidationError{Err: err})
	}

	classes := make([]domain.CabinClass, len(in.Passengers))
	for i, p := range in.Passengers {
		c, ok := domain.ParseCabinClass(p.Class)
		if !ok {
			return nil, fmt.Errorf("%s:%w", op, &InvalidClassError{Class: p.Class})
		}
		classes[i] = c
	}

	if s.limiter != nil {
		ok, _, retry, err := s.limiter.Allow(ctx, strconv.FormatInt(in.UserID, 10))
		if err != nil {
			s.logger.Warn("booking rate limiter unavailable", "user_id", in.UserID, "error", err)
			ok = true
		}
		if !ok {
			return nil, fmt.Errorf("%s:%w", op, &RateLimitedError{RetryAfter: retry})
		}
	}

	var view *domain.OrderView

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Store, after func(uow.AfterCommit)) error {
		flight, err := tx.Inventory().GetFlight(ctx, in.FlightID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrFlightNotFound
			}
			return err
		}
		if flight.Status != domain.FlightScheduled || !flight.DepartureTime.After(s.now()) {
			return ErrFlightNotBookable
		}

		passengers := make([]domain.Passenger, len(in.Passengers))
		perClass := make(map[domain.CabinClass]int, len(domain.CabinClasses))
		var total int64

		for i, p := range in.Passengers {
			price, err := tx.Inventory().Quote(ctx, flight.ID, classes[i])
			if err != nil {
				if errors.Is(err, repository.ErrClassNotOffered) {
					return &InvalidClassError{Class: string(classes[i])}
				}
				return err
			}

			passengers[i] = domain.Passenger{
				FullName:   p.FullName,
				IDDocument: p.IDDocument,
				Phone:      p.Phone,
				Class:      classes[i],
				PriceCents: price,
			}
			perClass[classes[i]]++
			total += price
		}

		for _, class := range domain.CabinClasses {
			n := perClass[class]
			if n == 0 {
				continue
			}

			if err := tx.Inventory().Reserve(ctx, flight.ID, class, n); err != nil {
				if errors.Is(err, repository.ErrInsufficientSeats) {
					s.metrics.ObserveReservation(string(class), "insufficient")
					return &InsufficientSeatsError{FlightID: flight.ID, Class: class, Requested: n}
				}
				return err
			}
			s.metrics.ObserveReservation(string(class), "reserved")
		}

		order := &domain.Order{
			UserID:        in.UserID,
			FlightID:      flight.ID,
			OrderNumber:   domain.NewOrderNumber(s.now()),
			TotalCents:    total,
			PaymentStatus: domain.PaymentUnpaid,
			TripStatus:    domain.TripPendingCheckin,
		}
		if err := tx.Orders().Create(ctx, order, passengers); err != nil {
			return err
		}

		view = &domain.OrderView{
			Order:      *order,
			Passengers: passengers,
			Flight:     flight.Summary(),
		}

		s.afterOrderChange(after, events.TypeOrderCreated, *order, true)
		return nil
	})
	if err != nil {
		s.metrics.ObserveOrder(outcome(err))
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.metrics.ObserveOrder("created")
	s.logger.Info("order created",
		"order_id", view.Order.ID,
		"order_number", view.Order.OrderNumber,
		"flight_id", view.Order.FlightID,
		"passengers", len(view.Passengers),
		"total_cents", view.Order.TotalCents,
	)

	return view, nil
}

// CancelOrder cancels the trip, returns every passenger's seat to inventory
// and frees seat assignments, all or nothing. An unpaid order's payment is
// cancelled too; a paid one stays paid.
//
// Parameters:
//   - ctx: request-scoped context.
//   - orderID: order to cancel.
//   - userID: caller, must own the order.
//
// Returns:
//   - *domain.Order: the order after cancellation.
//   - error: booking.ErrOrderNotFound, booking.ErrForbidden.
//   - error: *booking.TransitionError if the trip is completed or cancelled.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID int64) (*domain.Order, error) {
	const op = "service.booking.CancelOrder"

	var out *domain.Order

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Store, after func(uow.AfterCommit)) error {
		order, passengers, err := tx.Orders().GetWithPassengers(ctx, orderID)
		if err != nil {
			return notFound(err, ErrOrderNotFound)
		}
		if order.UserID != userID {
			return ErrForbidden
		}
		if !domain.CanTransitionTrip(order.TripStatus, domain.TripCancelled) {
			return &TransitionError{From: string(order.TripStatus), To: string(domain.TripCancelled)}
		}

		if err := tx.Orders().UpdateTripStatus(ctx, order.ID, order.TripStatus, domain.TripCancelled); err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				return &TransitionError{From: string(order.TripStatus), To: string(domain.TripCancelled)}
			}
			return err
		}
		order.TripStatus = domain.TripCancelled

		if order.PaymentStatus == domain.PaymentUnpaid {
			err := tx.Orders().UpdatePaymentStatus(ctx, order.ID, domain.PaymentUnpaid, domain.PaymentCancelled, "")
			switch {
			case err == nil:
				order.PaymentStatus = domain.PaymentCancelled
			case errors.Is(err, repository.ErrStaleStatus):
				// paid in the meantime; the payment stands
				order.PaymentStatus = domain.PaymentPaid
			default:
				return err
			}
		}

		if err := tx.Orders().ReleaseSeats(ctx, order.ID); err != nil {
			return err
		}

		perClass := make(map[domain.CabinClass]int, len(domain.CabinClasses))
		for _, p := range passengers {
			perClass[p.Class]++
		}
		for _, class := range domain.CabinClasses {
			if n := perClass[class]; n > 0 {
				if err := tx.Inventory().Release(ctx, order.FlightID, class, n); err != nil {
					return err
				}
			}
		}

		out = order
		s.afterOrderChange(after, events.TypeOrderCancelled, *order, true)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.metrics.ObserveOrder("cancelled")
	s.logger.Info("order cancelled", "order_id", out.ID, "payment_status", out.PaymentStatus)

	return out, nil
}

func (s *Service) afterOrderChange(after func(uow.AfterCommit), typ string, o domain.Order, seatsChanged bool) {
	after(func(ctx context.Context) {
		if seatsChanged && s.cache != nil {
			if err := s.cache.InvalidateFlight(ctx, o.FlightID); err != nil {
				s.logger.Warn("flight cache invalidation failed", "flight_id", o.FlightID, "error", err)
			}
		}
		if s.events != nil {
			if err := s.events.PublishOrderEvent(ctx, events.NewOrderEvent(typ, &o, s.now())); err != nil {
				s.logger.Warn("order event not published", "type", typ, "order_id", o.ID, "error", err)
			}
		}
	})
}

// notFound swaps a repository miss for the service-level error.
func notFound(err, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientInventory):
		return "insufficient"
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidState):
		return "rejected"
	default:
		return "failed"
	}
}
