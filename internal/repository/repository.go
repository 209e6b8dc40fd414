package repository

import (
	"context"
	"time"

	"github.com/kirinyoku/airbook-go/internal/domain"
)

// InventoryRepository owns per-(flight, class) seat counters.
type InventoryRepository interface {
	GetFlight(ctx context.Context, flightID int64) (*domain.Flight, error)
	// Quote returns the current per-seat price of class on the flight.
	Quote(ctx context.Context, flightID int64, class domain.CabinClass) (int64, error)
	// Reserve decrements availability by count or fails with ErrInsufficientSeats
	// leaving the counter untouched.
	Reserve(ctx context.Context, flightID int64, class domain.CabinClass, count int) error
	// Release increments availability by count, clamped to capacity.
	Release(ctx context.Context, flightID int64, class domain.CabinClass, count int) error
}

// OrderRepository is the ledger of orders and their passengers.
type OrderRepository interface {
	// Create persists order and passengers together, filling in generated IDs
	// and timestamps on both.
	Create(ctx context.Context, order *domain.Order, passengers []domain.Passenger) error
	Get(ctx context.Context, orderID int64) (*domain.Order, error)
	GetWithPassengers(ctx context.Context, orderID int64) (*domain.Order, []domain.Passenger, error)
	// ListForUser returns the user's orders newest first, optionally filtered by trip status.
	ListForUser(ctx context.Context, userID int64, trip *domain.TripStatus) ([]domain.Order, error)
	PassengersForOrders(ctx context.Context, orderIDs []int64) (map[int64][]domain.Passenger, error)
	// UpdatePaymentStatus moves payment from -> to. It fails with ErrStaleStatus
	// when the stored status is no longer from.
	UpdatePaymentStatus(ctx context.Context, orderID int64, from, to domain.PaymentStatus, method string) error
	UpdateTripStatus(ctx context.Context, orderID int64, from, to domain.TripStatus) error
	// AssignSeat gives the passenger seat on the order's flight, replacing any
	// earlier choice. ErrConflict means another passenger holds it.
	AssignSeat(ctx context.Context, orderID, passengerID int64, seat string) error
	// ReleaseSeats frees every seat assignment held by the order.
	ReleaseSeats(ctx context.Context, orderID int64) error
	SummaryForUser(ctx context.Context, userID int64) (*domain.OrderSummary, error)
	// CompleteDeparted completes confirmed orders whose flight arrived at or before before.
	CompleteDeparted(ctx context.Context, before time.Time) ([]domain.Order, error)
}

// FlightRepository serves the read side of the flight schedule.
type FlightRepository interface {
	Get(ctx context.Context, flightID int64) (*domain.Flight, error)
	Search(ctx context.Context, c domain.SearchCriteria) ([]domain.Flight, error)
	List(ctx context.Context, limit, offset int) ([]domain.Flight, error)
	// MarkDeparted flips scheduled flights that left at or before before.
	MarkDeparted(ctx context.Context, before time.Time) (int64, error)
}

// ScheduleRepository maintains routes, aircraft and flights with their cabins.
type ScheduleRepository interface {
	// CreateRoute fills r.ID. ErrConflict when the city pair already exists.
	CreateRoute(ctx context.Context, r *domain.Route) error
	CreateAircraft(ctx context.Context, a *domain.Aircraft) error
	// CreateFlight stores f and its cabins with every seat available, filling
	// f.ID. ErrNotFound when the referenced route or aircraft is missing.
	CreateFlight(ctx context.Context, f *domain.Flight) error
	SetCabinPrice(ctx context.Context, flightID int64, class domain.CabinClass, priceCents int64) error
}

// Store is a storage backend. Repositories obtained from the Store passed to
// a RunTx callback share that transaction.
type Store interface {
	Inventory() InventoryRepository
	Orders() OrderRepository
	Flights() FlightRepository
	Admin() ScheduleRepository
	// RunTx runs fn atomically: if fn returns an error, none of its writes survive.
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
