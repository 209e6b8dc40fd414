package booking

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/events"
	"github.com/kirinyoku/airbook-go/internal/repository"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderEvent(ctx context.Context, ev events.OrderEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type MockFlightCache struct {
	mock.Mock
}

func (m *MockFlightCache) InvalidateFlight(ctx context.Context, flightID int64) error {
	args := m.Called(ctx, flightID)
	return args.Error(0)
}

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, id string) (bool, int64, time.Duration, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Get(1).(int64), args.Get(2).(time.Duration), args.Error(3)
}

// failingStore makes OrderRepository.Create fail inside any transaction.
type failingStore struct {
	repository.Store
	err error
}

type failingOrders struct {
	repository.OrderRepository
	err error
}

func (f failingOrders) Create(context.Context, *domain.Order, []domain.Passenger) error {
	return f.err
}

func (s failingStore) Orders() repository.OrderRepository {
	return failingOrders{OrderRepository: s.Store.Orders(), err: s.err}
}

func (s failingStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return s.Store.RunTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return fn(ctx, failingStore{Store: tx, err: s.err})
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(store repository.Store) *Service {
	return New(store, nil, nil, nil, nil, discardLogger(), Config{})
}

type flightOpt func(*domain.Flight)

func departing(at time.Time) flightOpt {
	return func(f *domain.Flight) {
		f.DepartureTime = at
		f.ArrivalTime = at.Add(2 * time.Hour)
	}
}

func withStatus(s domain.FlightStatus) flightOpt {
	return func(f *domain.Flight) { f.Status = s }
}

var routeSeq atomic.Int64

func seedFlight(t *testing.T, store repository.Store, cabins map[domain.CabinClass]domain.Cabin, opts ...flightOpt) *domain.Flight {
	t.Helper()
	ctx := context.Background()

	route := &domain.Route{DepartureCity: "Warsaw", ArrivalCity: fmt.Sprintf("City-%d", routeSeq.Add(1)), DistanceKM: 900}
	require.NoError(t, store.Admin().CreateRoute(ctx, route))

	aircraft := &domain.Aircraft{Model: "E195"}
	require.NoError(t, store.Admin().CreateAircraft(ctx, aircraft))

	dep := time.Now().Add(48 * time.Hour).UTC()
	f := &domain.Flight{
		FlightNumber:  "AB200",
		Airline:       "Airbook",
		Route:         domain.Route{ID: route.ID},
		Aircraft:      domain.Aircraft{ID: aircraft.ID},
		DepartureTime: dep,
		ArrivalTime:   dep.Add(2 * time.Hour),
		Status:        domain.FlightScheduled,
		Cabins:        cabins,
	}
	for _, o := range opts {
		o(f)
	}
	require.NoError(t, store.Admin().CreateFlight(ctx, f))
	return f
}

func cabins(kv ...any) map[domain.CabinClass]domain.Cabin {
	out := map[domain.CabinClass]domain.Cabin{}
	for i := 0; i+2 < len(kv); i += 3 {
		out[kv[i].(domain.CabinClass)] = domain.Cabin{Capacity: kv[i+1].(int), PriceCents: int64(kv[i+2].(int))}
	}
	return out
}

func passengers(classes ...domain.CabinClass) []PassengerInput {
	out := make([]PassengerInput, len(classes))
	for i, c := range classes {
		out[i] = PassengerInput{FullName: "Passenger", IDDocument: "AB123456", Class: string(c)}
	}
	return out
}

func seatsLeft(t *testing.T, store repository.Store, flightID int64, class domain.CabinClass) int {
	t.Helper()
	f, err := store.Flights().Get(context.Background(), flightID)
	require.NoError(t, err)
	return f.Cabins[class].SeatsAvailable
}
