package admin

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/repository/memory"
)

type MockFlightCache struct {
	mock.Mock
}

func (m *MockFlightCache) InvalidateFlight(ctx context.Context, flightID int64) error {
	return m.Called(ctx, flightID).Error(0)
}

func newService(cache FlightCache) (*Service, *memory.Store) {
	store := memory.NewStore()
	return New(store, cache, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestCreateRoute(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	r, err := svc.CreateRoute(ctx, RouteInput{DepartureCity: " Paris ", ArrivalCity: "Madrid", DistanceKM: 1050})
	require.NoError(t, err)
	assert.NotZero(t, r.ID)
	assert.Equal(t, "Paris", r.DepartureCity)

	_, err = svc.CreateRoute(ctx, RouteInput{DepartureCity: "Paris", ArrivalCity: "Madrid"})
	assert.ErrorIs(t, err, ErrRouteConflict)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.CreateRoute(ctx, RouteInput{DepartureCity: "Paris", ArrivalCity: "Paris"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.CreateRoute(ctx, RouteInput{DepartureCity: "Madrid", ArrivalCity: "Paris"})
	assert.NoError(t, err, "reverse direction is a different route")
}

func TestCreateFlight(t *testing.T) {
	cache := &MockFlightCache{}
	svc, store := newService(cache)
	ctx := context.Background()

	route, err := svc.CreateRoute(ctx, RouteInput{DepartureCity: "Paris", ArrivalCity: "Madrid"})
	require.NoError(t, err)
	aircraft, err := svc.CreateAircraft(ctx, "A321")
	require.NoError(t, err)

	dep := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	in := FlightInput{
		FlightNumber:  "ab 501",
		Airline:       "Airbook",
		RouteID:       route.ID,
		AircraftID:    aircraft.ID,
		DepartureTime: dep,
		ArrivalTime:   dep.Add(2 * time.Hour),
		Cabins: []CabinInput{
			{Class: "economy", Capacity: 150, PriceCents: 8000},
			{Class: "business", Capacity: 20, PriceCents: 32000},
		},
	}

	cache.On("InvalidateFlight", mock.Anything, mock.AnythingOfType("int64")).Return(nil).Once()

	f, err := svc.CreateFlight(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "AB 501", f.FlightNumber)
	cache.AssertExpectations(t)

	stored, err := store.Flights().Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Madrid", stored.Route.ArrivalCity)
	assert.Equal(t, 150, stored.Cabins[domain.CabinEconomy].SeatsAvailable)
	assert.Equal(t, 20, stored.Cabins[domain.CabinBusiness].Capacity)
	assert.NotContains(t, stored.Cabins, domain.CabinFirst)

	t.Run("arrival before departure", func(t *testing.T) {
		bad := in
		bad.ArrivalTime = dep.Add(-time.Hour)
		_, err := svc.CreateFlight(ctx, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("duplicate cabin", func(t *testing.T) {
		bad := in
		bad.Cabins = []CabinInput{{Class: "first", Capacity: 4}, {Class: "first", Capacity: 4}}
		_, err := svc.CreateFlight(ctx, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown route", func(t *testing.T) {
		bad := in
		bad.RouteID = 999
		_, err := svc.CreateFlight(ctx, bad)
		assert.ErrorIs(t, err, ErrScheduleRefMissing)
	})
}

func TestSetCabinPrice(t *testing.T) {
	svc, store := newService(nil)
	ctx := context.Background()

	route, err := svc.CreateRoute(ctx, RouteInput{DepartureCity: "Paris", ArrivalCity: "Nice"})
	require.NoError(t, err)
	aircraft, err := svc.CreateAircraft(ctx, "E190")
	require.NoError(t, err)

	dep := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)
	f, err := svc.CreateFlight(ctx, FlightInput{
		FlightNumber: "AB7", Airline: "Airbook", RouteID: route.ID, AircraftID: aircraft.ID,
		DepartureTime: dep, ArrivalTime: dep.Add(time.Hour),
		Cabins: []CabinInput{{Class: "economy", Capacity: 90, PriceCents: 5000}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.SetCabinPrice(ctx, f.ID, "Economy", 6500))
	price, err := store.Inventory().Quote(ctx, f.ID, domain.CabinEconomy)
	require.NoError(t, err)
	assert.EqualValues(t, 6500, price)

	err = svc.SetCabinPrice(ctx, f.ID, "first", 100)
	assert.ErrorIs(t, err, ErrCabinNotFound)

	err = svc.SetCabinPrice(ctx, f.ID, "economy", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
