package booking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/events"
	"github.com/kirinyoku/airbook-go/internal/repository"
	"github.com/kirinyoku/airbook-go/internal/repository/memory"
)

// stallingStore pauses the first seat release made inside a transaction until
// resume is closed.
type stallingStore struct {
	repository.Store
	once    sync.Once
	stalled chan struct{}
	resume  chan struct{}
}

type stallingInventory struct {
	repository.InventoryRepository
	s *stallingStore
}

func (i stallingInventory) Release(ctx context.Context, flightID int64, class domain.CabinClass, count int) error {
	i.s.once.Do(func() {
		close(i.s.stalled)
		<-i.s.resume
	})
	return i.InventoryRepository.Release(ctx, flightID, class, count)
}

type stallingTx struct {
	repository.Store
	s *stallingStore
}

func (tx stallingTx) Inventory() repository.InventoryRepository {
	return stallingInventory{InventoryRepository: tx.Store.Inventory(), s: tx.s}
}

func (s *stallingStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return s.Store.RunTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return fn(ctx, stallingTx{Store: tx, s: s})
	})
}

func book(t *testing.T, svc *Service, userID, flightID int64, classes ...domain.CabinClass) *domain.OrderView {
	t.Helper()
	view, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: userID, FlightID: flightID, Passengers: passengers(classes...),
	})
	require.NoError(t, err)
	return view
}

func TestCancelOrder_ReturnsSeatsOnce(t *testing.T) {
	store := memory.NewStore()
	f := seedFlight(t, store, cabins(
		domain.CabinEconomy, 10, 100,
		domain.CabinBusiness, 2, 500,
	))
	svc := newTestService(store)
	ctx := context.Background()

	view := book(t, svc, 1, f.ID, domain.CabinEconomy, domain.CabinEconomy, domain.CabinBusiness)
	require.Equal(t, 8, seatsLeft(t, store, f.ID, domain.CabinEconomy))

	order, err := svc.CancelOrder(ctx, view.Order.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TripCancelled, order.TripStatus)
	assert.Equal(t, domain.PaymentCancelled, order.PaymentStatus)

	assert.Equal(t, 10, seatsLeft(t, store, f.ID, domain.CabinEconomy))
	assert.Equal(t, 2, seatsLeft(t, store, f.ID, domain.CabinBusiness))

	_, err = svc.CancelOrder(ctx, view.Order.ID, 1)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// a second buyer can take the freed seats, but not more
	book(t, svc, 2, f.ID, domain.CabinBusiness, domain.CabinBusiness)
	assert.Equal(t, 0, seatsLeft(t, store, f.ID, domain.CabinBusiness))
}

func TestCancelOrder_ConcurrentCancelsReleaseOnce(t *testing.T) {
	store := memory.NewStore()
	f := seedFlight(t, store, cabins(domain.CabinEconomy, 4, 100))
	svc := newTestService(store)

	view := book(t, svc, 1, f.ID, domain.CabinEconomy, domain.CabinEconomy)
	book(t, svc, 2, f.ID, domain.CabinEconomy, domain.CabinEconomy)

	var wins atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CancelOrder(context.Background(), view.Order.ID, 1); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidState)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.Equal(t, 2, seatsLeft(t, store, f.ID, domain.CabinEconomy))
}

func TestCancelOrder_NotVisibleBeforeSeatsReturn(t *testing.T) {
	mem := memory.NewStore()
	f := seedFlight(t, mem, cabins(domain.CabinEconomy, 2, 100))
	store := &stallingStore{Store: mem, stalled: make(chan struct{}), resume: make(chan struct{})}
	svc := newTestService(store)
	ctx := context.Background()

	view := book(t, svc, 1, f.ID, domain.CabinEconomy, domain.CabinEconomy)
	require.Equal(t, 0, seatsLeft(t, mem, f.ID, domain.CabinEconomy))

	var resumeOnce sync.Once
	resume := func() { resumeOnce.Do(func() { close(store.resume) }) }
	defer resume()

	done := make(chan error, 1)
	go func() {
		_, err := svc.CancelOrder(ctx, view.Order.ID, 1)
		done <- err
	}()

	<-store.stalled
	mid, err := mem.Orders().Get(ctx, view.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TripPendingCheckin, mid.TripStatus)
	assert.Equal(t, domain.PaymentUnpaid, mid.PaymentStatus)
	assert.Equal(t, 0, seatsLeft(t, mem, f.ID, domain.CabinEconomy))

	resume()
	require.NoError(t, <-done)

	after, err := mem.Orders().Get(ctx, view.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TripCancelled, after.TripStatus)
	assert.Equal(t, domain.PaymentCancelled, after.PaymentStatus)
	assert.Equal(t, 2, seatsLeft(t, mem, f.ID, domain.CabinEconomy))
}

func TestCancelOrder_PaidStaysPaid(t *testing.T) {
	store := memory.NewStore()
	f := seedFlight(t, store, cabins(domain.CabinEconomy, 3, 100))
	svc := newTestService(store)
	ctx := context.Background()

	view := book(t, svc, 1, f.ID, domain.CabinEconomy)
	_, err := svc.PayOrder(ctx, view.Order.ID, 1, "")
	require.NoError(t, err)

	order, err := svc.CancelOrder(ctx, view.Order.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, domain.TripCancelled, order.TripStatus)
	assert.Equal(t, 3, seatsLeft(t, store, f.ID, domain.CabinEconomy))
}

func TestOrderOwnershipAndLookup(t *testing.T) {
	store := memory.NewStore()
	f := seedFlight(t, store, cabins(domain.CabinEconomy, 3, 100))
	svc := newTestService(store)
	ctx := context.Background()

	view := book(t, svc, 1, f.ID, domain.CabinEconomy)

	_, err := svc.CancelOrder(ctx, view.Order.ID, 2)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.PayOrder(ctx, view.Order.ID, 2, "card")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.CheckIn(ctx, view.Order.ID, 2)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.CancelOrder(ctx, 999, 1)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, 2, seatsLeft(t, store, f.ID, domain.CabinEconomy))
}

func TestPayOrder(t *testing.T) {
	store := memory.NewStore()
	f := seedFlight(t, store, cabins(domain.CabinEconomy, 3, 100))

	pub := &MockPublisher{}
	pub.On("PublishOrderEvent", mock.Anything, mock.Anything).Return(nil)
	svc := New(store, nil, pub, nil, nil, discardLogger(), Config{DefaultPaymentMethod: "wallet"})
	ctx := context.Background()

	view := book(t, svc, 1, f.ID, domain.CabinEconomy)

	order, err := svc.PayOrder(ctx, view.Order.ID, 1, "")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, "wallet", order.PaymentMethod)
	assert.Equal(t, domain.TripPendingCheckin, order.TripStatus)

	_, err = svc.PayOrder(ctx, view.Order.ID, 1, "card")
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	pub.AssertCalled(t, "PublishOrderEvent", mock.Anything, mock.MatchedBy(func(ev events.OrderEvent) bool {
		return ev.Type == events.TypeOrderPaid && ev.PaymentStatus == domain.PaymentPaid
	}))
}

func TestPayOrder_ConcurrentAttemptsChargeOnce(t *testing.T) {
	store := memory.NewStore()
	f := seedFlight(t, store, cabins(domain.CabinEconomy, 3, 100))
	svc := newTestService(store)

	view := book(t, svc, 1, f.ID, domain.CabinEconomy)

	var wins atomic.Int64
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PayOrder(context.Background(), view.Order.ID, 1, "card")
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrAlreadyPaid)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
}

func TestPayOrder_CancelledOrder(t *testing.T) {
	store := memory.NewStore()
	f := seedFlight(t, store, cabins(domain.CabinEconomy, 3, 100))
	svc := newTestService(store)
	ctx := context.Background()

	view := book(t, svc, 1, f.ID, domain.CabinEconomy)
	_, err := svc.CancelOrder(ctx, view.Order.ID, 1)
	require.NoError(t, err)

	_, err = svc.PayOrder(ctx, view.Order.ID, 1, "card")
	assert.ErrorIs(t, err, ErrOrderCancelled)
}

func TestSelectSeat(t *testing.T) {
	store := memory.NewStore()
	f := seedFlight(t, store, cabins(domain.CabinEconomy, 5, 100))
	svc := newTestService(store)
	ctx := context.Background()

	first := book(t, svc, 1, f.ID, domain.CabinEconomy)
	second := book(t, svc, 2, f.ID, domain.CabinEconomy)
	p1 := first.Passengers[0].ID
	p2 := second.Passengers[0].ID

	_, err := svc.SelectSeat(ctx, SelectSeatInput{OrderID: first.Order.ID, UserID: 1, PassengerID: p1, Seat: "12C"})
	assert.ErrorIs(t, err, ErrOrderNotConfirmed)

	_, err = svc.PayOrder(ctx, first.Order.ID, 1, "card")
	require.NoError(t, err)
	_, err = svc.PayOrder(ctx, second.Order.ID, 2, "card")
	require.NoError(t, err)

	for _, bad := range []string{"", "0A", "12", "1000A", "12L", "A12"} {
		_, err = svc.SelectSeat(ctx, SelectSeatInput{OrderID: first.Order.ID, UserID: 1, PassengerID: p1, Seat: bad})
		assert.ErrorIs(t, err, ErrInvalidSeat, bad)
	}

	p, err := svc.SelectSeat(ctx, SelectSeatInput{OrderID: first.Order.ID, UserID: 1, PassengerID: p1, Seat: " 12c "})
	require.NoError(t, err)
	require.NotNil(t, p.SeatNumber)
	assert.Equal(t, "12C", *p.SeatNumber)

	_, err = svc.SelectSeat(ctx, SelectSeatInput{OrderID: second.Order.ID, UserID: 2, PassengerID: p2, Seat: "12C"})
	assert.ErrorIs(t, err, ErrSeatTaken)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.SelectSeat(ctx, SelectSeatInput{OrderID: second.Order.ID, UserID: 2, PassengerID: p1, Seat: "14A"})
	assert.ErrorIs(t, err, ErrPassengerNotFound)

	_, err = svc.CancelOrder(ctx, first.Order.ID, 1)
	require.NoError(t, err)

	_, err = svc.SelectSeat(ctx, SelectSeatInput{OrderID: first.Order.ID, UserID: 1, PassengerID: p1, Seat: "1A"})
	assert.ErrorIs(t, err, ErrOrderNotConfirmed)

	p, err = svc.SelectSeat(ctx, SelectSeatInput{OrderID: second.Order.ID, UserID: 2, PassengerID: p2, Seat: "12C"})
	require.NoError(t, err)
	assert.Equal(t, "12C", *p.SeatNumber)
}

func TestCheckIn(t *testing.T) {
	store := memory.NewStore()
	f := seedFlight(t, store, cabins(domain.CabinEconomy, 5, 100))
	svc := newTestService(store)
	ctx := context.Background()

	view := book(t, svc, 1, f.ID, domain.CabinEconomy)

	_, err := svc.CheckIn(ctx, view.Order.ID, 1)
	assert.ErrorIs(t, err, ErrNotPaid)

	_, err = svc.PayOrder(ctx, view.Order.ID, 1, "card")
	require.NoError(t, err)

	order, err := svc.CheckIn(ctx, view.Order.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TripConfirmed, order.TripStatus)

	_, err = svc.CheckIn(ctx, view.Order.ID, 1)
	var te *TransitionError
	assert.ErrorAs(t, err, &te)

	// seats can still be changed after check-in
	_, err = svc.SelectSeat(ctx, SelectSeatInput{OrderID: view.Order.ID, UserID: 1, PassengerID: view.Passengers[0].ID, Seat: "2B"})
	assert.NoError(t, err)
}

func TestCompleteDepartedTrips(t *testing.T) {
	store := memory.NewStore()
	dep := time.Now().Add(2 * time.Hour).UTC()
	f := seedFlight(t, store, cabins(domain.CabinEconomy, 5, 100), departing(dep))
	svc := newTestService(store)
	ctx := context.Background()

	checkedIn := book(t, svc, 1, f.ID, domain.CabinEconomy)
	noShow := book(t, svc, 2, f.ID, domain.CabinEconomy)

	_, err := svc.PayOrder(ctx, checkedIn.Order.ID, 1, "card")
	require.NoError(t, err)
	_, err = svc.CheckIn(ctx, checkedIn.Order.ID, 1)
	require.NoError(t, err)

	n, err := svc.CompleteDepartedTrips(ctx, dep.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.CompleteDepartedTrips(ctx, dep.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done, err := store.Orders().Get(ctx, checkedIn.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TripCompleted, done.TripStatus)

	pending, err := store.Orders().Get(ctx, noShow.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TripPendingCheckin, pending.TripStatus)

	flight, err := store.Flights().Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FlightDeparted, flight.Status)

	_, err = svc.CancelOrder(ctx, checkedIn.Order.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
