package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/repository"
)

type orderRepo struct {
	st *state
	j  *journal
}

func clonePassenger(p *domain.Passenger) domain.Passenger {
	out := *p
	if p.SeatNumber != nil {
		seat := *p.SeatNumber
		out.SeatNumber = &seat
	}
	return out
}

func (r *orderRepo) Create(ctx context.Context, order *domain.Order, passengers []domain.Passenger) error {
	const op = "memory.OrderRepo.Create"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	st := r.st
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.flights[order.FlightID]; !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if _, taken := st.orderNumbers[order.OrderNumber]; taken {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	st.orderSeq++
	now := time.Now().UTC()
	order.ID = st.orderSeq
	order.CreatedAt = now
	order.UpdatedAt = now

	stored := *order
	st.orders[order.ID] = &stored
	st.orderNumbers[order.OrderNumber] = order.ID

	ps := make([]*domain.Passenger, len(passengers))
	for i := range passengers {
		st.passengerSeq++
		passengers[i].ID = st.passengerSeq
		passengers[i].OrderID = order.ID
		p := clonePassenger(&passengers[i])
		ps[i] = &p
	}
	st.passengers[order.ID] = ps

	id, number := order.ID, order.OrderNumber
	r.j.record(func() {
		st.mu.Lock()
		delete(st.orders, id)
		delete(st.orderNumbers, number)
		delete(st.passengers, id)
		st.mu.Unlock()
	})

	return nil
}

// view returns the order as this transaction sees it. Callers hold st.mu.
func (r *orderRepo) view(orderID int64) (domain.Order, bool) {
	o, ok := r.st.orders[orderID]
	if !ok {
		return domain.Order{}, false
	}
	if p, staged := r.j.pendingOrder(orderID); staged {
		return p, true
	}
	return *o, true
}

func (r *orderRepo) Get(ctx context.Context, orderID int64) (*domain.Order, error) {
	const op = "memory.OrderRepo.Get"

	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	o, ok := r.view(orderID)
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &o, nil
}

func (r *orderRepo) GetWithPassengers(ctx context.Context, orderID int64) (*domain.Order, []domain.Passenger, error) {
	const op = "memory.OrderRepo.GetWithPassengers"

	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	o, ok := r.view(orderID)
	if !ok {
		return nil, nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &o, r.st.passengersOf(orderID), nil
}

// passengersOf copies the passengers of an order. Callers hold st.mu.
func (st *state) passengersOf(orderID int64) []domain.Passenger {
	ps := st.passengers[orderID]
	out := make([]domain.Passenger, len(ps))
	for i, p := range ps {
		out[i] = clonePassenger(p)
	}
	return out
}

func (r *orderRepo) ListForUser(ctx context.Context, userID int64, trip *domain.TripStatus) ([]domain.Order, error) {
	r.st.mu.RLock()
	out := []domain.Order{}
	for _, o := range r.st.orders {
		if o.UserID != userID || (trip != nil && o.TripStatus != *trip) {
			continue
		}
		out = append(out, *o)
	}
	r.st.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID > out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})

	return out, nil
}

func (r *orderRepo) PassengersForOrders(ctx context.Context, orderIDs []int64) (map[int64][]domain.Passenger, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	out := make(map[int64][]domain.Passenger, len(orderIDs))
	for _, id := range orderIDs {
		if _, ok := r.st.passengers[id]; ok {
			out[id] = r.st.passengersOf(id)
		}
	}
	return out, nil
}

// compareAndSet changes an order if current accepts it. In a transaction the
// order stays locked until the transaction ends and the change is applied at
// commit.
func (r *orderRepo) compareAndSet(
	orderID int64,
	current func(o *domain.Order) bool,
	change func(o *domain.Order),
) error {
	st := r.st

	if r.j == nil {
		l := st.orderLock(orderID)
		l.Lock()
		defer l.Unlock()

		st.mu.Lock()
		defer st.mu.Unlock()

		o, ok := st.orders[orderID]
		if !ok {
			return repository.ErrNotFound
		}
		if !current(o) {
			return repository.ErrStaleStatus
		}
		change(o)
		o.UpdatedAt = time.Now().UTC()
		return nil
	}

	r.j.lockOrder(orderID)

	st.mu.RLock()
	o, ok := r.view(orderID)
	st.mu.RUnlock()

	if !ok {
		return repository.ErrNotFound
	}
	if !current(&o) {
		return repository.ErrStaleStatus
	}
	change(&o)
	o.UpdatedAt = time.Now().UTC()
	r.j.stage(o)

	return nil
}

func (r *orderRepo) UpdatePaymentStatus(
	ctx context.Context,
	orderID int64,
	from, to domain.PaymentStatus,
	method string,
) error {
	const op = "memory.OrderRepo.UpdatePaymentStatus"

	err := r.compareAndSet(orderID,
		func(o *domain.Order) bool { return o.PaymentStatus == from },
		func(o *domain.Order) {
			o.PaymentStatus = to
			if method != "" {
				o.PaymentMethod = method
			}
		},
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (r *orderRepo) UpdateTripStatus(ctx context.Context, orderID int64, from, to domain.TripStatus) error {
	const op = "memory.OrderRepo.UpdateTripStatus"

	err := r.compareAndSet(orderID,
		func(o *domain.Order) bool { return o.TripStatus == from },
		func(o *domain.Order) { o.TripStatus = to },
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// AssignSeat claims the seat at once so no other order can take it. Freeing
// the passenger's previous seat waits for commit.
func (r *orderRepo) AssignSeat(ctx context.Context, orderID, passengerID int64, seat string) error {
	const op = "memory.OrderRepo.AssignSeat"

	st := r.st
	st.mu.Lock()
	defer st.mu.Unlock()

	o, ok := st.orders[orderID]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	var p *domain.Passenger
	for _, cand := range st.passengers[orderID] {
		if cand.ID == passengerID {
			p = cand
			break
		}
	}
	if p == nil {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	key := seatKey{o.FlightID, seat}
	holder, taken := st.seats[key]
	if taken && holder != passengerID {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}
	if !taken {
		st.seats[key] = passengerID
		r.j.record(func() {
			st.mu.Lock()
			if st.seats[key] == passengerID {
				delete(st.seats, key)
			}
			st.mu.Unlock()
		})
	}

	flightID := o.FlightID
	move := func() {
		if prev := p.SeatNumber; prev != nil && *prev != seat {
			k := seatKey{flightID, *prev}
			if st.seats[k] == passengerID {
				delete(st.seats, k)
			}
		}
		s := seat
		p.SeatNumber = &s
	}

	if r.j == nil {
		move()
		return nil
	}
	r.j.later(move)

	return nil
}

// ReleaseSeats frees every seat held by the order's passengers. Passenger
// records keep their seat numbers.
func (r *orderRepo) ReleaseSeats(ctx context.Context, orderID int64) error {
	st := r.st
	st.write(r.j, func() {
		o, ok := st.orders[orderID]
		if !ok {
			return
		}

		holders := make(map[int64]bool, len(st.passengers[orderID]))
		for _, p := range st.passengers[orderID] {
			holders[p.ID] = true
		}
		for k, pid := range st.seats {
			if k.flightID == o.FlightID && holders[pid] {
				delete(st.seats, k)
			}
		}
	})

	return nil
}

func (r *orderRepo) SummaryForUser(ctx context.Context, userID int64) (*domain.OrderSummary, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	var s domain.OrderSummary
	for _, o := range r.st.orders {
		if o.UserID == userID {
			s.Add(o.TripStatus, 1)
		}
	}
	return &s, nil
}

// CompleteDeparted moves confirmed orders whose flight has landed by before to
// completed. Orders locked by another transaction are left for the next run.
func (r *orderRepo) CompleteDeparted(ctx context.Context, before time.Time) ([]domain.Order, error) {
	st := r.st
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []domain.Order
	now := time.Now().UTC()
	for id, stored := range st.orders {
		f, ok := st.flights[stored.FlightID]
		if !ok || f.ArrivalTime.After(before) {
			continue
		}

		o, _ := r.view(id)
		if o.TripStatus != domain.TripConfirmed {
			continue
		}

		if !r.j.holds(id) {
			l := st.orderLockLocked(id)
			if !l.TryLock() {
				continue
			}
			if r.j == nil {
				stored.TripStatus = domain.TripCompleted
				stored.UpdatedAt = now
				l.Unlock()
				out = append(out, *stored)
				continue
			}
			r.j.adopt(id, l)
		}

		o.TripStatus = domain.TripCompleted
		o.UpdatedAt = now
		r.j.stage(o)
		out = append(out, o)
	}

	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}
