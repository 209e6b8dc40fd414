// Package memory is an in-process storage backend. Seat counters are guarded
// by one mutex per (flight, class) and order statuses by compare-and-set.
//
// Inside RunTx, seat reservations, new rows and seat claims take effect at
// once and are undone in reverse order if the callback fails. Every other
// write (status changes, seat releases, departures) is staged and applied at
// commit in one critical section under the store lock, so readers see all of
// a transaction's staged writes or none of them. A transaction that changes an
// order holds that order's lock until it ends, like a row lock.
package memory

import (
	"context"
	"sync"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/repository"
)

type cabinKey struct {
	flightID int64
	class    domain.CabinClass
}

type seatKey struct {
	flightID int64
	seat     string
}

type cabin struct {
	mu        sync.Mutex
	capacity  int
	available int
	price     int64
}

// release adds up to n seats without exceeding capacity and returns how many
// were actually added.
func (c *cabin) release(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := min(n, c.capacity-c.available)
	c.available += added
	return added
}

func (c *cabin) snapshot(class domain.CabinClass) domain.Cabin {
	c.mu.Lock()
	defer c.mu.Unlock()

	return domain.Cabin{
		Class:          class,
		Capacity:       c.capacity,
		SeatsAvailable: c.available,
		PriceCents:     c.price,
	}
}

type state struct {
	mu sync.RWMutex

	routes   map[int64]domain.Route
	aircraft map[int64]domain.Aircraft
	flights  map[int64]*domain.Flight
	cabins   map[cabinKey]*cabin

	orders       map[int64]*domain.Order
	orderNumbers map[string]int64
	passengers   map[int64][]*domain.Passenger
	seats        map[seatKey]int64
	orderLocks   map[int64]*sync.Mutex

	routeSeq, aircraftSeq, flightSeq, orderSeq, passengerSeq int64
}

// lookupCabin finds the counter for (flightID, class).
func (st *state) lookupCabin(flightID int64, class domain.CabinClass) (*cabin, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if c, ok := st.cabins[cabinKey{flightID, class}]; ok {
		return c, nil
	}
	if _, ok := st.flights[flightID]; !ok {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrClassNotOffered
}

// flightView copies f with a fresh snapshot of its cabins. Callers hold st.mu.
func (st *state) flightView(f *domain.Flight) domain.Flight {
	out := *f
	out.Cabins = make(map[domain.CabinClass]domain.Cabin, len(domain.CabinClasses))
	for _, class := range domain.CabinClasses {
		if c, ok := st.cabins[cabinKey{f.ID, class}]; ok {
			out.Cabins[class] = c.snapshot(class)
		}
	}
	return out
}

// orderLockLocked returns the lock of an order. Callers hold st.mu for writing.
func (st *state) orderLockLocked(orderID int64) *sync.Mutex {
	l, ok := st.orderLocks[orderID]
	if !ok {
		l = &sync.Mutex{}
		st.orderLocks[orderID] = l
	}
	return l
}

func (st *state) orderLock(orderID int64) *sync.Mutex {
	st.mu.Lock()
	defer st.mu.Unlock()

	return st.orderLockLocked(orderID)
}

// write runs fn under st.mu now, or at commit when j is a transaction.
func (st *state) write(j *journal, fn func()) {
	if j == nil {
		st.mu.Lock()
		fn()
		st.mu.Unlock()
		return
	}
	j.later(fn)
}

// journal is the bookkeeping of one RunTx call. A nil journal means writes
// apply immediately.
type journal struct {
	st *state

	mu      sync.Mutex
	undo    []func()
	staged  []func()
	pending map[int64]domain.Order
	held    map[int64]*sync.Mutex
}

func newJournal(st *state) *journal {
	return &journal{
		st:      st,
		pending: map[int64]domain.Order{},
		held:    map[int64]*sync.Mutex{},
	}
}

func (j *journal) record(fn func()) {
	if j == nil {
		return
	}

	j.mu.Lock()
	j.undo = append(j.undo, fn)
	j.mu.Unlock()
}

// later queues fn for commit, where it runs with st.mu held.
func (j *journal) later(fn func()) {
	j.mu.Lock()
	j.staged = append(j.staged, fn)
	j.mu.Unlock()
}

// stage records the new state of an order whose lock the transaction holds.
func (j *journal) stage(o domain.Order) {
	j.mu.Lock()
	j.pending[o.ID] = o
	j.mu.Unlock()
}

func (j *journal) pendingOrder(orderID int64) (domain.Order, bool) {
	if j == nil {
		return domain.Order{}, false
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	o, ok := j.pending[orderID]
	return o, ok
}

func (j *journal) holds(orderID int64) bool {
	if j == nil {
		return false
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	return j.held[orderID] != nil
}

// lockOrder blocks until the transaction owns the order. Owned locks are
// released when the transaction ends.
func (j *journal) lockOrder(orderID int64) {
	if j.holds(orderID) {
		return
	}

	l := j.st.orderLock(orderID)
	l.Lock()
	j.adopt(orderID, l)
}

// adopt hands an already locked order lock to the transaction.
func (j *journal) adopt(orderID int64, l *sync.Mutex) {
	j.mu.Lock()
	j.held[orderID] = l
	j.mu.Unlock()
}

func (j *journal) commit() {
	j.mu.Lock()
	pending, staged := j.pending, j.staged
	j.pending, j.staged, j.undo = nil, nil, nil
	j.mu.Unlock()

	st := j.st
	st.mu.Lock()
	for id, o := range pending {
		if cur, ok := st.orders[id]; ok {
			*cur = o
		}
	}
	for _, fn := range staged {
		fn()
	}
	st.mu.Unlock()

	j.unlockOrders()
}

func (j *journal) rollback() {
	j.mu.Lock()
	undo := j.undo
	j.undo, j.staged, j.pending = nil, nil, nil
	j.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}

	j.unlockOrders()
}

func (j *journal) unlockOrders() {
	j.mu.Lock()
	held := j.held
	j.held = map[int64]*sync.Mutex{}
	j.mu.Unlock()

	for _, l := range held {
		l.Unlock()
	}
}

var _ repository.Store = (*Store)(nil)

type Store struct {
	st *state
	j  *journal
}

func NewStore() *Store {
	return &Store{st: &state{
		routes:       map[int64]domain.Route{},
		aircraft:     map[int64]domain.Aircraft{},
		flights:      map[int64]*domain.Flight{},
		cabins:       map[cabinKey]*cabin{},
		orders:       map[int64]*domain.Order{},
		orderNumbers: map[string]int64{},
		passengers:   map[int64][]*domain.Passenger{},
		seats:        map[seatKey]int64{},
		orderLocks:   map[int64]*sync.Mutex{},
	}}
}

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if s.j != nil {
		return fn(ctx, s)
	}

	tx := &Store{st: s.st, j: newJournal(s.st)}

	committed := false
	defer func() {
		if !committed {
			tx.j.rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.j.commit()
	committed = true

	return nil
}

func (s *Store) Inventory() repository.InventoryRepository { return &inventoryRepo{st: s.st, j: s.j} }
func (s *Store) Orders() repository.OrderRepository        { return &orderRepo{st: s.st, j: s.j} }
func (s *Store) Flights() repository.FlightRepository      { return &flightRepo{st: s.st, j: s.j} }
func (s *Store) Admin() repository.ScheduleRepository      { return &adminRepo{st: s.st, j: s.j} }
