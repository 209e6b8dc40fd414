package memory

import (
	"context"
	"fmt"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/repository"
)

type adminRepo struct {
	st *state
	j  *journal
}

func (r *adminRepo) CreateRoute(ctx context.Context, route *domain.Route) error {
	const op = "memory.AdminRepo.CreateRoute"

	st := r.st
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, existing := range st.routes {
		if existing.DepartureCity == route.DepartureCity && existing.ArrivalCity == route.ArrivalCity {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	st.routeSeq++
	route.ID = st.routeSeq
	st.routes[route.ID] = *route

	id := route.ID
	r.j.record(func() {
		st.mu.Lock()
		delete(st.routes, id)
		st.mu.Unlock()
	})

	return nil
}

func (r *adminRepo) CreateAircraft(ctx context.Context, a *domain.Aircraft) error {
	st := r.st
	st.mu.Lock()
	defer st.mu.Unlock()

	st.aircraftSeq++
	a.ID = st.aircraftSeq
	st.aircraft[a.ID] = *a

	id := a.ID
	r.j.record(func() {
		st.mu.Lock()
		delete(st.aircraft, id)
		st.mu.Unlock()
	})

	return nil
}

func (r *adminRepo) CreateFlight(ctx context.Context, f *domain.Flight) error {
	const op = "memory.AdminRepo.CreateFlight"

	st := r.st
	st.mu.Lock()
	defer st.mu.Unlock()

	route, ok := st.routes[f.Route.ID]
	if !ok {
		return fmt.Errorf("%s: route %d:%w", op, f.Route.ID, repository.ErrNotFound)
	}
	aircraft, ok := st.aircraft[f.Aircraft.ID]
	if !ok {
		return fmt.Errorf("%s: aircraft %d:%w", op, f.Aircraft.ID, repository.ErrNotFound)
	}

	st.flightSeq++
	f.ID = st.flightSeq
	f.Route = route
	f.Aircraft = aircraft
	if f.Status == "" {
		f.Status = domain.FlightScheduled
	}

	stored := *f
	stored.Cabins = nil
	st.flights[f.ID] = &stored

	for class, c := range f.Cabins {
		c.Class = class
		c.SeatsAvailable = c.Capacity
		f.Cabins[class] = c
		st.cabins[cabinKey{f.ID, class}] = &cabin{capacity: c.Capacity, available: c.Capacity, price: c.PriceCents}
	}

	id := f.ID
	classes := make([]domain.CabinClass, 0, len(f.Cabins))
	for class := range f.Cabins {
		classes = append(classes, class)
	}
	r.j.record(func() {
		st.mu.Lock()
		delete(st.flights, id)
		for _, class := range classes {
			delete(st.cabins, cabinKey{id, class})
		}
		st.mu.Unlock()
	})

	return nil
}

func (r *adminRepo) SetCabinPrice(ctx context.Context, flightID int64, class domain.CabinClass, priceCents int64) error {
	const op = "memory.AdminRepo.SetCabinPrice"

	c, err := r.st.lookupCabin(flightID, class)
	if err != nil {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	c.mu.Lock()
	prev := c.price
	c.price = priceCents
	c.mu.Unlock()

	r.j.record(func() {
		c.mu.Lock()
		c.price = prev
		c.mu.Unlock()
	})

	return nil
}
