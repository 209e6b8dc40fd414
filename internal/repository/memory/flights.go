package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/repository"
)

type flightRepo struct {
	st *state
	j  *journal
}

func (st *state) getFlight(flightID int64) (*domain.Flight, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	f, ok := st.flights[flightID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	out := st.flightView(f)
	return &out, nil
}

func (r *flightRepo) Get(ctx context.Context, flightID int64) (*domain.Flight, error) {
	const op = "memory.FlightRepo.Get"

	f, err := r.st.getFlight(flightID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	return f, nil
}

func (r *flightRepo) Search(ctx context.Context, c domain.SearchCriteria) ([]domain.Flight, error) {
	start, end := c.DayBounds()

	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	out := []domain.Flight{}
	for _, f := range r.st.flights {
		if f.Status != domain.FlightScheduled ||
			f.Route.DepartureCity != c.DepartureCity ||
			f.Route.ArrivalCity != c.ArrivalCity ||
			f.DepartureTime.Before(start) || !f.DepartureTime.Before(end) {
			continue
		}

		view := r.st.flightView(f)
		if c.Class != nil {
			cab, ok := view.Cabins[*c.Class]
			if !ok || cab.SeatsAvailable < c.Passengers {
				continue
			}
		}
		out = append(out, view)
	}

	sortFlights(out)
	return out, nil
}

func (r *flightRepo) List(ctx context.Context, limit, offset int) ([]domain.Flight, error) {
	r.st.mu.RLock()
	all := make([]domain.Flight, 0, len(r.st.flights))
	for _, f := range r.st.flights {
		all = append(all, r.st.flightView(f))
	}
	r.st.mu.RUnlock()

	sortFlights(all)

	if offset >= len(all) {
		return []domain.Flight{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *flightRepo) MarkDeparted(ctx context.Context, before time.Time) (int64, error) {
	st := r.st

	st.mu.RLock()
	var due []*domain.Flight
	for _, f := range st.flights {
		if f.Status == domain.FlightScheduled && !f.DepartureTime.After(before) {
			due = append(due, f)
		}
	}
	st.mu.RUnlock()

	st.write(r.j, func() {
		for _, f := range due {
			if f.Status == domain.FlightScheduled {
				f.Status = domain.FlightDeparted
			}
		}
	})

	return int64(len(due)), nil
}

func sortFlights(fs []domain.Flight) {
	sort.Slice(fs, func(i, k int) bool {
		if fs[i].DepartureTime.Equal(fs[k].DepartureTime) {
			return fs[i].ID < fs[k].ID
		}
		return fs[i].DepartureTime.Before(fs[k].DepartureTime)
	})
}
