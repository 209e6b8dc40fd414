package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/airbook-go/internal/domain"
)

const flightColumns = `f.id, f.flight_number, f.airline, f.departure_time, f.arrival_time, f.status,
		r.id, r.departure_city, r.arrival_city, r.distance_km,
		a.id, a.model`

const flightFrom = `FROM flights f
		 JOIN routes r ON r.id = f.route_id
		 JOIN aircraft a ON a.id = f.aircraft_id`

type FlightRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *FlightRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Get retrieves a flight by its ID.
//
// Returns:
//   - *domain.Flight: the flight with its cabins.
//   - error: repository.ErrNotFound if the flight is not found.
func (r *FlightRepo) Get(ctx context.Context, flightID int64) (*domain.Flight, error) {
	const op = "postgres.FlightRepo.Get"

	f, err := getFlight(ctx, r.handle(), flightID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return f, nil
}

// Search lists scheduled flights on a route for one UTC day, earliest first.
// When c.Class is set only flights with c.Passengers free seats in that class match.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - c: search criteria.
//
// Returns:
//   - []domain.Flight: matching flights, empty when none.
//   - error: if the query fails.
func (r *FlightRepo) Search(ctx context.Context, c domain.SearchCriteria) ([]domain.Flight, error) {
	const op = "postgres.FlightRepo.Search"

	db := r.handle()
	start, end := c.DayBounds()

	var class *string
	if c.Class != nil {
		s := string(*c.Class)
		class = &s
	}

	rows, err := db.Query(ctx,
		`SELECT `+flightColumns+`
		 `+flightFrom+`
		 WHERE r.departure_city = $1
		   AND r.arrival_city = $2
		   AND f.departure_time >= $3
		   AND f.departure_time < $4
		   AND f.status = 'scheduled'
		   AND ($5::text IS NULL OR EXISTS (
		         SELECT 1 FROM flight_cabins c
		         WHERE c.flight_id = f.id AND c.class = $5 AND c.seats_available >= $6))
		 ORDER BY f.departure_time, f.id`,
		c.DepartureCity, c.ArrivalCity, start, end, class, c.Passengers,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	flights, err := collectFlights(ctx, db, rows)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return flights, nil
}

// List pages through all flights ordered by departure.
func (r *FlightRepo) List(ctx context.Context, limit, offset int) ([]domain.Flight, error) {
	const op = "postgres.FlightRepo.List"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+flightColumns+`
		 `+flightFrom+`
		 ORDER BY f.departure_time, f.id
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	flights, err := collectFlights(ctx, db, rows)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return flights, nil
}

// MarkDeparted moves scheduled flights whose departure is not after before
// to departed.
//
// Returns:
//   - int64: number of flights updated.
//   - error: if the update fails.
func (r *FlightRepo) MarkDeparted(ctx context.Context, before time.Time) (int64, error) {
	const op = "postgres.FlightRepo.MarkDeparted"

	tag, err := r.handle().Exec(ctx,
		`UPDATE flights
		 SET status = 'departed', updated_at = now()
		 WHERE status = 'scheduled' AND departure_time <= $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

func getFlight(ctx context.Context, db DB, flightID int64) (*domain.Flight, error) {
	var f domain.Flight
	err := scanFlight(db.QueryRow(ctx,
		`SELECT `+flightColumns+`
		 `+flightFrom+`
		 WHERE f.id = $1`,
		flightID,
	), &f)
	if err != nil {
		return nil, translateDBErr(err)
	}

	cabins, err := loadCabins(ctx, db, []int64{f.ID})
	if err != nil {
		return nil, err
	}

	f.Cabins = cabins[f.ID]
	if f.Cabins == nil {
		f.Cabins = map[domain.CabinClass]domain.Cabin{}
	}

	return &f, nil
}

func scanFlight(row pgx.Row, f *domain.Flight) error {
	return row.Scan(
		&f.ID, &f.FlightNumber, &f.Airline, &f.DepartureTime, &f.ArrivalTime, &f.Status,
		&f.Route.ID, &f.Route.DepartureCity, &f.Route.ArrivalCity, &f.Route.DistanceKM,
		&f.Aircraft.ID, &f.Aircraft.Model,
	)
}

// collectFlights drains rows and attaches cabins to every flight.
func collectFlights(ctx context.Context, db DB, rows pgx.Rows) ([]domain.Flight, error) {
	var out []domain.Flight
	var ids []int64

	for rows.Next() {
		var f domain.Flight
		if err := scanFlight(rows, &f); err != nil {
			rows.Close()
			return nil, translateDBErr(err)
		}
		out = append(out, f)
		ids = append(ids, f.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []domain.Flight{}, nil
	}

	cabins, err := loadCabins(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	for i := range out {
		out[i].Cabins = cabins[out[i].ID]
		if out[i].Cabins == nil {
			out[i].Cabins = map[domain.CabinClass]domain.Cabin{}
		}
	}

	return out, nil
}

func loadCabins(ctx context.Context, db DB, flightIDs []int64) (map[int64]map[domain.CabinClass]domain.Cabin, error) {
	rows, err := db.Query(ctx,
		`SELECT flight_id, class, capacity, seats_available, price_cents
		 FROM flight_cabins
		 WHERE flight_id = ANY($1)`,
		flightIDs,
	)
	if err != nil {
		return nil, translateDBErr(err)
	}

	defer rows.Close()

	out := make(map[int64]map[domain.CabinClass]domain.Cabin, len(flightIDs))
	for rows.Next() {
		var flightID int64
		var c domain.Cabin
		if err := rows.Scan(&flightID, &c.Class, &c.Capacity, &c.SeatsAvailable, &c.PriceCents); err != nil {
			return nil, translateDBErr(err)
		}
		if out[flightID] == nil {
			out[flightID] = make(map[domain.CabinClass]domain.Cabin, len(domain.CabinClasses))
		}
		out[flightID][c.Class] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
