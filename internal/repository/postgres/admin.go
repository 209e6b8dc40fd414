package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/repository"
)

type AdminRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AdminRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *AdminRepo) CreateRoute(ctx context.Context, route *domain.Route) error {
	const op = "postgresrepo.AdminRepo.CreateRoute"

	db := r.handle()

	if err := db.QueryRow(ctx,
		`INSERT INTO routes (departure_city, arrival_city, distance_km)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		route.DepartureCity, route.ArrivalCity, route.DistanceKM,
	).Scan(&route.ID); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *AdminRepo) CreateAircraft(ctx context.Context, a *domain.Aircraft) error {
	const op = "postgresrepo.AdminRepo.CreateAircraft"

	db := r.handle()

	if err := db.QueryRow(ctx,
		`INSERT INTO aircraft (model) VALUES ($1) RETURNING id`,
		a.Model,
	).Scan(&a.ID); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// CreateFlight inserts the flight and one flight_cabins row per cabin with
// seats_available equal to capacity.
func (r *AdminRepo) CreateFlight(ctx context.Context, f *domain.Flight) error {
	const op = "postgresrepo.AdminRepo.CreateFlight"

	err := inTx(ctx, r.pool, r.db, func(db DB) error {
		if err := db.QueryRow(ctx,
			`INSERT INTO flights (flight_number, airline, route_id, aircraft_id, departure_time, arrival_time, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			f.FlightNumber, f.Airline, f.Route.ID, f.Aircraft.ID, f.DepartureTime, f.ArrivalTime, f.Status,
		).Scan(&f.ID); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for class, c := range f.Cabins {
			batch.Queue(
				`INSERT INTO flight_cabins (flight_id, class, capacity, seats_available, price_cents)
				 VALUES ($1, $2, $3, $3, $4)`,
				f.ID, class, c.Capacity, c.PriceCents,
			)
			c.Class = class
			c.SeatsAvailable = c.Capacity
			f.Cabins[class] = c
		}

		return db.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *AdminRepo) SetCabinPrice(ctx context.Context, flightID int64, class domain.CabinClass, priceCents int64) error {
	const op = "postgresrepo.AdminRepo.SetCabinPrice"

	tag, err := r.handle().Exec(ctx,
		`UPDATE flight_cabins SET price_cents = $3 WHERE flight_id = $1 AND class = $2`,
		flightID, class, priceCents,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}
