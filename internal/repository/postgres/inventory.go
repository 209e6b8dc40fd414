package postgresrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/repository"
)

type InventoryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *InventoryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetFlight retrieves a flight with all of its cabins.
//
// Returns:
//   - *domain.Flight: the flight when found.
//   - error: repository.ErrNotFound if the flight does not exist.
func (r *InventoryRepo) GetFlight(ctx context.Context, flightID int64) (*domain.Flight, error) {
	const op = "postgres.InventoryRepo.GetFlight"

	f, err := getFlight(ctx, r.handle(), flightID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return f, nil
}

// Quote returns the current price of one seat in class.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - flightID: flight to price.
//   - class: cabin class to price.
//
// Returns:
//   - int64: price in cents.
//   - error: repository.ErrNotFound if the flight does not exist.
//   - error: repository.ErrClassNotOffered if the flight has no such cabin.
func (r *InventoryRepo) Quote(ctx context.Context, flightID int64, class domain.CabinClass) (int64, error) {
	const op = "postgres.InventoryRepo.Quote"

	db := r.handle()

	var price int64
	err := db.QueryRow(ctx,
		`SELECT price_cents
		 FROM flight_cabins
		 WHERE flight_id = $1 AND class = $2`,
		flightID, class,
	).Scan(&price)
	if err != nil {
		err = translateDBErr(err)
		if errors.Is(err, repository.ErrNotFound) {
			err = r.missingCabin(ctx, db, flightID)
		}
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return price, nil
}

// Reserve takes count seats of class in a single conditional update, so two
// callers racing for the last seats can never both succeed.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - flightID: flight to reserve on.
//   - class: cabin class to reserve.
//   - count: number of seats, must be positive.
//
// Returns:
//   - error: repository.ErrInsufficientSeats if fewer than count seats are free.
//   - error: repository.ErrNotFound if the flight does not exist.
//   - error: repository.ErrClassNotOffered if the flight has no such cabin.
func (r *InventoryRepo) Reserve(ctx context.Context, flightID int64, class domain.CabinClass, count int) error {
	const op = "postgres.InventoryRepo.Reserve"

	if count <= 0 {
		return fmt.Errorf("%s: count must be positive, got %d", op, count)
	}

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE flight_cabins
		 SET seats_available = seats_available - $3
		 WHERE flight_id = $1
		   AND class = $2
		   AND seats_available >= $3`,
		flightID, class, count,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	var available int
	err = db.QueryRow(ctx,
		`SELECT seats_available FROM flight_cabins WHERE flight_id = $1 AND class = $2`,
		flightID, class,
	).Scan(&available)
	if err != nil {
		err = translateDBErr(err)
		if errors.Is(err, repository.ErrNotFound) {
			err = r.missingCabin(ctx, db, flightID)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	return fmt.Errorf("%s: %d of %d requested %s seats free:%w",
		op, available, count, class, repository.ErrInsufficientSeats)
}

// Release returns count seats of class, never exceeding the cabin capacity.
//
// Returns:
//   - error: repository.ErrNotFound if the flight does not exist.
//   - error: repository.ErrClassNotOffered if the flight has no such cabin.
func (r *InventoryRepo) Release(ctx context.Context, flightID int64, class domain.CabinClass, count int) error {
	const op = "postgres.InventoryRepo.Release"

	if count <= 0 {
		return fmt.Errorf("%s: count must be positive, got %d", op, count)
	}

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE flight_cabins
		 SET seats_available = LEAST(capacity, seats_available + $3)
		 WHERE flight_id = $1 AND class = $2`,
		flightID, class, count,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, r.missingCabin(ctx, db, flightID))
	}

	return nil
}

// missingCabin tells apart an unknown flight from a flight lacking the cabin.
func (r *InventoryRepo) missingCabin(ctx context.Context, db DB, flightID int64) error {
	var exists bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM flights WHERE id = $1)`,
		flightID,
	).Scan(&exists); err != nil {
		return translateDBErr(err)
	}

	if !exists {
		return repository.ErrNotFound
	}

	return repository.ErrClassNotOffered
}
