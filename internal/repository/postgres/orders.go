package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/repository"
)

const orderColumns = `id, user_id, flight_id, order_number, total_cents,
		payment_status, trip_status, COALESCE(payment_method, ''), created_at, updated_at`

const passengerColumns = `id, order_id, full_name, id_document, COALESCE(phone, ''), class, price_cents, seat_number`

type OrderRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *OrderRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts the order and its passengers. Outside a transaction it opens
// its own, so a partial order is never visible.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - order: order to insert; ID and timestamps are filled on success.
//   - passengers: passengers to insert; ID and OrderID are filled on success.
//
// Returns:
//   - error: repository.ErrConflict if the order number is already taken.
//   - error: repository.ErrNotFound if the flight does not exist.
func (r *OrderRepo) Create(ctx context.Context, order *domain.Order, passengers []domain.Passenger) error {
	const op = "postgres.OrderRepo.Create"

	err := inTx(ctx, r.pool, r.db, func(db DB) error {
		if err := db.QueryRow(ctx,
			`INSERT INTO orders (user_id, flight_id, order_number, total_cents, payment_status, trip_status)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, created_at, updated_at`,
			order.UserID, order.FlightID, order.OrderNumber, order.TotalCents,
			order.PaymentStatus, order.TripStatus,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, p := range passengers {
			batch.Queue(
				`INSERT INTO order_passengers (order_id, full_name, id_document, phone, class, price_cents)
				 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
				 RETURNING id`,
				order.ID, p.FullName, p.IDDocument, p.Phone, p.Class, p.PriceCents,
			)
		}

		br := db.SendBatch(ctx, batch)
		for i := range passengers {
			if err := br.QueryRow().Scan(&passengers[i].ID); err != nil {
				br.Close()
				return err
			}
			passengers[i].OrderID = order.ID
		}

		return br.Close()
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Get retrieves an order by its ID.
//
// Returns:
//   - *domain.Order: the order when found.
//   - error: repository.ErrNotFound if the order is not found.
func (r *OrderRepo) Get(ctx context.Context, orderID int64) (*domain.Order, error) {
	const op = "postgres.OrderRepo.Get"

	var o domain.Order
	err := scanOrder(r.handle().QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		orderID,
	), &o)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &o, nil
}

func (r *OrderRepo) GetWithPassengers(ctx context.Context, orderID int64) (*domain.Order, []domain.Passenger, error) {
	const op = "postgres.OrderRepo.GetWithPassengers"

	o, err := r.Get(ctx, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	byOrder, err := r.PassengersForOrders(ctx, []int64{orderID})
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	return o, byOrder[orderID], nil
}

// ListForUser lists a user's orders, newest first.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - userID: owner of the orders.
//   - trip: optional trip status filter; nil lists every order.
//
// Returns:
//   - []domain.Order: the orders, empty when the user has none.
//   - error: if the query fails.
func (r *OrderRepo) ListForUser(ctx context.Context, userID int64, trip *domain.TripStatus) ([]domain.Order, error) {
	const op = "postgres.OrderRepo.ListForUser"

	var status *string
	if trip != nil {
		s := string(*trip)
		status = &s
	}

	rows, err := r.handle().Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE user_id = $1 AND ($2::text IS NULL OR trip_status = $2)
		 ORDER BY created_at DESC, id DESC`,
		userID, status,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.Order{}
	for rows.Next() {
		var o domain.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (r *OrderRepo) PassengersForOrders(ctx context.Context, orderIDs []int64) (map[int64][]domain.Passenger, error) {
	const op = "postgres.OrderRepo.PassengersForOrders"

	out := make(map[int64][]domain.Passenger, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	rows, err := r.handle().Query(ctx,
		`SELECT `+passengerColumns+`
		 FROM order_passengers
		 WHERE order_id = ANY($1)
		 ORDER BY order_id, id`,
		orderIDs,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	for rows.Next() {
		var p domain.Passenger
		if err := rows.Scan(
			&p.ID, &p.OrderID, &p.FullName, &p.IDDocument, &p.Phone, &p.Class, &p.PriceCents, &p.SeatNumber,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out[p.OrderID] = append(out[p.OrderID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// UpdatePaymentStatus moves the payment status with a compare-and-set on from.
// An empty method keeps the stored one.
//
// Returns:
//   - error: repository.ErrNotFound if the order is not found.
//   - error: repository.ErrStaleStatus if the payment status is no longer from.
func (r *OrderRepo) UpdatePaymentStatus(
	ctx context.Context,
	orderID int64,
	from, to domain.PaymentStatus,
	method string,
) error {
	const op = "postgres.OrderRepo.UpdatePaymentStatus"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE orders
		 SET payment_status = $3,
		     payment_method = COALESCE(NULLIF($4, ''), payment_method),
		     updated_at = now()
		 WHERE id = $1 AND payment_status = $2`,
		orderID, from, to, method,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, r.staleOrMissing(ctx, db, orderID))
	}

	return nil
}

// UpdateTripStatus moves the trip status with a compare-and-set on from.
//
// Returns:
//   - error: repository.ErrNotFound if the order is not found.
//   - error: repository.ErrStaleStatus if the trip status is no longer from.
func (r *OrderRepo) UpdateTripStatus(ctx context.Context, orderID int64, from, to domain.TripStatus) error {
	const op = "postgres.OrderRepo.UpdateTripStatus"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE orders
		 SET trip_status = $3, updated_at = now()
		 WHERE id = $1 AND trip_status = $2`,
		orderID, from, to,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, r.staleOrMissing(ctx, db, orderID))
	}

	return nil
}

// AssignSeat records seat for the passenger on the order's flight. The
// (flight_id, seat_number) primary key of seat_assignments rejects a seat
// already held by anyone else.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - orderID: order the passenger belongs to.
//   - passengerID: passenger taking the seat.
//   - seat: normalized seat number, e.g. "12C".
//
// Returns:
//   - error: repository.ErrNotFound if the passenger is not on the order.
//   - error: repository.ErrConflict if the seat is taken.
func (r *OrderRepo) AssignSeat(ctx context.Context, orderID, passengerID int64, seat string) error {
	const op = "postgres.OrderRepo.AssignSeat"

	err := inTx(ctx, r.pool, r.db, func(db DB) error {
		var flightID int64
		if err := db.QueryRow(ctx,
			`SELECT o.flight_id
			 FROM order_passengers p
			 JOIN orders o ON o.id = p.order_id
			 WHERE p.id = $1 AND p.order_id = $2`,
			passengerID, orderID,
		).Scan(&flightID); err != nil {
			return err
		}

		if _, err := db.Exec(ctx,
			`DELETE FROM seat_assignments WHERE passenger_id = $1`,
			passengerID,
		); err != nil {
			return err
		}

		if _, err := db.Exec(ctx,
			`INSERT INTO seat_assignments (flight_id, seat_number, passenger_id, order_id)
			 VALUES ($1, $2, $3, $4)`,
			flightID, seat, passengerID, orderID,
		); err != nil {
			return err
		}

		_, err := db.Exec(ctx,
			`UPDATE order_passengers SET seat_number = $2 WHERE id = $1`,
			passengerID, seat,
		)
		return err
	})
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ReleaseSeats drops every seat assignment of the order. Passengers keep the
// seat number they had for the record.
func (r *OrderRepo) ReleaseSeats(ctx context.Context, orderID int64) error {
	const op = "postgres.OrderRepo.ReleaseSeats"

	if _, err := r.handle().Exec(ctx,
		`DELETE FROM seat_assignments WHERE order_id = $1`,
		orderID,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *OrderRepo) SummaryForUser(ctx context.Context, userID int64) (*domain.OrderSummary, error) {
	const op = "postgres.OrderRepo.SummaryForUser"

	rows, err := r.handle().Query(ctx,
		`SELECT trip_status, COUNT(*)
		 FROM orders
		 WHERE user_id = $1
		 GROUP BY trip_status`,
		userID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var s domain.OrderSummary
	for rows.Next() {
		var status domain.TripStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, wrapDBErr(op, err)
		}
		s.Add(status, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &s, nil
}

// CompleteDeparted completes confirmed orders on flights that have arrived.
//
// Returns:
//   - []domain.Order: the orders that moved to completed.
//   - error: if the update fails.
func (r *OrderRepo) CompleteDeparted(ctx context.Context, before time.Time) ([]domain.Order, error) {
	const op = "postgres.OrderRepo.CompleteDeparted"

	rows, err := r.handle().Query(ctx,
		`UPDATE orders o
		 SET trip_status = 'completed', updated_at = now()
		 FROM flights f
		 WHERE f.id = o.flight_id
		   AND f.arrival_time <= $1
		   AND o.trip_status = 'confirmed'
		 RETURNING o.id, o.user_id, o.flight_id, o.order_number, o.total_cents,
		   o.payment_status, o.trip_status, COALESCE(o.payment_method, ''), o.created_at, o.updated_at`,
		before,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (r *OrderRepo) staleOrMissing(ctx context.Context, db DB, orderID int64) error {
	var exists bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`,
		orderID,
	).Scan(&exists); err != nil {
		return translateDBErr(err)
	}

	if !exists {
		return repository.ErrNotFound
	}

	return repository.ErrStaleStatus
}

func scanOrder(row pgx.Row, o *domain.Order) error {
	err := row.Scan(
		&o.ID, &o.UserID, &o.FlightID, &o.OrderNumber, &o.TotalCents,
		&o.PaymentStatus, &o.TripStatus, &o.PaymentMethod, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}
