package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/airbook-go/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var _ repository.Store = (*Store)(nil)

// Store hands out repositories bound either to the pool or, inside RunTx,
// to a single transaction.
type Store struct {
	pool *pgxpool.Pool
	db   DB
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// With returns a copy of the store whose repositories run on db.
func (s *Store) With(db DB) *Store {
	cp := *s
	cp.db = db
	return &cp
}

// RunTx runs fn in a READ COMMITTED transaction. Seat counters are guarded by
// conditional updates and order statuses by compare-and-set, so a stronger
// isolation level would only add serialization failures without closing any gap.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return s.RunTxWithOpts(ctx, nil, fn)
}

func (s *Store) RunTxWithOpts(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx repository.Store) error,
) error {
	// nested calls join the outer transaction
	if s.db != nil {
		return fn(ctx, s)
	}

	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, s.With(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) Inventory() repository.InventoryRepository {
	return &InventoryRepo{pool: s.pool, db: s.db}
}

func (s *Store) Orders() repository.OrderRepository {
	return &OrderRepo{pool: s.pool, db: s.db}
}

func (s *Store) Flights() repository.FlightRepository {
	return &FlightRepo{pool: s.pool, db: s.db}
}

func (s *Store) Admin() repository.ScheduleRepository {
	return &AdminRepo{pool: s.pool, db: s.db}
}

// inTx runs fn on db when already inside a transaction, otherwise on a fresh
// transaction from pool that is committed when fn succeeds.
func inTx(ctx context.Context, pool *pgxpool.Pool, db DB, fn func(db DB) error) error {
	if db != nil {
		return fn(db)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
