package memory

import (
	"context"
	"fmt"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/repository"
)

type inventoryRepo struct {
	st *state
	j  *journal
}

func (r *inventoryRepo) GetFlight(ctx context.Context, flightID int64) (*domain.Flight, error) {
	const op = "memory.InventoryRepo.GetFlight"

	f, err := r.st.getFlight(flightID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	return f, nil
}

func (r *inventoryRepo) Quote(ctx context.Context, flightID int64, class domain.CabinClass) (int64, error) {
	const op = "memory.InventoryRepo.Quote"

	c, err := r.st.lookupCabin(flightID, class)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.price, nil
}

func (r *inventoryRepo) Reserve(ctx context.Context, flightID int64, class domain.CabinClass, count int) error {
	const op = "memory.InventoryRepo.Reserve"

	if count <= 0 {
		return fmt.Errorf("%s: count must be positive, got %d", op, count)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	c, err := r.st.lookupCabin(flightID, class)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	c.mu.Lock()
	if c.available < count {
		available := c.available
		c.mu.Unlock()
		return fmt.Errorf("%s: %d of %d requested %s seats free:%w",
			op, available, count, class, repository.ErrInsufficientSeats)
	}
	c.available -= count
	c.mu.Unlock()

	r.j.record(func() { c.release(count) })

	return nil
}

func (r *inventoryRepo) Release(ctx context.Context, flightID int64, class domain.CabinClass, count int) error {
	const op = "memory.InventoryRepo.Release"

	if count <= 0 {
		return fmt.Errorf("%s: count must be positive, got %d", op, count)
	}

	c, err := r.st.lookupCabin(flightID, class)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	r.st.write(r.j, func() { c.release(count) })

	return nil
}
