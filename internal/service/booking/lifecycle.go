package booking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/events"
	"github.com/kirinyoku/airbook-go/internal/repository"
	"github.com/kirinyoku/airbook-go/internal/uow"
)

// row 1-999, columns A-K
var seatPattern = regexp.MustCompile(`^[1-9][0-9]{0,2}[A-K]$`)

// PayOrder marks an unpaid order as paid. Concurrent attempts race on a
// compare-and-set, so exactly one succeeds.
//
// Parameters:
//   - ctx: request-scoped context.
//   - orderID: order to pay.
//   - userID: caller, must own the order.
//   - method: payment method label; empty uses the configured default.
//
// Returns:
//   - *domain.Order: the paid order.
//   - error: booking.ErrOrderNotFound, booking.ErrForbidden.
//   - error: booking.ErrAlreadyPaid, booking.ErrOrderCancelled.
func (s *Service) PayOrder(ctx context.Context, orderID, userID int64, method string) (*domain.Order, error) {
	const op = "service.booking.PayOrder"

	method = strings.TrimSpace(method)
	if method == "" {
		method = s.cfg.DefaultPaymentMethod
	}

	var out *domain.Order

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Store, after func(uow.AfterCommit)) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return notFound(err, ErrOrderNotFound)
		}
		if order.UserID != userID {
			return ErrForbidden
		}
		if err := payable(order.PaymentStatus); err != nil {
			return err
		}

		err = tx.Orders().UpdatePaymentStatus(ctx, order.ID, domain.PaymentUnpaid, domain.PaymentPaid, method)
		if errors.Is(err, repository.ErrStaleStatus) {
			current, gerr := tx.Orders().Get(ctx, order.ID)
			if gerr != nil {
				return gerr
			}
			if perr := payable(current.PaymentStatus); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}

		order.PaymentStatus = domain.PaymentPaid
		order.PaymentMethod = method
		out = order

		s.afterOrderChange(after, events.TypeOrderPaid, *order, false)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.metrics.ObserveOrder("paid")
	s.logger.Info("order paid", "order_id", out.ID, "method", method)

	return out, nil
}

func payable(status domain.PaymentStatus) error {
	switch status {
	case domain.PaymentPaid:
		return ErrAlreadyPaid
	case domain.PaymentCancelled:
		return ErrOrderCancelled
	}
	return nil
}

type SelectSeatInput struct {
	OrderID     int64
	UserID      int64
	PassengerID int64
	Seat        string
}

// SelectSeat assigns a seat to one passenger of a paid, still active order.
// Choosing again replaces the passenger's previous seat.
//
// Returns:
//   - *domain.Passenger: the passenger with the new seat.
//   - error: booking.ErrInvalidSeat if the seat number is malformed.
//   - error: booking.ErrOrderNotFound, booking.ErrPassengerNotFound, booking.ErrForbidden.
//   - error: booking.ErrOrderNotConfirmed if the order is unpaid or no longer active.
//   - error: booking.ErrSeatTaken if another passenger holds the seat.
func (s *Service) SelectSeat(ctx context.Context, in SelectSeatInput) (*domain.Passenger, error) {
	const op = "service.booking.SelectSeat"

	seat := strings.ToUpper(strings.TrimSpace(in.Seat))
	if !seatPattern.MatchString(seat) {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidSeat)
	}

	var out *domain.Passenger

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Store, after func(uow.AfterCommit)) error {
		order, passengers, err := tx.Orders().GetWithPassengers(ctx, in.OrderID)
		if err != nil {
			return notFound(err, ErrOrderNotFound)
		}
		if order.UserID != in.UserID {
			return ErrForbidden
		}

		var p *domain.Passenger
		for i := range passengers {
			if passengers[i].ID == in.PassengerID {
				p = &passengers[i]
				break
			}
		}
		if p == nil {
			return ErrPassengerNotFound
		}

		if order.PaymentStatus != domain.PaymentPaid ||
			(order.TripStatus != domain.TripPendingCheckin && order.TripStatus != domain.TripConfirmed) {
			return ErrOrderNotConfirmed
		}

		if err := tx.Orders().AssignSeat(ctx, order.ID, p.ID, seat); err != nil {
			switch {
			case errors.Is(err, repository.ErrConflict):
				return ErrSeatTaken
			case errors.Is(err, repository.ErrNotFound):
				return ErrPassengerNotFound
			}
			return err
		}

		p.SeatNumber = &seat
		out = p

		s.afterOrderChange(after, events.TypeOrderSeatSelected, *order, false)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// CheckIn confirms the trip of a paid order.
//
// Returns:
//   - *domain.Order: the order in confirmed state.
//   - error: booking.ErrOrderNotFound, booking.ErrForbidden.
//   - error: booking.ErrNotPaid if the order has not been paid.
//   - error: *booking.TransitionError if the trip is not pending check-in.
func (s *Service) CheckIn(ctx context.Context, orderID, userID int64) (*domain.Order, error) {
	const op = "service.booking.CheckIn"

	var out *domain.Order

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Store, after func(uow.AfterCommit)) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return notFound(err, ErrOrderNotFound)
		}
		if order.UserID != userID {
			return ErrForbidden
		}
		if order.PaymentStatus != domain.PaymentPaid {
			if order.PaymentStatus == domain.PaymentCancelled {
				return ErrOrderCancelled
			}
			return ErrNotPaid
		}

		transition := &TransitionError{From: string(order.TripStatus), To: string(domain.TripConfirmed)}
		if !domain.CanTransitionTrip(order.TripStatus, domain.TripConfirmed) {
			return transition
		}
		if err := tx.Orders().UpdateTripStatus(ctx, order.ID, order.TripStatus, domain.TripConfirmed); err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				return transition
			}
			return err
		}

		order.TripStatus = domain.TripConfirmed
		out = order

		s.afterOrderChange(after, events.TypeOrderCheckedIn, *order, false)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// CompleteDepartedTrips marks flights that left by now as departed and
// completes confirmed orders whose flight has arrived. Orders never checked
// in stay pending_checkin.
//
// Returns:
//   - int: number of orders completed.
//   - error: if either update fails; nothing is applied then.
func (s *Service) CompleteDepartedTrips(ctx context.Context, now time.Time) (int, error) {
	const op = "service.booking.CompleteDepartedTrips"

	var completed []domain.Order
	var departed int64

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Store, after func(uow.AfterCommit)) error {
		var err error
		if departed, err = tx.Flights().MarkDeparted(ctx, now); err != nil {
			return err
		}

		if completed, err = tx.Orders().CompleteDeparted(ctx, now); err != nil {
			return err
		}

		for _, o := range completed {
			s.afterOrderChange(after, events.TypeOrderCompleted, o, false)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if departed > 0 || len(completed) > 0 {
		s.logger.Info("trips completed", "flights_departed", departed, "orders_completed", len(completed))
	}

	return len(completed), nil
}
