package orders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/kirinyoku/airbook-go/internal/domain"
	"github.com/kirinyoku/airbook-go/internal/repository"
)

const boardingPassSize = 256

type Service struct {
	store repository.Store
}

func New(store repository.Store) *Service {
	return &Service{store: store}
}

// GetOrder returns an order with its passengers and flight.
//
// Parameters:
//   - ctx: request-scoped context.
//   - orderID: ID of the order to retrieve.
//   - userID: caller, must own the order.
//
// Returns:
//   - *domain.OrderView: the order view.
//   - error: orders.ErrOrderNotFound, orders.ErrForbidden.
func (s *Service) GetOrder(ctx context.Context, orderID, userID int64) (*domain.OrderView, error) {
	const op = "service.orders.GetOrder"

	order, passengers, err := s.store.Orders().GetWithPassengers(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrOrderNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if order.UserID != userID {
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	}

	flight, err := s.store.Flights().Get(ctx, order.FlightID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &domain.OrderView{Order: *order, Passengers: passengers, Flight: flight.Summary()}, nil
}

// ListOrders returns the user's orders newest first. status, when non-empty,
// keeps only orders in that trip status.
func (s *Service) ListOrders(ctx context.Context, userID int64, status string) ([]domain.OrderView, error) {
	const op = "service.orders.ListOrders"

	var filter *domain.TripStatus
	if status != "" {
		ts, ok := domain.ParseTripStatus(status)
		if !ok {
			return nil, fmt.Errorf("%s:%w", op, ErrInvalidStatus)
		}
		filter = &ts
	}

	list, err := s.store.Orders().ListForUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	out := make([]domain.OrderView, 0, len(list))
	if len(list) == 0 {
		return out, nil
	}

	ids := make([]int64, len(list))
	for i, o := range list {
		ids[i] = o.ID
	}

	passengers, err := s.store.Orders().PassengersForOrders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	flights := make(map[int64]domain.FlightSummary)
	for _, o := range list {
		summary, ok := flights[o.FlightID]
		if !ok {
			f, err := s.store.Flights().Get(ctx, o.FlightID)
			if err != nil {
				return nil, fmt.Errorf("%s:%w", op, err)
			}
			summary = f.Summary()
			flights[o.FlightID] = summary
		}

		ps := passengers[o.ID]
		if ps == nil {
			ps = []domain.Passenger{}
		}
		out = append(out, domain.OrderView{Order: o, Passengers: ps, Flight: summary})
	}

	return out, nil
}

func (s *Service) Summary(ctx context.Context, userID int64) (*domain.OrderSummary, error) {
	const op = "service.orders.Summary"

	sum, err := s.store.Orders().SummaryForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return sum, nil
}

// BoardingPass renders a PNG QR code for a checked-in order. The code
// carries the order number followed by the passenger IDs.
//
// Returns:
//   - []byte: PNG image.
//   - error: orders.ErrOrderNotFound, orders.ErrForbidden.
//   - error: orders.ErrNotCheckedIn unless the trip is confirmed.
func (s *Service) BoardingPass(ctx context.Context, orderID, userID int64) ([]byte, error) {
	const op = "service.orders.BoardingPass"

	order, passengers, err := s.store.Orders().GetWithPassengers(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrOrderNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if order.UserID != userID {
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	}

	if order.TripStatus != domain.TripConfirmed {
		return nil, fmt.Errorf("%s:%w", op, ErrNotCheckedIn)
	}

	img, err := encodeQR(BoardingPassContent(order, passengers), boardingPassSize)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return img, nil
}

// BoardingPassContent is the text encoded in a boarding pass, e.g.
// "ORD20260301120000AB12CD34:17,18".
func BoardingPassContent(order *domain.Order, passengers []domain.Passenger) string {
	ids := make([]string, len(passengers))
	for i, p := range passengers {
		ids[i] = strconv.FormatInt(p.ID, 10)
	}
	return order.OrderNumber + ":" + strings.Join(ids, ",")
}

func encodeQR(content string, size int) ([]byte, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
