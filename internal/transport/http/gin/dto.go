package httpgin

import (
	"time"

	"github.com/kirinyoku/airbook-go/internal/service/admin"
	"github.com/kirinyoku/airbook-go/internal/service/booking"
)

type PassengerRequest struct {
	FullName   string `json:"full_name" binding:"required"`
	IDDocument string `json:"id_document" binding:"required"`
	Phone      string `json:"phone"`
	Class      string `json:"class" binding:"required"`
}

type CreateOrderRequest struct {
	FlightID   int64              `json:"flight_id" binding:"required,gt=0"`
	Passengers []PassengerRequest `json:"passengers" binding:"required,min=1,dive"`
}

func (r CreateOrderRequest) input(userID int64) booking.CreateOrderInput {
	ps := make([]booking.PassengerInput, len(r.Passengers))
	for i, p := range r.Passengers {
		ps[i] = booking.PassengerInput{
			FullName:   p.FullName,
			IDDocument: p.IDDocument,
			Phone:      p.Phone,
			Class:      p.Class,
		}
	}
	return booking.CreateOrderInput{UserID: userID, FlightID: r.FlightID, Passengers: ps}
}

type PayOrderRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type SelectSeatRequest struct {
	SeatNumber string `json:"seat_number" binding:"required"`
}

type CreateRouteRequest struct {
	DepartureCity string `json:"departure_city" binding:"required"`
	ArrivalCity   string `json:"arrival_city" binding:"required"`
	DistanceKM    int    `json:"distance_km"`
}

type CreateAircraftRequest struct {
	Model string `json:"model" binding:"required"`
}

type CabinRequest struct {
	Class      string `json:"class" binding:"required"`
	Capacity   int    `json:"capacity" binding:"required,gt=0"`
	PriceCents int64  `json:"price_cents"`
}

type CreateFlightRequest struct {
	FlightNumber  string         `json:"flight_number" binding:"required"`
	Airline       string         `json:"airline" binding:"required"`
	RouteID       int64          `json:"route_id" binding:"required"`
	AircraftID    int64          `json:"aircraft_id" binding:"required"`
	DepartureTime time.Time      `json:"departure_time" binding:"required"`
	ArrivalTime   time.Time      `json:"arrival_time" binding:"required"`
	Cabins        []CabinRequest `json:"cabins" binding:"required,min=1,dive"`
}

func (r CreateFlightRequest) input() admin.FlightInput {
	cabins := make([]admin.CabinInput, len(r.Cabins))
	for i, c := range r.Cabins {
		cabins[i] = admin.CabinInput{Class: c.Class, Capacity: c.Capacity, PriceCents: c.PriceCents}
	}
	return admin.FlightInput{
		FlightNumber:  r.FlightNumber,
		Airline:       r.Airline,
		RouteID:       r.RouteID,
		AircraftID:    r.AircraftID,
		DepartureTime: r.DepartureTime,
		ArrivalTime:   r.ArrivalTime,
		Cabins:        cabins,
	}
}

type SetPriceRequest struct {
	PriceCents int64 `json:"price_cents" binding:"gte=0"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
