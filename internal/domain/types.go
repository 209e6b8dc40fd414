package domain

import (
	"strings"
	"time"
)

type CabinClass string

const (
	CabinEconomy  CabinClass = "economy"
	CabinBusiness CabinClass = "business"
	CabinFirst    CabinClass = "first"
)

// CabinClasses lists every class in reservation order.
var CabinClasses = []CabinClass{CabinFirst, CabinBusiness, CabinEconomy}

// ParseCabinClass normalizes s and reports whether it names a known class.
func ParseCabinClass(s string) (CabinClass, bool) {
	c := CabinClass(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CabinEconomy, CabinBusiness, CabinFirst:
		return c, true
	}
	return "", false
}

type FlightStatus string

const (
	FlightScheduled FlightStatus = "scheduled"
	FlightCancelled FlightStatus = "cancelled"
	FlightDeparted  FlightStatus = "departed"
)

type Route struct {
	ID            int64  `json:"id"`
	DepartureCity string `json:"departure_city"`
	ArrivalCity   string `json:"arrival_city"`
	DistanceKM    int    `json:"distance_km"`
}

type Aircraft struct {
	ID    int64  `json:"id"`
	Model string `json:"model"`
}

// Cabin is the inventory record of one class on one flight.
type Cabin struct {
	Class          CabinClass `json:"class"`
	Capacity       int        `json:"capacity"`
	SeatsAvailable int        `json:"seats_available"`
	PriceCents     int64      `json:"price_cents"`
}

type Flight struct {
	ID            int64                `json:"id"`
	FlightNumber  string               `json:"flight_number"`
	Airline       string               `json:"airline"`
	Route         Route                `json:"route"`
	Aircraft      Aircraft             `json:"aircraft"`
	DepartureTime time.Time            `json:"departure_time"`
	ArrivalTime   time.Time            `json:"arrival_time"`
	Status        FlightStatus         `json:"status"`
	Cabins        map[CabinClass]Cabin `json:"cabins"`
}

func (f *Flight) Summary() FlightSummary {
	return FlightSummary{
		ID:            f.ID,
		FlightNumber:  f.FlightNumber,
		Airline:       f.Airline,
		DepartureCity: f.Route.DepartureCity,
		ArrivalCity:   f.Route.ArrivalCity,
		DepartureTime: f.DepartureTime,
		ArrivalTime:   f.ArrivalTime,
	}
}

type FlightSummary struct {
	ID            int64     `json:"id"`
	FlightNumber  string    `json:"flight_number"`
	Airline       string    `json:"airline"`
	DepartureCity string    `json:"departure_city"`
	ArrivalCity   string    `json:"arrival_city"`
	DepartureTime time.Time `json:"departure_time"`
	ArrivalTime   time.Time `json:"arrival_time"`
}

type Order struct {
	ID            int64         `json:"id"`
	UserID        int64         `json:"user_id"`
	FlightID      int64         `json:"flight_id"`
	OrderNumber   string        `json:"order_number"`
	TotalCents    int64         `json:"total_cents"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TripStatus    TripStatus    `json:"trip_status"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type Passenger struct {
	ID         int64      `json:"id"`
	OrderID    int64      `json:"order_id"`
	FullName   string     `json:"full_name"`
	IDDocument string     `json:"id_document"`
	Phone      string     `json:"phone,omitempty"`
	Class      CabinClass `json:"class"`
	PriceCents int64      `json:"price_cents"`
	SeatNumber *string    `json:"seat_number"`
}

type OrderView struct {
	Order      Order         `json:"order"`
	Passengers []Passenger   `json:"passengers"`
	Flight     FlightSummary `json:"flight"`
}

type OrderSummary struct {
	Total          int64 `json:"total"`
	PendingCheckin int64 `json:"pending_checkin"`
	Confirmed      int64 `json:"confirmed"`
	Completed      int64 `json:"completed"`
	Cancelled      int64 `json:"cancelled"`
}

// Add counts n orders in trip status s.
func (s *OrderSummary) Add(status TripStatus, n int64) {
	switch status {
	case TripPendingCheckin:
		s.PendingCheckin += n
	case TripConfirmed:
		s.Confirmed += n
	case TripCompleted:
		s.Completed += n
	case TripCancelled:
		s.Cancelled += n
	}
	s.Total += n
}

// SearchCriteria selects scheduled flights on a route departing on Date (UTC day).
// When Class is set, only flights with at least Passengers free seats in it match.
type SearchCriteria struct {
	DepartureCity string
	ArrivalCity   string
	Date          time.Time
	Class         *CabinClass
	Passengers    int
}

// DayBounds returns the half-open UTC interval covering c.Date.
func (c SearchCriteria) DayBounds() (time.Time, time.Time) {
	d := c.Date.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
