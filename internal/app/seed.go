package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kirinyoku/airbook-go/internal/service/admin"
)

type demoRoute struct {
	from, to string
	km       int
	duration time.Duration
}

var demoRoutes = []demoRoute{
	{"Berlin", "Lisbon", 2310, 3*time.Hour + 20*time.Minute},
	{"Lisbon", "Berlin", 2310, 3*time.Hour + 10*time.Minute},
	{"Warsaw", "Rome", 1320, 2*time.Hour + 15*time.Minute},
}

// seedDemo fills an empty in-memory schedule with a week of daily flights so
// the API is usable without an admin step.
func seedDemo(ctx context.Context, svc *admin.Service, now time.Time) error {
	const op = "app.seedDemo"

	aircraft, err := svc.CreateAircraft(ctx, "A320neo")
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	day := now.UTC().Truncate(24 * time.Hour)

	for i, r := range demoRoutes {
		route, err := svc.CreateRoute(ctx, admin.RouteInput{DepartureCity: r.from, ArrivalCity: r.to, DistanceKM: r.km})
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		for d := 1; d <= 7; d++ {
			dep := day.AddDate(0, 0, d).Add(time.Duration(7+3*i) * time.Hour)
			_, err := svc.CreateFlight(ctx, admin.FlightInput{
				FlightNumber:  fmt.Sprintf("AB%d%02d", i+1, d),
				Airline:       "Airbook",
				RouteID:       route.ID,
				AircraftID:    aircraft.ID,
				DepartureTime: dep,
				ArrivalTime:   dep.Add(r.duration),
				Cabins: []admin.CabinInput{
					{Class: "economy", Capacity: 150, PriceCents: int64(r.km) * 6},
					{Class: "business", Capacity: 20, PriceCents: int64(r.km) * 20},
					{Class: "first", Capacity: 6, PriceCents: int64(r.km) * 45},
				},
			})
			if err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}
	}

	return nil
}
