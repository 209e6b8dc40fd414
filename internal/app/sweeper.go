package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/kirinyoku/airbook-go/internal/service/booking"
)

// newSweeper schedules the completion of departed trips every interval. Runs
// never overlap; a slow run pushes the next one back.
func newSweeper(svc *booking.Service, interval time.Duration, logger *slog.Logger) (gocron.Scheduler, error) {
	const op = "app.newSweeper"

	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			n, err := svc.CompleteDepartedTrips(ctx, time.Now().UTC())
			if err != nil {
				logger.Error("completion sweep failed", "error", err)
				return
			}
			if n > 0 {
				logger.Info("completion sweep", "orders_completed", n)
			}
		}),
		gocron.WithName("complete-departed-trips"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return s, nil
}
