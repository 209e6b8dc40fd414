package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/airbook-go/internal/config"
	"github.com/kirinyoku/airbook-go/internal/events"
)

// Worker runs the background side: the trip completion sweep and, when Kafka
// is configured, a consumer that turns order events into user notifications.
type Worker struct {
	cfg      *config.Config
	logger   *slog.Logger
	infra    *infra
	sweeper  gocron.Scheduler
	consumer *events.Consumer
}

func NewWorker(cfg *config.Config, logger *slog.Logger) (*Worker, error) {
	const op = "app.NewWorker"

	if cfg.Storage == config.StorageMemory {
		return nil, fmt.Errorf("%s: worker needs shared storage, STORAGE_DRIVER=memory is API-only", op)
	}

	in, err := newInfra(context.Background(), cfg, logger, "airbook-worker")
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	services := in.services(cfg, logger)

	sweeper, err := newSweeper(services.Booking, cfg.Worker.CompletionSweepInterval, logger)
	if err != nil {
		in.close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	w := &Worker{cfg: cfg, logger: logger, infra: in, sweeper: sweeper}

	if len(cfg.Kafka.Brokers) > 0 {
		w.consumer = events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.OrderTopic)
	}

	return w, nil
}

func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer w.infra.close()

	g, gCtx := errgroup.WithContext(ctx)

	w.sweeper.Start()
	w.logger.Info("worker started", "sweep_interval", w.cfg.Worker.CompletionSweepInterval, "consumer", w.consumer != nil)

	if w.consumer != nil {
		g.Go(func() error {
			err := w.consumer.Consume(gCtx, w.notify, func(msg kafka.Message, err error) {
				w.logger.Warn("skipping undecodable order event", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("order event consumer: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		w.logger.Info("shutting down worker")
		return errors.Join(w.sweeper.Shutdown(), w.consumer.Close())
	})

	return g.Wait()
}

// notify stands in for a delivery channel: it records what the user would be told.
func (w *Worker) notify(_ context.Context, ev events.OrderEvent) error {
	msg, ok := notificationText(ev)
	if !ok {
		return nil
	}
	w.logger.Info("notify user",
		"user_id", ev.UserID,
		"order_number", ev.OrderNumber,
		"event", ev.Type,
		"message", msg,
	)
	return nil
}

func notificationText(ev events.OrderEvent) (string, bool) {
	switch ev.Type {
	case events.TypeOrderCreated:
		return fmt.Sprintf("Order %s is booked, total %d.%02d. Pay to secure your seats.",
			ev.OrderNumber, ev.TotalCents/100, ev.TotalCents%100), true
	case events.TypeOrderPaid:
		return fmt.Sprintf("Payment for order %s received. Check-in is open.", ev.OrderNumber), true
	case events.TypeOrderCancelled:
		return fmt.Sprintf("Order %s was cancelled.", ev.OrderNumber), true
	case events.TypeOrderCheckedIn:
		return fmt.Sprintf("You are checked in for order %s. Your boarding pass is ready.", ev.OrderNumber), true
	case events.TypeOrderCompleted:
		return fmt.Sprintf("Thanks for flying with us. Order %s is complete.", ev.OrderNumber), true
	}
	return "", false
}
