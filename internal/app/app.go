package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/airbook-go/internal/config"
	httpgin "github.com/kirinyoku/airbook-go/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	infra      *infra
	httpServer *http.Server
	// sweeper runs in-process only with memory storage, where no separate
	// worker can see the data.
	sweeper gocron.Scheduler
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	ctx := context.Background()

	in, err := newInfra(ctx, cfg, logger, "airbook-api")
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	services := in.services(cfg, logger)

	a := &App{cfg: cfg, logger: logger, infra: in}

	if cfg.Storage == config.StorageMemory {
		if err := seedDemo(ctx, services.Admin, time.Now()); err != nil {
			in.close()
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		a.sweeper, err = newSweeper(services.Booking, cfg.Worker.CompletionSweepInterval, logger)
		if err != nil {
			in.close()
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	router := httpgin.NewRouter(services, httpgin.Options{
		Idempotency: in.idempotency(cfg),
		Metrics:     in.metrics,
		JWTSecret:   cfg.Auth.JWTSecret,
		AdminToken:  cfg.Auth.AdminToken,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.infra.close()

	g, gCtx := errgroup.WithContext(ctx)

	if a.sweeper != nil {
		a.sweeper.Start()
	}

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := a.httpServer.Shutdown(ctx)
		if a.sweeper != nil {
			err = errors.Join(err, a.sweeper.Shutdown())
		}
		return err
	})

	return g.Wait()
}
