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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/rehearsal-go/internal/availability"
	"github.com/kirinyoku/rehearsal-go/internal/clock"
	"github.com/kirinyoku/rehearsal-go/internal/config"
	"github.com/kirinyoku/rehearsal-go/internal/conflict"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/events"
	"github.com/kirinyoku/rehearsal-go/internal/kafka"
	"github.com/kirinyoku/rehearsal-go/internal/postgres"
	redisx "github.com/kirinyoku/rehearsal-go/internal/redis"
	postgresrepo "github.com/kirinyoku/rehearsal-go/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/rehearsal-go/internal/repository/redis"
	"github.com/kirinyoku/rehearsal-go/internal/reservation"
	"github.com/kirinyoku/rehearsal-go/internal/service"
	httpgin "github.com/kirinyoku/rehearsal-go/internal/transport/http/gin"
	"github.com/kirinyoku/rehearsal-go/internal/worker"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	services   *service.Services
	pubsub     *redisx.BookingsPubSub

	pool     *pgxpool.Pool
	rdb      *redis.Client
	producer *kafka.Producer
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	dsn := postgres.DSN(
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(ctx, postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to initialize postgres: %w", op, err)
	}

	store := postgresrepo.NewStore(pgxPool)
	if err := store.Migrate(ctx); err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb, err := redisx.New(ctx, redisx.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("%s: failed to initialize redis: %w", op, err)
	}

	a := &App{cfg: cfg, logger: logger, pool: pgxPool, rdb: rdb}

	// Event subscribers
	bus := events.NewBus(logger, 5*time.Second)
	bus.Subscribe(events.AuditLog(logger))

	a.pubsub = redisx.NewBookingsPubSub(rdb)
	bus.Subscribe(events.RedisChannel(a.pubsub))

	if len(cfg.Kafka.Brokers) > 0 {
		a.producer, err = kafka.NewProducer(kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%s: failed to initialize kafka: %w", op, err)
		}
		bus.Subscribe(events.Kafka(a.producer))
	}

	// Services
	cache := redisrepo.NewSnapshotCache(redisrepo.New(rdb), domain.ResourceRehearsalRoom, cfg.Redis.SnapshotTTL)

	studio := cfg.Studio
	a.services = service.NewServices(store, cache, store.Credits(), bus, clock.Real(), logger, service.Config{
		Index: conflict.Config{
			BufferMinutes: studio.BufferMinutes,
			Location:      studio.Location,
			Bypass:        cfg.IsTest(),
		},
		Availability: availability.Config{
			OpenMinute:  studio.OpenMinute,
			CloseMinute: studio.CloseMinute,
			MinDuration: time.Duration(studio.MinDurationMinutes) * time.Minute,
			MaxDuration: time.Duration(studio.MaxDurationMinutes) * time.Minute,
			Granularity: time.Duration(studio.GranularityMinutes) * time.Minute,
		},
		Policy: reservation.DefaultPolicy(),
		Sweep:  worker.SweepConfig{Interval: cfg.Sweep.Interval},
	})

	// HTTP
	router := httpgin.NewRouter(a.services, httpgin.Options{
		Idempotency: redisrepo.NewIdempotencyStore(rdb, 24*time.Hour),
		Limiter:     redisrepo.NewSlidingWindowLimiter(rdb, "bookings", cfg.Server.RateLimitPerMinute, time.Minute),
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
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Auto-cancellation sweep
	g.Go(func() error {
		if err := a.services.Sweep.Start(gCtx); err != nil {
			return err
		}
		<-gCtx.Done()
		a.services.Sweep.Stop()
		return nil
	})

	// Peers announce their writes on the channel. Dropping the snapshots
	// again covers a peer whose own invalidation failed.
	g.Go(func() error {
		idx := a.services.Availability.Index()
		err := a.pubsub.Subscribe(gCtx, func(ctx context.Context, msg redisx.BookingChangedMsg) {
			idx.Invalidate(ctx, idx.DatesOf(domain.NewInterval(msg.Start, msg.End))...)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("bookings subscription: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close failed", slog.String("err", err.Error()))
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
