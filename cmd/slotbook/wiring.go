package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/slot-booking/internal/application"
	"github.com/example/slot-booking/internal/config"
	"github.com/example/slot-booking/internal/events"
	"github.com/example/slot-booking/internal/logging"
	"github.com/example/slot-booking/internal/persistence"
	"github.com/example/slot-booking/internal/persistence/redislock"
	"github.com/example/slot-booking/internal/persistence/sqlite"
)

// wiring owns the process-wide dependencies shared by every command.
type wiring struct {
	cfg          config.Config
	logger       *slog.Logger
	db           *persistence.Database
	health       func(ctx context.Context) error
	identity     *application.IdentityService
	catalog      *application.CatalogService
	reservations *application.ReservationService
	closers      []func() error
}

func openWiring(ctx context.Context, opts *rootOptions, logOutput io.Writer) (*wiring, error) {
	cfg, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.LogLevel) != "" {
		cfg.LogLevel = opts.LogLevel
	}

	logger, err := logging.New(logOutput, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	w := &wiring{cfg: cfg, logger: logger}

	store, err := w.openStore(ctx)
	if err != nil {
		w.close()
		return nil, err
	}

	locker, err := w.openLocker(ctx)
	if err != nil {
		w.close()
		return nil, err
	}

	publisher, err := w.openPublisher()
	if err != nil {
		w.close()
		return nil, err
	}

	w.db = persistence.NewDatabase(store,
		persistence.WithLocker(locker),
		persistence.WithLogger(logger),
	)

	now := func() time.Time { return time.Now().UTC() }
	w.identity = application.NewIdentityServiceWithLogger(
		w.db,
		application.NewPasswordHasher(application.DefaultArgon2idParams),
		application.VerifyPassword,
		uuid.NewString,
		now,
		logger,
	)
	w.catalog = application.NewCatalogServiceWithLogger(w.db, uuid.NewString, now, logger)
	w.reservations = application.NewReservationServiceWithLogger(w.db, publisher, uuid.NewString, now, logger).
		WithPolicy(application.ReservationPolicy{OneBookingPerCompanyPerDay: cfg.OneBookingPerCompanyPerDay})

	return w, nil
}

func (w *wiring) openStore(ctx context.Context) (persistence.DocumentStore, error) {
	if w.cfg.InMemory() {
		w.logger.WarnContext(ctx, "using in-memory store; data is lost on exit")
		return persistence.NewMemoryStore(), nil
	}

	storage, err := sqlite.Open(sqlite.DefaultConfig(w.cfg.SQLiteDSN))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	w.closers = append(w.closers, storage.Close)

	if err := storage.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	w.health = storage.Ping
	w.logger.InfoContext(ctx, "storage ready", "dsn", w.cfg.SQLiteDSN)
	return storage, nil
}

func (w *wiring) openLocker(ctx context.Context) (persistence.Locker, error) {
	if w.cfg.RedisAddr == "" {
		return persistence.NewLocalLocker(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: w.cfg.RedisAddr})
	w.closers = append(w.closers, client.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", w.cfg.RedisAddr, err)
	}

	w.logger.InfoContext(ctx, "using redis document lock", "addr", w.cfg.RedisAddr, "ttl", w.cfg.LockTTL)
	return redislock.New(client, redislock.DefaultKey, w.cfg.LockTTL), nil
}

func (w *wiring) openPublisher() (application.EventPublisher, error) {
	if w.cfg.AMQPURL == "" {
		return events.NewLogPublisher(w.logger), nil
	}

	publisher, err := events.NewAMQPPublisher(w.cfg.AMQPURL, w.cfg.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	w.closers = append(w.closers, publisher.Close)
	w.logger.Info("publishing reservation events", "queue", w.cfg.AMQPQueue)
	return publisher, nil
}

// close releases resources in reverse order of acquisition.
func (w *wiring) close() error {
	if w == nil {
		return nil
	}
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	w.closers = nil
	return errors.Join(errs...)
}

// withWiring opens the shared dependencies, runs fn and releases them.
func withWiring(ctx context.Context, opts *rootOptions, logOutput io.Writer, fn func(ctx context.Context, w *wiring) error) error {
	w, err := openWiring(ctx, opts, logOutput)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.close(); cerr != nil {
			w.logger.Error("failed to release resources", "error", cerr)
		}
	}()
	return fn(ctx, w)
}
