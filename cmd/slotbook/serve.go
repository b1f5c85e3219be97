package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/slot-booking/internal/application"
	httptransport "github.com/example/slot-booking/internal/http"
)

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the booking HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWiring(cmd.Context(), rootOpts, cmd.ErrOrStderr(), serve)
		},
	}
}

func serve(ctx context.Context, w *wiring) error {
	logger := w.logger

	if w.cfg.SeedDemoUsers {
		if _, err := w.identity.SeedUsers(ctx, application.DemoUsers); err != nil {
			return fmt.Errorf("seed demo users: %w", err)
		}
	}

	handler, err := newHandler(ctx, w)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", w.cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("slot booking API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	logger.Info("slot booking API stopped")
	return nil
}

// newHandler assembles the router with session, admin and rate limit guards.
func newHandler(ctx context.Context, w *wiring) (http.Handler, error) {
	logger := w.logger

	tokens, err := httptransport.NewTokenIssuer(w.cfg.SessionSecret, w.cfg.SessionTTL, time.Now)
	if err != nil {
		return nil, err
	}

	limiter := httptransport.NewLimiterStore(w.cfg.LoginRate, w.cfg.LoginBurst)
	limiter.StartJanitor(ctx)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Auth:         httptransport.NewAuthHandler(w.identity, tokens, logger),
		Users:        httptransport.NewUserHandler(w.identity, tokens, logger),
		Slots:        httptransport.NewSlotHandler(w.catalog, logger),
		Reservations: httptransport.NewReservationHandler(w.reservations, logger),
		Session:      httptransport.RequireSession(tokens, w.identity, logger),
		Admin:        httptransport.RequireAdmin(logger),
		Throttle:     httptransport.RateLimit(limiter, logger),
		Health:       w.health,
		Middleware:   []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	}), nil
}
