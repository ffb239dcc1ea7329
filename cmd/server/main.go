package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/laundrypos/api/internal/auth"
	"github.com/laundrypos/api/internal/cart"
	"github.com/laundrypos/api/internal/checkout"
	"github.com/laundrypos/api/internal/config"
	"github.com/laundrypos/api/internal/database"
	"github.com/laundrypos/api/internal/handler"
	"github.com/laundrypos/api/internal/logger"
	"github.com/laundrypos/api/internal/metrics"
	"github.com/laundrypos/api/internal/router"
	"github.com/laundrypos/api/internal/storage"
	"github.com/laundrypos/api/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	lg := logger.New(logger.Options{
		ServiceName: "laundry-pos",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})
	log.Logger = lg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeKV, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeKV()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCartMetrics(reg)

	hub := ws.NewHub(lg.With().Str("component", "ws").Logger())
	go hub.Run(ctx)

	carts := cart.NewRegistry(func(tid uuid.UUID) *cart.Store {
		s := cart.New(
			cart.WithStorage(kv, cart.StorageKey(tid)),
			cart.WithLogger(lg.With().Str("terminal_id", tid.String()).Logger()),
			cart.WithMetrics(m),
			cart.WithMaxCarts(cfg.MaxCarts),
			cart.WithPersistTimeout(cfg.PersistTimeout),
		)
		s.Subscribe(hub.Listener(tid))
		return s
	})

	pinHashes, err := cfg.PINHashes()
	if err != nil {
		return err
	}
	if len(pinHashes) == 0 {
		lg.Warn().Msg("POS_TERMINAL_PINS is empty; no terminal can log in")
	}
	pins := auth.NewPINBook(pinHashes, cfg.ManagerPINHash)

	var checkoutSvc handler.Checkouter
	if cfg.CheckoutEnabled() {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		lg.Info().Msg("running database migrations")
		if err := database.RunMigrations(pool); err != nil {
			return err
		}

		checkoutSvc = checkout.NewService(pool, func(db database.DBTX) checkout.OrderStore {
			return database.New(db)
		}, m, lg.With().Str("component", "checkout").Logger())
	} else {
		lg.Info().Msg("POS_DATABASE_URL not set; checkout disabled")
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(router.Deps{
			Config:   cfg,
			Logger:   lg,
			Carts:    carts,
			Hub:      hub,
			PINs:     pins,
			Checkout: checkoutSvc,
			Gatherer: reg,
			Storage:  kv,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info().Str("addr", srv.Addr).Str("storage", cfg.StorageBackend).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		lg.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("http shutdown")
	}
	if err := carts.Flush(); err != nil {
		lg.Error().Err(err).Msg("flush cart state")
		return err
	}
	return nil
}

// openStorage builds the configured KV backend and its cleanup.
func openStorage(ctx context.Context, cfg *config.Config) (storage.KV, func(), error) {
	noop := func() {}
	switch cfg.StorageBackend {
	case config.StorageRedis:
		rds, err := storage.NewRedis(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, noop, err
		}
		return rds, func() {
			if err := rds.Close(); err != nil {
				log.Warn().Err(err).Msg("close redis")
			}
		}, nil
	case config.StorageMemory:
		log.Warn().Msg("memory storage: carts are lost on restart")
		return storage.NewMemory(), noop, nil
	default:
		f, err := storage.NewFile(cfg.DataDir)
		if err != nil {
			return nil, noop, err
		}
		return f, noop, nil
	}
}
