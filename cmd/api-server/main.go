package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/opd-appointment-booking/internal/api"
	"github.com/hackgods/opd-appointment-booking/internal/booking"
	"github.com/hackgods/opd-appointment-booking/internal/config"
	"github.com/hackgods/opd-appointment-booking/internal/db"
	"github.com/hackgods/opd-appointment-booking/internal/logger"
	"github.com/hackgods/opd-appointment-booking/internal/metrics"
	redisclient "github.com/hackgods/opd-appointment-booking/internal/redis"
)

const serviceName = "opd-booking"

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("config load error")
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("logger setup error")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.Store).
		Str("lock_backend", cfg.LockBackend).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("api-server stopped with error")
	}
	log.Info().Msg("api-server shut down")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	checks := map[string]api.CheckFunc{}

	var pgPool *pgxpool.Pool
	if cfg.Store == config.StorePostgres {
		pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: cfg.PostgresMaxConn, MinConns: cfg.PostgresMinConn})
		cancelPg()
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		pgPool = pool
		checks["postgres"] = pool.Ping
		log.Info().Msg("connected to Postgres")
	}

	var rdb *redis.Client
	if cfg.LockBackend == config.LockRedis {
		client, err := redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		rdb = client
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info().Msg("connected to Redis")
	}

	collector := metrics.NewCollector("opd")

	catalog := booking.NewCatalog()
	slots := booking.NewSlotRegistry(catalog)

	var repo booking.Repository = booking.NewMemoryRepository()
	if pgPool != nil {
		repo = booking.NewPgRepository(pgPool)
	}

	var locker booking.Locker = booking.NewLocalLocker()
	if rdb != nil {
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, cfg.LockWait)
	}

	ledger := booking.NewLedger(booking.LedgerConfig{
		Catalog:          catalog,
		Slots:            slots,
		Repo:             repo,
		Locker:           locker,
		Logger:           log,
		Metrics:          collector,
		VerifyInvariants: !cfg.Production(),
	})
	query := booking.NewQueryService(catalog, slots, ledger)

	switch {
	case pgPool != nil:
		if err := booking.LoadCatalog(ctx, pgPool, catalog, slots); err != nil {
			return err
		}
		if err := ledger.RestoreCounters(ctx); err != nil {
			return err
		}
		log.Info().Int("slots", len(slots.Slots())).Msg("catalog loaded from Postgres")
	case cfg.SeedData:
		if err := booking.Seed(ctx, catalog, slots, ledger, time.Now().In(cfg.Location())); err != nil {
			return err
		}
		log.Info().Int("slots", len(slots.Slots())).Msg("seed data loaded")
	}

	handler := api.NewRouter(api.RouterConfig{
		Ledger:    ledger,
		Query:     query,
		Health:    api.NewHealthHandler(serviceName, cfg.Env, cfg.Version, checks),
		Metrics:   collector,
		Logger:    log,
		JWTSecret: cfg.JWTSecret,
		Service:   serviceName,
		Version:   cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.SweepInterval > 0 {
		sweeper := booking.NewNoShowSweeper(ledger, slots, cfg.Location(), cfg.NoShowGrace, log)
		g.Go(func() error {
			return sweeper.Run(gctx, cfg.SweepInterval)
		})
	}

	return g.Wait()
}
