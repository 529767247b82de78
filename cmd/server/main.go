// Command server wires the ecotrace lifecycle tracker: counter, ledger
// simulator, projection bridge, domain services, event fan-out, and the HTTP
// API, then runs everything under one errgroup with graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"ecotrace/internal/counter"
	"ecotrace/internal/device"
	"ecotrace/internal/events"
	"ecotrace/internal/events/kafka"
	"ecotrace/internal/ledger"
	"ecotrace/internal/platform/config"
	"ecotrace/internal/platform/httpserver"
	"ecotrace/internal/platform/logger"
	"ecotrace/internal/platform/metrics"
	platformredis "ecotrace/internal/platform/redis"
	"ecotrace/internal/projection"
	projmetrics "ecotrace/internal/projection/metrics"
	"ecotrace/internal/ratelimit"
	"ecotrace/internal/recycling"
	"ecotrace/internal/registry"
	"ecotrace/internal/storage"
	"ecotrace/internal/token"
	httptransport "ecotrace/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.LedgerMode != config.LedgerModeSimulator {
		return fmt.Errorf("ledger mode %q is not available in this build", cfg.LedgerMode)
	}

	// Counter backend: Redis when configured, in-process otherwise.
	var alloc counter.Allocator
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		alloc = counter.NewRedisAllocator(redisClient.Client)
		log.Info("counter backend: redis")
	} else {
		alloc = counter.NewMemoryAllocator()
		log.Info("counter backend: memory")
	}

	// Projection and commit-log stores: Postgres when configured.
	var (
		commitLog ledger.Log
		applyLog  projection.ApplyLog
		devStore  device.Store
		regStore  registry.Store
		recStore  recycling.Store
	)
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		if err := storage.EnsureSchema(ctx, db); err != nil {
			return err
		}
		commitLog = ledger.NewPostgresLog(db)
		applyLog = projection.NewPostgresApplyLog(db)
		devStore = device.NewPostgresStore(db)
		regStore = registry.NewPostgresStore(db)
		recStore = recycling.NewPostgresStore(db)
		log.Info("projection backend: postgres")
	} else {
		commitLog = ledger.NewMemoryLog()
		applyLog = projection.NewMemoryApplyLog()
		devStore = device.NewMemoryStore()
		regStore = registry.NewMemoryStore()
		recStore = recycling.NewMemoryStore()
		log.Info("projection backend: memory")
	}

	m := metrics.New()
	led := ledger.NewSimulator(alloc, commitLog)
	bridge := projection.New(applyLog, led, alloc, log, projmetrics.New())
	bus := events.NewBus(log, m)

	regSvc := registry.NewService(regStore, led, bridge, bus, log, m, cfg.OpTimeout)
	devSvc := device.NewService(devStore, regSvc, led, bridge, bus, log, m, cfg.OpTimeout)
	recSvc := recycling.NewService(recStore, devStore, regSvc, led, bridge, bus, log, m, cfg.OpTimeout)
	tokens := token.NewService(cfg.JWTSigningKey, "ecotrace")

	// Catch up the projection before serving traffic: a crash between
	// ledger commit and projection write leaves a gap Resync closes.
	if err := bridge.Resync(ctx); err != nil {
		return fmt.Errorf("projection resync: %w", err)
	}

	var limitStore ratelimit.Store
	if redisClient != nil {
		limitStore = ratelimit.NewRedisStore(redisClient.Client)
	} else {
		limitStore = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.NewMiddleware(ratelimit.NewLimiter(limitStore, ratelimit.DefaultLimits()), log)

	router := httptransport.NewRouter(httptransport.Deps{
		Registry:  regSvc,
		Devices:   devSvc,
		Recycling: recSvc,
		Tokens:    tokens,
		Events:    bus,
		RateLimit: limiter,
		Logger:    log,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	worker := projection.NewWorker(bridge, log)
	g.Go(func() error {
		if err := worker.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := kafka.NewPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return fmt.Errorf("start kafka publisher: %w", err)
		}
		log.Info("kafka sink enabled", "topic", cfg.Kafka.Topic)
		g.Go(func() error {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := publisher.Close(flushCtx); err != nil {
					log.Error("kafka publisher close failed", "error", err)
				}
			}()
			if err := publisher.Run(ctx, bus); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Info("starting ecotrace server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
