package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"lifecycle-service/internal/api"
	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/cache"
	"lifecycle-service/internal/config"
	"lifecycle-service/internal/idempotency"
	"lifecycle-service/internal/repository"
	"lifecycle-service/internal/service"
	"lifecycle-service/internal/sharding"
	"lifecycle-service/migrations"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "main").Logger()

func connectDB(cfg config.DBConfig) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("mysql", cfg.DSN())
		if err == nil {
			err = db.Ping()
			if err == nil {
				logger.Info().Str("db", cfg.Name).Msg("Connected to DB")
				return db, nil
			}
		}
		logger.Warn().Err(err).Int("attempt", i+1).Str("db", cfg.Name).Str("host", cfg.Host).Msg("Failed to connect to DB")
		time.Sleep(3 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to DB %s at %s:%s after retries: %w", cfg.Name, cfg.Host, cfg.Port, err)
}

type closer func() error

func mysqlService(cfg config.ServiceConfig) (*service.LifecycleService, api.KeyStore, []closer, error) {
	var dbs []*sql.DB
	var closers []closer
	for _, shard := range cfg.Shards {
		db, err := connectDB(shard)
		if err != nil {
			return nil, nil, closers, err
		}
		dbs = append(dbs, db)
		closers = append(closers, db.Close)
	}

	execers := make([]migrations.Execer, len(dbs))
	for i, db := range dbs {
		execers[i] = db
	}
	if err := migrations.AutoMigrate(3, execers...); err != nil {
		return nil, nil, closers, fmt.Errorf("migrate: %w", err)
	}

	router := sharding.NewShardRouter(len(dbs))
	orders := repository.NewOrderRepository(dbs, router)
	appointments := repository.NewAppointmentRepository(dbs, router)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	closers = append(closers, rdb.Close)
	keys := idempotency.NewStore(rdb)
	vouchers := cache.NewVoucherCache(repository.NewVoucherRepository(dbs, router), rdb, cache.DefaultVoucherTTL)

	writer := config.NewKafkaWriter(cfg.Brokers)
	publisher := bus.NewKafkaPublisher(writer, cfg.Topology)
	closers = append(closers, publisher.Close)

	svc := service.NewLifecycleService(orders, appointments, vouchers, publisher, service.WithLocker(keys))
	return svc, keys, closers, nil
}

// memoryService runs without MySQL, Redis or Kafka. Events go to an
// in-process bus that no session can reach, so there is no realtime delivery
// in this mode and sessions only see changes when they reload.
func memoryService() (*service.LifecycleService, *bus.MemoryBus) {
	store := repository.NewMemoryStore()
	events := bus.NewMemoryBus()
	return service.NewLifecycleService(store, store, store, events), events
}

func main() {
	cfg, err := config.LoadService()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	var svc *service.LifecycleService
	var keys api.KeyStore
	var closers []closer
	switch cfg.Store {
	case config.StoreMemory:
		svc, _ = memoryService()
		logger.Warn().Msg("STORE=memory has no realtime delivery; use Kafka for live sessions")
	default:
		svc, keys, closers, err = mysqlService(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to start storage")
		}
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Error().Err(err).Msg("Close failed")
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(api.RateLimiter(cfg.RateLimit, cfg.Burst))
	api.RegisterRoutes(e, api.NewHandler(svc), cfg.JWTSecret, keys)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("store", cfg.Store).Msg("Lifecycle service listening")
		if err := e.Start(cfg.Addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
	}
}
