package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/avstrong/staybook/internal/booking"
	"github.com/avstrong/staybook/internal/config"
	"github.com/avstrong/staybook/internal/expiry"
	"github.com/avstrong/staybook/internal/logger"
	"github.com/avstrong/staybook/internal/migration"
	"github.com/avstrong/staybook/internal/payment"
	"github.com/avstrong/staybook/internal/payment/dedup"
	"github.com/avstrong/staybook/internal/pricing"
	"github.com/avstrong/staybook/internal/storage/memory"
	"github.com/avstrong/staybook/internal/storage/postgres"
	"github.com/avstrong/staybook/internal/telemetry"
	"github.com/avstrong/staybook/internal/transport/web"
)

const (
	serviceName = "staybook"
	version     = "0.1.0"
)

type storage interface {
	booking.Store
	booking.RoomCatalog
	ListByStatus(ctx context.Context, statuses ...booking.Status) ([]*booking.Booking, error)
	SaveRooms(ctx context.Context, rooms []*booking.Room) error
}

type deduplicator interface {
	Claim(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

func openStorage(ctx context.Context, l *logger.Logger, conf *config.Config) (storage, func(), error) {
	if conf.StorageDriver != config.StoragePostgres {
		//nolint:exhaustruct
		return memory.New(memory.Config{L: l}), func() {}, nil
	}

	dbConf := conf.DB
	dbConf.L = l

	db, err := postgres.Open(ctx, dbConf)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			l.LogErrorf("Failed to close postgres: %v", err.Error())
		}
	}

	if err := db.Migrate(ctx); err != nil {
		closeDB()

		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	return db, closeDB, nil
}

func openDedup(ctx context.Context, l *logger.Logger, conf *config.Config) (deduplicator, func(), error) {
	if conf.RedisAddr == "" {
		l.LogInfo("REDIS_ADDR is not set, callback de-duplication is process local")

		return dedup.NewMemory(conf.DedupTTL), func() {}, nil
	}

	//nolint:exhaustruct
	client := redis.NewClient(&redis.Options{Addr: conf.RedisAddr})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("ping redis %v: %w", conf.RedisAddr, err)
	}

	closeClient := func() {
		if err := client.Close(); err != nil {
			l.LogErrorf("Failed to close redis client: %v", err.Error())
		}
	}

	return dedup.NewRedis(client, serviceName, conf.DedupTTL), closeClient, nil
}

//nolint:funlen // wiring
func Run(l *logger.Logger, conf *config.Config) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
	)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(serviceName, version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*2) //nolint:gomnd
		defer cancel()

		if err := shutdownTracing(ctx); err != nil {
			l.LogErrorf("Failed to stop tracing: %v", err.Error())
		}
	}()

	store, closeStore, err := openStorage(ctx, l, conf)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := migration.Up(ctx, l, store); err != nil {
		return fmt.Errorf("seed rooms: %w", err)
	}

	callbacks, closeDedup, err := openDedup(ctx, l, conf)
	if err != nil {
		return err
	}
	defer closeDedup()

	bookManager := booking.New(l, booking.Config{HoldDuration: conf.HoldDuration}, store, store, pricing.New(conf.Pricing))

	gateway := payment.NewBreaker(l, conf.Breaker, payment.NewHosted(conf.Gateway))

	coordinator := payment.NewCoordinator(l, conf.Payment, bookManager, gateway, callbacks)
	bookManager.UsePayments(coordinator)

	sweeper := expiry.New(l, expiry.Config{Interval: conf.SweepInterval}, store, bookManager)

	go func() {
		if err := sweeper.Run(ctx); err != nil {
			l.LogErrorf("Sweeper stopped: %v", err.Error())
		}
	}()

	webConf := web.Conf{
		L:                 l,
		ServerLogger:      log.New(l.Logrus().WriterLevel(logrus.ErrorLevel), "", 0),
		Host:              conf.HTTP.Host,
		Port:              conf.HTTP.Port,
		ReadHeaderTimeout: conf.HTTP.ReadHeaderTimeout,
		LivenessEndpoint:  conf.HTTP.LivenessEndpoint,
	}

	srv, err := web.New(ctx, webConf, bookManager, coordinator)
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	//nolint:contextcheck
	go func() {
		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*4) //nolint:gomnd
		defer cancel()

		if err := srv.Srv().Shutdown(ctx); err != nil {
			l.LogErrorf("Failed to stop http server: %v", err.Error())
		}
	}()

	l.LogInfo("Application is running on %v:%v...", webConf.Host, webConf.Port)

	if err := srv.Srv().ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		cancel()

		return fmt.Errorf("run http server: %w", err)
	}

	l.LogInfo("Application stopped gracefully")

	return nil
}
