package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campsite-reservation/internal/availability"
	"github.com/iliyamo/campsite-reservation/internal/calendar"
	"github.com/iliyamo/campsite-reservation/internal/config"
	"github.com/iliyamo/campsite-reservation/internal/handler"
	"github.com/iliyamo/campsite-reservation/internal/middleware"
	"github.com/iliyamo/campsite-reservation/internal/queue"
	"github.com/iliyamo/campsite-reservation/internal/repository"
	"github.com/iliyamo/campsite-reservation/internal/router"
	"github.com/iliyamo/campsite-reservation/internal/rules"
	"github.com/iliyamo/campsite-reservation/internal/service"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger("server", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cal, err := calendar.NewInZone(calendar.RealClock{}, cfg.Timezone)
	if err != nil {
		logger.Fatalf("calendar: %v", err)
	}
	stayRules := rules.New(cal)
	stayRules.MaxStayNights = cfg.MaxStayNights
	stayRules.MaxAdvanceDays = cfg.MaxAdvanceDays
	stayRules.WindowDays = cfg.WindowDays

	ledger := repository.NewBookingLedger()

	// Redis is required for the shared index and optional for the
	// response cache.
	var rdb *redis.Client
	if cfg.Availability.Backend == "redis" || cfg.Cache.Enabled {
		rdb, err = config.NewRedisClient(cfg.Redis)
		if err != nil {
			if cfg.Availability.Backend == "redis" {
				logger.Fatalf("availability backend: %v", err)
			}
			logger.Warnf("response cache disabled: %v", err)
		} else {
			defer rdb.Close()
		}
	}

	var index availability.Index = availability.NewMemoryIndex()
	if cfg.Availability.Backend == "redis" {
		index = availability.NewRedisIndex(rdb, cfg.Availability.RedisKey)
	}
	cache := availability.New(index, ledger, availability.Options{
		QueueSize: cfg.Availability.QueueSize,
		Retries:   cfg.Availability.Retries,
		Today:     cal.Today,
		Logger:    config.NewLogger("availability", cfg.LogLevel),
	})
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	cache.Start(workerCtx, cfg.Availability.ReconcileInterval)

	var events service.EventPublisher
	var publisher *queue.Publisher
	if cfg.Events.Enabled {
		publisher = queue.NewPublisher(cfg.Events.URL, cfg.Events.Queue, cfg.Events.Buffer, config.NewLogger("events", cfg.LogLevel))
		publisher.Start(workerCtx)
		events = publisher
	}

	svc := service.NewReservationService(ledger, cache, stayRules, events)

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	router.RegisterRoutes(e, handler.NewHealthHandler(ledger, cache))
	router.RegisterReservations(e, handler.NewReservationHandler(svc), cfg.Cache, rdb)

	addr := ":" + cfg.Port
	go func() {
		logger.Infof("listening on %s (env=%s, availability=%s)", addr, cfg.Env, cfg.Availability.Backend)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	if err := cache.Flush(shutdownCtx); err != nil {
		logger.Warnf("availability flush: %v", err)
	}
	if publisher != nil {
		if err := publisher.Close(shutdownCtx); err != nil {
			logger.Warnf("event publisher close: %v", err)
		}
	}
	stopWorkers()
	logger.Info("stopped")
}
