// README: Entry point; loads config, wires services, starts HTTP server and background loops.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relay/internal/config"
	"relay/internal/events"
	httptransport "relay/internal/http"
	"relay/internal/infra"
	"relay/internal/log"
	"relay/internal/maps"
	"relay/internal/modules/assignment"
	"relay/internal/modules/availability"
	"relay/internal/modules/driver"
	"relay/internal/modules/geo"
	"relay/internal/modules/matching"
	"relay/internal/modules/requeue"
	"relay/internal/modules/scoring"
	"relay/internal/modules/stats"
	"relay/internal/notify"
	"relay/internal/types"
)

// queueSink breaks the constructor cycle between the assignment manager
// and the reassignment queue: the manager gets the sink before the queue
// service exists.
type queueSink struct {
	q *requeue.Service
}

func (s *queueSink) Enqueue(ctx context.Context, requestID types.ID, priority int, reason string) error {
	return s.q.Enqueue(ctx, requestID, priority, reason)
}

func (s *queueSink) RemoveOpen(ctx context.Context, requestID types.ID) error {
	return s.q.RemoveOpen(ctx, requestID)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := log.New("relay-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	driverStore := driver.NewStore(dbPool)
	geoStore := geo.NewStore(redisClient)

	availStore := availability.NewStore(dbPool)
	availSvc := availability.NewService(availStore, driverStore, geoStore, logger)

	var notifier assignment.Notifier = notify.Noop{}
	if cfg.Firebase.ProjectID != "" {
		fcm, err := infra.NewMessagingClient(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			logger.Error("firebase init failed", "err", err)
			os.Exit(1)
		}
		notifier = notify.NewFCM(fcm, driverStore, logger)
	} else {
		logger.Warn("firebase not configured, offer pushes disabled")
	}

	var publisher interface {
		assignment.Publisher
		requeue.ExhaustPublisher
	} = events.Noop{}
	if cfg.AMQP.URL != "" {
		conn, ch, err := infra.NewAMQPChannel(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Error("amqp init failed", "err", err)
			os.Exit(1)
		}
		defer conn.Close()
		defer ch.Close()
		publisher = events.NewPublisher(ch, cfg.AMQP.Exchange, logger)
	} else {
		logger.Warn("amqp not configured, dispatch events disabled")
	}

	var refiner matching.WaitRefiner
	if cfg.Maps.APIKey != "" {
		refiner, err = maps.NewRefiner(cfg.Maps.APIKey)
		if err != nil {
			logger.Error("maps init failed", "err", err)
			os.Exit(1)
		}
	}

	assignStore := assignment.NewPGStore(dbPool)
	statsStore := stats.NewPGStore(dbPool)
	aggregator := stats.NewAggregator(statsStore, assignStore, availSvc, cfg.Stats, logger)

	engine := scoring.NewEngine(cfg.Scoring)
	finder := matching.NewFinder(
		geoStore, availSvc, driverStore, assignStore, aggregator,
		engine, refiner, cfg.Matching, logger,
	)

	sink := &queueSink{}
	manager := assignment.NewManager(
		assignStore, availSvc, notifier, publisher, sink, cfg.Assignment, logger,
	)

	requestStore := matching.NewPGRequestStore(dbPool)
	queueStore := requeue.NewPGStore(dbPool)
	queueSvc := requeue.NewService(
		queueStore, requestStore, finder, manager, publisher,
		cfg.Requeue, cfg.Matching, logger,
	)
	sink.q = queueSvc

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Requests:     requestStore,
		Finder:       finder,
		Assignments:  manager,
		Availability: availSvc,
		Geo:          geoStore,
		Drivers:      driverStore,
		Stats:        aggregator,
		Queue:        queueSvc,
		Logger:       logger,
	})

	go manager.RunSweeper(ctx)
	go queueSvc.RunDrainer(ctx)

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "err", err)
		}
	}()

	logger.Info("relay-api listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("http server failed", "err", err)
		os.Exit(1)
	}
}
