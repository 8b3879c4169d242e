package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mandoob-dispatch-services/internal/assignment"
	"mandoob-dispatch-services/internal/checkout"
	"mandoob-dispatch-services/internal/config"
	"mandoob-dispatch-services/internal/db"
	"mandoob-dispatch-services/internal/geofence"
	httpapi "mandoob-dispatch-services/internal/http"
	"mandoob-dispatch-services/internal/lifecycle"
	"mandoob-dispatch-services/internal/logger"
	"mandoob-dispatch-services/internal/profit"
	"mandoob-dispatch-services/internal/queue"
	"mandoob-dispatch-services/internal/ws"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	var queueClient *queue.Client
	if cfg.RabbitMQURL != "" {
		log.Info("rabbitmq enabled", zap.String("eventsQueue", queue.EventsQueue))
		qc, err := queue.New(cfg.RabbitMQURL)
		if err != nil {
			if cfg.Env == "production" {
				log.Fatal("rabbitmq connection failed", zap.Error(err))
			}
			log.Warn("rabbitmq connection failed; continuing without worker", zap.Error(err))
			qc = nil
		}
		if qc != nil {
			if err := queue.EnsureEventsTopology(ctx, qc); err != nil {
				if cfg.Env == "production" {
					log.Fatal("rabbitmq events topology failed", zap.Error(err))
				}
				log.Warn("rabbitmq events topology failed; continuing without worker", zap.Error(err))
				_ = qc.Close()
				qc = nil
			}
		}
		if qc != nil {
			if err := queue.EnsureNotificationJobsTopology(ctx, qc); err != nil {
				if cfg.Env == "production" {
					log.Fatal("rabbitmq notification_jobs topology failed", zap.Error(err))
				}
				log.Warn("rabbitmq notification_jobs topology failed; continuing without worker", zap.Error(err))
				_ = qc.Close()
				qc = nil
			}
		}

		queueClient = qc
		if qc != nil {
			defer qc.Close()
		}

		if queueClient != nil {
			if cfg.RabbitMQWorkerMode == "daemon" {
				log.Info("event translator enabled", zap.String("mode", "daemon"))
				go func() {
					err := queueClient.ConsumeWithRetry(queue.EventsQueue, func(ctx context.Context, body []byte) error {
						return queue.ProcessEventToJobs(ctx, pool, queueClient, body)
					}, 5, 5*time.Second)
					if err != nil {
						log.Error("consumer stopped", zap.Error(err))
					}
				}()
			} else {
				log.Info("event translator disabled", zap.String("mode", cfg.RabbitMQWorkerMode))
			}
		}
	} else {
		log.Info("dispatch worker disabled (RABBITMQ_URL is empty)")
	}

	events := queue.NewEvents(queueClient, log)

	geofenceEngine := geofence.New(pool, cfg)
	profitEngine := profit.New(pool, cfg.PlatformUserID)
	orders := lifecycle.NewManager(pool, cfg.ConfirmationWindow)
	assignmentCoord := assignment.New(pool, geofenceEngine, orders)
	checkoutCoord := checkout.New(pool, geofenceEngine, cfg, log, events)

	wsServer := ws.New(pool, log, cfg, geofenceEngine)

	go sweepExpiredOrders(ctx, log, orders, cfg.SweepInterval)

	apiServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Dependencies{
			DB:         pool,
			Logger:     log,
			Config:     cfg,
			Queue:      queueClient,
			Events:     events,
			WSServer:   wsServer,
			Checkout:   checkoutCoord,
			Assignment: assignmentCoord,
			Orders:     orders,
			Geofence:   geofenceEngine,
			Profit:     profitEngine,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("dispatch api ready", zap.String("base", "/api"))
		log.Info("dispatch ws ready", zap.String("base", "/ws"))
		log.Info("dispatch service listening", zap.String("addr", cfg.HTTPAddr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctxShutdown); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
}

// sweepExpiredOrders re-extends the confirmation window of pending
// orders no driver claimed in time, so they stay in the dispatch feed.
func sweepExpiredOrders(ctx context.Context, log *zap.Logger, orders *lifecycle.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, kind := range []lifecycle.Kind{lifecycle.KindOrder, lifecycle.KindCustom} {
				ids, err := orders.SweepExpired(ctx, kind, now)
				if err != nil {
					log.Error("expired order sweep failed", zap.String("kind", string(kind)), zap.Error(err))
					continue
				}
				if len(ids) > 0 {
					log.Info("expired orders resent to drivers",
						zap.String("kind", string(kind)),
						zap.Int64s("ids", ids))
				}
			}
		}
	}
}
