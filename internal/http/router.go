package httpapi

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"mandoob-dispatch-services/internal/assignment"
	"mandoob-dispatch-services/internal/checkout"
	"mandoob-dispatch-services/internal/config"
	"mandoob-dispatch-services/internal/geofence"
	"mandoob-dispatch-services/internal/http/handlers"
	"mandoob-dispatch-services/internal/lifecycle"
	"mandoob-dispatch-services/internal/middleware"
	"mandoob-dispatch-services/internal/profit"
	"mandoob-dispatch-services/internal/queue"
	"mandoob-dispatch-services/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Dependencies struct {
	DB       *pgxpool.Pool
	Logger   *zap.Logger
	Config   config.Config
	Queue    *queue.Client
	Events   *queue.Events
	WSServer *ws.Server

	Checkout   *checkout.Coordinator
	Assignment *assignment.Coordinator
	Orders     *lifecycle.Manager
	Geofence   *geofence.Engine
	Profit     *profit.Engine
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Telemetry(deps.Logger))

	cfg := deps.Config
	if cfg.Env == "development" || len(cfg.CorsAllowedOrigins) > 0 {
		options := cors.Options{
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{
				"Accept",
				"Authorization",
				"Content-Type",
				"X-Requested-With",
				"Cache-Control",
				"Pragma",
			},
			AllowCredentials: true,
			MaxAge:           300,
		}

		if cfg.Env == "development" {
			options.AllowOriginFunc = func(_ *http.Request, origin string) bool {
				return true
			}
		} else {
			options.AllowedOrigins = cfg.CorsAllowedOrigins
		}

		r.Use(cors.Handler(options))
	}

	h := &handlers.Handler{
		DB:         deps.DB,
		Logger:     deps.Logger,
		Config:     cfg,
		Queue:      deps.Queue,
		Events:     deps.Events,
		Feed:       deps.WSServer,
		Checkout:   deps.Checkout,
		Assignment: deps.Assignment,
		Orders:     deps.Orders,
		Geofence:   deps.Geofence,
		Profit:     deps.Profit,
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Post("/delivery/quote", h.PublicDeliveryQuote)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.UserAuth(cfg.JWTSecret))

		r.Post("/checkout", h.CheckoutCreate)
		r.Get("/cart/price-changes", h.CartPriceChanges)

		r.Get("/orders", h.OrdersList)
		r.Get("/orders/{orderId}", h.OrderDetail)
		r.Post("/orders/{orderId}/cancel", h.OrderCancel)

		r.Post("/custom-orders", h.CustomOrderCreate)
		r.Post("/custom-orders/{orderId}/cancel", h.CustomOrderCancel)

		r.Get("/notifications", h.NotificationsList)
	})

	r.Route("/api/driver", func(r chi.Router) {
		r.Use(middleware.DriverAuth(deps.DB, cfg.JWTSecret))

		r.Get("/orders", h.DriverAvailableOrders)
		r.Get("/orders/active", h.DriverActiveOrders)
		r.Post("/orders/{orderId}/accept", h.DriverAcceptOrder)
		r.Post("/orders/{orderId}/deliver", h.DriverDeliverOrder)
		r.Post("/orders/{orderId}/cancel", h.DriverCancelDelivery)
		r.Put("/location", h.DriverUpdateLocation)
		r.Put("/status", h.DriverUpdateStatus)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWTSecret))

		r.Post("/orders/{orderId}/retry", h.AdminOrderRetry)
		r.Post("/orders/{orderId}/resend", h.AdminOrderResend)
		r.Post("/orders/{orderId}/cancel", h.AdminOrderCancel)
		r.Get("/statistics", h.AdminStatistics)
	})

	if deps.WSServer != nil {
		r.Get("/ws/driver/dispatch", deps.WSServer.DriverDispatchWS)
	}

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
