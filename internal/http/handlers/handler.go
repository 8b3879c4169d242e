package handlers

import (
	"mandoob-dispatch-services/internal/assignment"
	"mandoob-dispatch-services/internal/checkout"
	"mandoob-dispatch-services/internal/config"
	"mandoob-dispatch-services/internal/geofence"
	"mandoob-dispatch-services/internal/lifecycle"
	"mandoob-dispatch-services/internal/profit"
	"mandoob-dispatch-services/internal/queue"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Feed pushes ad-hoc messages to a driver's open dispatch connections.
type Feed interface {
	NotifyDriver(driverID int64, message any)
}

type Handler struct {
	DB     *pgxpool.Pool
	Logger *zap.Logger
	Config config.Config

	Queue  *queue.Client
	Events *queue.Events
	Feed   Feed

	Checkout   *checkout.Coordinator
	Assignment *assignment.Coordinator
	Orders     *lifecycle.Manager
	Geofence   *geofence.Engine
	Profit     *profit.Engine
}
