package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	EventsExchange = "mandoob.events"
	EventsQueue    = "mandoob.notifications"

	NotificationJobsExchange = "mandoob.notification_jobs"
	NotificationJobsQueue    = "mandoob.notification_jobs.process"
	NotificationJobsDLQ      = "mandoob.notification_jobs.dlq"
	NotificationJobsRK       = "process"
	NotificationJobsDeadRK   = "dead"
)

const (
	EventOrderCreated           = "order.created"
	EventOrderAssigned          = "order.assigned"
	EventOrderDelivered         = "order.delivered"
	EventOrderCancelled         = "order.cancelled"
	EventOrderDeliveryCancelled = "order.delivery_cancelled"
	EventOrderResent            = "order.resent"
)

type orderEvent struct {
	Type      string   `json:"type"`
	OrderKind string   `json:"orderKind"`
	OrderID   int64    `json:"orderId"`
	UserID    int64    `json:"userId"`
	DriverID  *int64   `json:"driverId,omitempty"`
	StoreIDs  []int64  `json:"storeIds,omitempty"`
	Total     *float64 `json:"total,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	EmittedAt string   `json:"emittedAt"`
}

// EnsureEventsTopology declares the topic exchange order events publish
// to and binds the notifications queue to every order.* routing key.
func EnsureEventsTopology(ctx context.Context, qc *Client) error {
	if qc == nil {
		return nil
	}
	if err := qc.EnsureExchange(EventsExchange); err != nil {
		return err
	}
	if _, err := qc.EnsureQueue(EventsQueue); err != nil {
		return err
	}
	if err := qc.BindQueue(EventsQueue, EventsExchange, "order.*"); err != nil {
		return err
	}
	return qc.BindQueue(EventsQueue, EventsExchange, "custom_order.*")
}

// EnsureNotificationJobsTopology declares the direct exchange the push
// job worker consumes from, with a dead-letter queue for jobs that
// exhaust their retries.
func EnsureNotificationJobsTopology(ctx context.Context, qc *Client) error {
	if qc == nil {
		return nil
	}

	if err := qc.EnsureExchangeKind(NotificationJobsExchange, "direct"); err != nil {
		return err
	}

	if _, err := qc.EnsureQueue(NotificationJobsDLQ); err != nil {
		return err
	}
	if err := qc.BindQueue(NotificationJobsDLQ, NotificationJobsExchange, NotificationJobsDeadRK); err != nil {
		return err
	}

	_, err := qc.EnsureQueueWithArgs(NotificationJobsQueue, amqp.Table{
		"x-dead-letter-exchange":    NotificationJobsExchange,
		"x-dead-letter-routing-key": NotificationJobsDeadRK,
	})
	if err != nil {
		return err
	}
	return qc.BindQueue(NotificationJobsQueue, NotificationJobsExchange, NotificationJobsRK)
}

// Events publishes order lifecycle events. Every publish is
// fire-and-forget: a broken broker logs a warning and the request that
// triggered the event carries on.
type Events struct {
	Client *Client
	Logger *zap.Logger
}

func NewEvents(client *Client, logger *zap.Logger) *Events {
	return &Events{Client: client, Logger: logger}
}

func (e *Events) publish(ctx context.Context, evt orderEvent) {
	if e == nil || e.Client == nil {
		return
	}
	evt.EmittedAt = time.Now().UTC().Format(time.RFC3339)
	if evt.OrderKind == "" {
		evt.OrderKind = "order"
	}
	routingKey := evt.Type
	if evt.OrderKind == "custom_order" && !strings.HasPrefix(routingKey, "custom_order.") {
		routingKey = "custom_" + routingKey
	}
	if err := e.Client.PublishJSON(ctx, EventsExchange, routingKey, evt); err != nil && e.Logger != nil {
		e.Logger.Warn("event publish failed",
			zap.String("type", evt.Type),
			zap.Int64("orderId", evt.OrderID),
			zap.Error(err))
	}
}

func (e *Events) OrderCreated(ctx context.Context, orderID, userID int64, storeIDs []int64, total float64) {
	e.publish(ctx, orderEvent{Type: EventOrderCreated, OrderID: orderID, UserID: userID, StoreIDs: storeIDs, Total: &total})
}

func (e *Events) CustomOrderCreated(ctx context.Context, orderID, userID int64) {
	e.publish(ctx, orderEvent{Type: EventOrderCreated, OrderKind: "custom_order", OrderID: orderID, UserID: userID})
}

func (e *Events) OrderAssigned(ctx context.Context, kind string, orderID, userID, driverID int64) {
	e.publish(ctx, orderEvent{Type: EventOrderAssigned, OrderKind: kind, OrderID: orderID, UserID: userID, DriverID: &driverID})
}

func (e *Events) OrderDelivered(ctx context.Context, kind string, orderID, userID, driverID int64) {
	e.publish(ctx, orderEvent{Type: EventOrderDelivered, OrderKind: kind, OrderID: orderID, UserID: userID, DriverID: &driverID})
}

func (e *Events) OrderCancelled(ctx context.Context, kind string, orderID, userID int64, reason string) {
	e.publish(ctx, orderEvent{Type: EventOrderCancelled, OrderKind: kind, OrderID: orderID, UserID: userID, Reason: reason})
}

func (e *Events) DeliveryCancelled(ctx context.Context, orderID, userID, driverID int64, reason string) {
	e.publish(ctx, orderEvent{Type: EventOrderDeliveryCancelled, OrderKind: "custom_order", OrderID: orderID, UserID: userID, DriverID: &driverID, Reason: reason})
}

func (e *Events) OrderResent(ctx context.Context, kind string, orderID, userID int64) {
	e.publish(ctx, orderEvent{Type: EventOrderResent, OrderKind: kind, OrderID: orderID, UserID: userID})
}

// ProcessEventToJobs is the notifications consumer. It persists a
// notification row per recipient of the event (always the order's user,
// plus the stores on order.created and the driver on assignment events)
// and forwards a push job to the jobs exchange for the delivery worker.
func ProcessEventToJobs(ctx context.Context, db *pgxpool.Pool, qc *Client, body []byte) error {
	if db == nil || qc == nil {
		return nil
	}

	var evt orderEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return err
	}
	evt.Type = strings.TrimPrefix(strings.TrimSpace(evt.Type), "custom_")
	if evt.Type == "" || evt.UserID == 0 {
		// unknown envelope
		return nil
	}

	title, message := notificationText(evt)
	if title == "" {
		// event type we do not notify on
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"title":     title,
		"message":   message,
		"orderKind": evt.OrderKind,
		"orderId":   evt.OrderID,
	})
	if err != nil {
		return err
	}
	for _, rec := range eventRecipients(evt) {
		if _, err := db.Exec(ctx, `
			insert into notifications (recipient_kind, recipient_id, type, payload)
			values ($1, $2, $3, $4)
		`, rec.kind, rec.id, evt.Type, payload); err != nil {
			return err
		}
	}

	job := map[string]any{
		"kind": "push.order_status",
		"payload": map[string]any{
			"userId":    fmt.Sprintf("%d", evt.UserID),
			"orderKind": evt.OrderKind,
			"orderId":   fmt.Sprintf("%d", evt.OrderID),
			"title":     title,
			"message":   message,
		},
		"createdAt": time.Now().UTC().Format(time.RFC3339),
		"attempt":   1,
	}
	return qc.PublishJSON(ctx, NotificationJobsExchange, NotificationJobsRK, job)
}

type eventRecipient struct {
	kind string
	id   int64
}

// eventRecipients lists who gets a notification row for an event: the
// user always, each store on creation, and the driver once one exists.
func eventRecipients(evt orderEvent) []eventRecipient {
	recipients := []eventRecipient{{kind: "user", id: evt.UserID}}
	if evt.Type == EventOrderCreated {
		for _, storeID := range evt.StoreIDs {
			recipients = append(recipients, eventRecipient{kind: "store", id: storeID})
		}
	}
	if evt.DriverID != nil && *evt.DriverID != 0 {
		recipients = append(recipients, eventRecipient{kind: "driver", id: *evt.DriverID})
	}
	return recipients
}

func notificationText(evt orderEvent) (title, message string) {
	ref := fmt.Sprintf("#%d", evt.OrderID)
	switch evt.Type {
	case EventOrderCreated:
		return "Order placed", "Your order " + ref + " was placed and is waiting for a driver."
	case EventOrderAssigned:
		return "Driver assigned", "A driver accepted your order " + ref + " and is on the way."
	case EventOrderDelivered:
		return "Order delivered", "Your order " + ref + " has been delivered."
	case EventOrderCancelled:
		msg := "Your order " + ref + " was cancelled."
		if strings.TrimSpace(evt.Reason) != "" {
			msg += " Reason: " + strings.TrimSpace(evt.Reason)
		}
		return "Order cancelled", msg
	case EventOrderDeliveryCancelled:
		msg := "The driver cancelled delivery of your order " + ref + ". It is available for other drivers again."
		if strings.TrimSpace(evt.Reason) != "" {
			msg += " Reason: " + strings.TrimSpace(evt.Reason)
		}
		return "Delivery cancelled", msg
	case EventOrderResent:
		return "Order resent", "Your order " + ref + " was sent to drivers again."
	default:
		return "", ""
	}
}
