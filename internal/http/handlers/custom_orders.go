package handlers

import (
	"net/http"
	"strings"
	"time"

	"mandoob-dispatch-services/internal/geo"
	"mandoob-dispatch-services/internal/geofence"
	"mandoob-dispatch-services/internal/lifecycle"
	"mandoob-dispatch-services/internal/middleware"
	"mandoob-dispatch-services/internal/utils"
	"mandoob-dispatch-services/pkg/response"

	"go.uber.org/zap"
)

type customOrderItemRequest struct {
	Description   string   `json:"description"`
	PickupAddress string   `json:"pickupAddress"`
	PickupLat     *float64 `json:"pickupLat"`
	PickupLng     *float64 `json:"pickupLng"`
}

type customOrderRequest struct {
	Items           []customOrderItemRequest `json:"items"`
	DeliveryAddress string                   `json:"deliveryAddress"`
	DeliveryLat     *float64                 `json:"deliveryLat"`
	DeliveryLng     *float64                 `json:"deliveryLng"`
	IsImmediate     *bool                    `json:"isImmediate"`
	ScheduledAt     *time.Time               `json:"scheduledAt"`
}

// CustomOrderCreate takes a free-form errand: a list of pickup stops
// with descriptions, priced purely on estimated distance since there is
// no cart behind it.
func (h *Handler) CustomOrderCreate(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req customOrderRequest
	if err := decodeBody(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if len(req.Items) == 0 {
		response.Error(w, http.StatusBadRequest, "ITEMS_REQUIRED", "At least one item is required")
		return
	}
	if strings.TrimSpace(req.DeliveryAddress) == "" {
		response.Error(w, http.StatusBadRequest, "DELIVERY_ADDRESS_REQUIRED", "Delivery address is required")
		return
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.Description) == "" {
			response.Error(w, http.StatusBadRequest, "ITEM_DESCRIPTION_REQUIRED", "Every item needs a description")
			return
		}
	}

	isImmediate := true
	if req.IsImmediate != nil {
		isImmediate = *req.IsImmediate
	}
	if !isImmediate && req.ScheduledAt == nil {
		response.Error(w, http.StatusBadRequest, "SCHEDULED_AT_REQUIRED", "Scheduled orders need a scheduled time")
		return
	}

	distanceKm := estimateCustomDistance(req)
	fee, derr := h.Geofence.QuoteDeliveryFee(distanceKm)
	if derr != nil {
		writeDomainError(w, derr)
		return
	}

	now := time.Now()
	expiresAt := now.Add(h.Config.ConfirmationWindow)

	tx, err := h.DB.Begin(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "CUSTOM_ORDER_FAILED", "Could not create custom order")
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	var orderID int64
	err = tx.QueryRow(r.Context(), `
		insert into custom_orders (
			user_id, status, delivery_fee, distance_km, delivery_address,
			delivery_lat, delivery_lng, is_immediate, scheduled_at, confirmation_expires_at
		) values ($1, 'pending', $2, $3, $4, $5, $6, $7, $8, $9)
		returning id
	`, ac.UserID, fee, utils.Round3(distanceKm), req.DeliveryAddress,
		req.DeliveryLat, req.DeliveryLng, isImmediate, req.ScheduledAt, expiresAt).Scan(&orderID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "CUSTOM_ORDER_FAILED", "Could not create custom order")
		return
	}

	for i, item := range req.Items {
		if _, err := tx.Exec(r.Context(), `
			insert into custom_order_items (custom_order_id, description, pickup_address, pickup_lat, pickup_lng, order_index)
			values ($1, $2, $3, $4, $5, $6)
		`, orderID, item.Description, nullableString(item.PickupAddress), item.PickupLat, item.PickupLng, i); err != nil {
			response.Error(w, http.StatusInternalServerError, "CUSTOM_ORDER_FAILED", "Could not create custom order items")
			return
		}
	}

	if err := tx.Commit(r.Context()); err != nil {
		response.Error(w, http.StatusInternalServerError, "CUSTOM_ORDER_FAILED", "Could not create custom order")
		return
	}

	if h.Events != nil {
		h.Events.CustomOrderCreated(r.Context(), orderID, ac.UserID)
	}

	h.Logger.Info("custom order created",
		zap.Int64("orderId", orderID),
		zap.Int64("userId", ac.UserID),
		zap.Float64("deliveryFee", fee))

	response.JSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data": map[string]any{
			"orderId":               orderID,
			"status":                "pending",
			"deliveryFee":           fee,
			"distanceKm":            utils.Round3(distanceKm),
			"confirmationExpiresAt": expiresAt,
		},
	})
}

// estimateCustomDistance plans the pickup route when coordinates are
// known. Stops without coordinates contribute nothing; a fully
// address-only errand prices at the minimum fee.
func estimateCustomDistance(req customOrderRequest) float64 {
	if req.DeliveryLat == nil || req.DeliveryLng == nil {
		return 0
	}
	end := geo.Point{Lat: *req.DeliveryLat, Lng: *req.DeliveryLng}

	stops := make([]geofence.StorePoint, 0, len(req.Items))
	for i, item := range req.Items {
		if item.PickupLat == nil || item.PickupLng == nil {
			continue
		}
		stops = append(stops, geofence.StorePoint{
			StoreID: int64(i),
			Point:   geo.Point{Lat: *item.PickupLat, Lng: *item.PickupLng},
		})
	}
	if len(stops) == 0 {
		return 0
	}

	start := stops[0].Point
	route := geofence.PlanRoute(stops[1:], start, end)
	return route.TotalEstimateKm
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// CustomOrderCancel mirrors OrderCancel for the custom table.
func (h *Handler) CustomOrderCancel(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Invalid order id")
		return
	}

	var req cancelRequest
	_ = decodeBody(r, &req)

	snap, derr := h.Orders.CancelByUser(r.Context(), lifecycle.KindCustom, orderID, ac.UserID, req.Reason)
	if derr != nil {
		writeDomainError(w, derr)
		return
	}

	if h.Events != nil {
		h.Events.OrderCancelled(r.Context(), string(lifecycle.KindCustom), orderID, ac.UserID, req.Reason)
	}

	response.Success(w, map[string]any{"id": snap.ID, "status": snap.Status})
}
