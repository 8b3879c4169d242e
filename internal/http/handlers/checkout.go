package handlers

import (
	"net/http"
	"time"

	"mandoob-dispatch-services/internal/checkout"
	"mandoob-dispatch-services/internal/middleware"
	"mandoob-dispatch-services/pkg/response"

	"go.uber.org/zap"
)

type checkoutRequest struct {
	CouponCode          string     `json:"couponCode"`
	DeliveryAddress     string     `json:"deliveryAddress"`
	DeliveryLat         *float64   `json:"deliveryLat"`
	DeliveryLng         *float64   `json:"deliveryLng"`
	DistanceKm          float64    `json:"distanceKm"`
	IsImmediate         *bool      `json:"isImmediate"`
	RequestedDeliveryAt *time.Time `json:"requestedDeliveryAt"`
}

// CheckoutCreate converts the caller's active cart into an order. The
// delivery fee is always priced server-side from the submitted distance
// so the client cannot forge it.
func (h *Handler) CheckoutCreate(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	fee, derr := h.Geofence.QuoteDeliveryFee(req.DistanceKm)
	if derr != nil {
		writeDomainError(w, derr)
		return
	}

	isImmediate := true
	if req.IsImmediate != nil {
		isImmediate = *req.IsImmediate
	}

	result, derr := h.Checkout.Checkout(r.Context(), checkout.Input{
		UserID:              ac.UserID,
		CouponCode:          req.CouponCode,
		DeliveryAddress:     req.DeliveryAddress,
		DeliveryLat:         req.DeliveryLat,
		DeliveryLng:         req.DeliveryLng,
		DeliveryFee:         fee,
		IsImmediate:         isImmediate,
		RequestedDeliveryAt: req.RequestedDeliveryAt,
	})
	if derr != nil {
		writeDomainError(w, derr)
		return
	}

	h.Logger.Info("order created",
		zap.Int64("orderId", result.OrderID),
		zap.Int64("userId", ac.UserID),
		zap.Float64("total", result.Total))

	response.JSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    result,
	})
}

func (h *Handler) CartPriceChanges(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	changes, derr := h.Checkout.PriceChanges(r.Context(), ac.UserID)
	if derr != nil {
		writeDomainError(w, derr)
		return
	}
	response.Success(w, map[string]any{"priceChanges": changes})
}
