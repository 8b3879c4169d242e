package handlers

import (
	"net/http"
	"time"

	"mandoob-dispatch-services/internal/lifecycle"
	"mandoob-dispatch-services/pkg/response"

	"go.uber.org/zap"
)

// AdminOrderRetry reopens a cancelled order: status back to pending,
// driver cleared, a fresh confirmation window started.
func (h *Handler) AdminOrderRetry(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Invalid order id")
		return
	}
	kind, ok := lifecycle.ParseKind(r.URL.Query().Get("kind"))
	if !ok {
		response.Error(w, http.StatusBadRequest, "INVALID_KIND", "Unknown order kind")
		return
	}

	snap, derr := h.Orders.RetryDelivery(r.Context(), kind, orderID, time.Now())
	if derr != nil {
		writeDomainError(w, derr)
		return
	}

	if h.Events != nil {
		if userID := h.orderOwner(r, kind, orderID); userID != 0 {
			h.Events.OrderResent(r.Context(), string(kind), orderID, userID)
		}
	}

	h.Logger.Info("order retried", zap.String("kind", string(kind)), zap.Int64("orderId", orderID))
	response.Success(w, map[string]any{"id": snap.ID, "status": snap.Status})
}

// AdminOrderResend extends the confirmation window of a pending order
// that expired without any driver claiming it.
func (h *Handler) AdminOrderResend(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Invalid order id")
		return
	}
	kind, ok := lifecycle.ParseKind(r.URL.Query().Get("kind"))
	if !ok {
		response.Error(w, http.StatusBadRequest, "INVALID_KIND", "Unknown order kind")
		return
	}

	snap, derr := h.Orders.ResendToDrivers(r.Context(), kind, orderID, time.Now())
	if derr != nil {
		writeDomainError(w, derr)
		return
	}

	if h.Events != nil {
		if userID := h.orderOwner(r, kind, orderID); userID != 0 {
			h.Events.OrderResent(r.Context(), string(kind), orderID, userID)
		}
	}

	response.Success(w, map[string]any{"id": snap.ID, "status": snap.Status})
}

func (h *Handler) AdminOrderCancel(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Invalid order id")
		return
	}
	kind, ok := lifecycle.ParseKind(r.URL.Query().Get("kind"))
	if !ok {
		response.Error(w, http.StatusBadRequest, "INVALID_KIND", "Unknown order kind")
		return
	}

	var req cancelRequest
	_ = decodeBody(r, &req)

	snap, derr := h.Orders.AdminCancel(r.Context(), kind, orderID, req.Reason)
	if derr != nil {
		writeDomainError(w, derr)
		return
	}

	if h.Events != nil {
		if userID := h.orderOwner(r, kind, orderID); userID != 0 {
			h.Events.OrderCancelled(r.Context(), string(kind), orderID, userID, req.Reason)
		}
	}
	// Tell the assigned driver their job was pulled; the poll feed only
	// reaches drivers still browsing pending orders.
	if h.Feed != nil && snap.DriverID != nil {
		h.Feed.NotifyDriver(*snap.DriverID, map[string]any{
			"type":      "dispatch.remove",
			"orderKind": string(kind),
			"orderId":   orderID,
			"reason":    req.Reason,
		})
	}

	h.Logger.Info("order cancelled by admin", zap.String("kind", string(kind)), zap.Int64("orderId", orderID))
	response.Success(w, map[string]any{"id": snap.ID, "status": snap.Status})
}

func (h *Handler) AdminStatistics(w http.ResponseWriter, r *http.Request) {
	stats, derr := h.Profit.Statistics(r.Context())
	if derr != nil {
		writeDomainError(w, derr)
		return
	}
	response.Success(w, stats)
}
