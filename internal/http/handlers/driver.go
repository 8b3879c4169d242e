package handlers

import (
	"errors"
	"net/http"
	"time"

	"mandoob-dispatch-services/internal/geo"
	"mandoob-dispatch-services/internal/geofence"
	"mandoob-dispatch-services/internal/lifecycle"
	"mandoob-dispatch-services/internal/middleware"
	"mandoob-dispatch-services/internal/utils"
	"mandoob-dispatch-services/pkg/response"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

func (h *Handler) driverFromContext(w http.ResponseWriter, r *http.Request) (int64, bool) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok || ac.DriverID == 0 {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Driver authentication required")
		return 0, false
	}
	return ac.DriverID, true
}

func (h *Handler) loadDriver(r *http.Request, driverID int64) (geofence.Driver, error) {
	var d geofence.Driver
	var wallet pgtype.Numeric
	err := h.DB.QueryRow(r.Context(), `
		select id, name, vehicle_type, current_lat, current_lng,
		       is_online, is_active, last_activity_at, wallet_balance
		from drivers where id = $1
	`, driverID).Scan(&d.ID, &d.Name, &d.VehicleType, &d.Lat, &d.Lng,
		&d.IsOnline, &d.IsActive, &d.LastActivityAt, &wallet)
	d.WalletBalance = utils.NumericToFloat64(wallet)
	return d, err
}

// DriverAvailableOrders is the pull variant of the dispatch feed: every
// pending order inside the driver's current radius ring.
func (h *Handler) DriverAvailableOrders(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.driverFromContext(w, r)
	if !ok {
		return
	}

	driver, err := h.loadDriver(r, driverID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "DRIVER_LOAD_FAILED", "Could not load driver")
		return
	}

	orders, err := h.Geofence.AvailableOrdersForDriver(r.Context(), driver, time.Now())
	if err != nil {
		h.Logger.Error("available orders query failed", zap.Int64("driverId", driverID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DISPATCH_FEED_FAILED", "Could not load available orders")
		return
	}
	response.Success(w, map[string]any{"orders": orders})
}

func orderKindFromQuery(r *http.Request) (lifecycle.Kind, bool) {
	return lifecycle.ParseKind(r.URL.Query().Get("kind"))
}

func (h *Handler) orderOwner(r *http.Request, kind lifecycle.Kind, orderID int64) int64 {
	var userID int64
	query := `select user_id from orders where id = $1`
	if kind == lifecycle.KindCustom {
		query = `select user_id from custom_orders where id = $1`
	}
	if err := h.DB.QueryRow(r.Context(), query, orderID).Scan(&userID); err != nil {
		return 0
	}
	return userID
}

// DriverAcceptOrder claims a pending order for the calling driver. The
// claim itself is a compare-and-set in the coordinator, so two drivers
// racing for the same order resolves to exactly one winner.
func (h *Handler) DriverAcceptOrder(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.driverFromContext(w, r)
	if !ok {
		return
	}
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Invalid order id")
		return
	}
	kind, ok := orderKindFromQuery(r)
	if !ok {
		response.Error(w, http.StatusBadRequest, "INVALID_KIND", "Unknown order kind")
		return
	}

	snap, derr := h.Assignment.AcceptOrder(r.Context(), kind, orderID, driverID, time.Now())
	if derr != nil {
		writeDomainError(w, derr)
		return
	}

	if h.Events != nil {
		if userID := h.orderOwner(r, kind, orderID); userID != 0 {
			h.Events.OrderAssigned(r.Context(), string(kind), orderID, userID, driverID)
		}
	}

	h.Logger.Info("order accepted",
		zap.String("kind", string(kind)),
		zap.Int64("orderId", orderID),
		zap.Int64("driverId", driverID))

	response.Success(w, map[string]any{"id": snap.ID, "status": snap.Status})
}

// DriverDeliverOrder marks a shipping order delivered and settles
// profit: the platform's cut leaves the driver's wallet and the ledger
// rows are written.
func (h *Handler) DriverDeliverOrder(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.driverFromContext(w, r)
	if !ok {
		return
	}
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Invalid order id")
		return
	}
	kind, ok := orderKindFromQuery(r)
	if !ok {
		response.Error(w, http.StatusBadRequest, "INVALID_KIND", "Unknown order kind")
		return
	}

	snap, derr := h.Orders.MarkDelivered(r.Context(), kind, orderID, driverID)
	if derr != nil {
		writeDomainError(w, derr)
		return
	}

	var fee float64
	feeQuery := `select delivery_fee from orders where id = $1`
	if kind == lifecycle.KindCustom {
		feeQuery = `select delivery_fee from custom_orders where id = $1`
	}
	if err := h.DB.QueryRow(r.Context(), feeQuery, orderID).Scan(&fee); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		h.Logger.Error("delivery fee lookup failed", zap.Int64("orderId", orderID), zap.Error(err))
	}

	profitAmount, derr := h.Profit.ProcessDriverDeliveryProfit(r.Context(), driverID, string(kind), orderID, fee)
	if derr != nil {
		// Delivery already stands; settlement failure is logged, not
		// returned, so the driver is not blocked on an accounting retry.
		h.Logger.Error("driver profit settlement failed",
			zap.Int64("orderId", orderID),
			zap.Int64("driverId", driverID),
			zap.String("code", derr.Code))
	}

	if kind == lifecycle.KindOrder {
		h.settleStoreProfits(r, orderID)
	}

	if h.Events != nil {
		if userID := h.orderOwner(r, kind, orderID); userID != 0 {
			h.Events.OrderDelivered(r.Context(), string(kind), orderID, userID, driverID)
		}
	}

	response.Success(w, map[string]any{
		"id":             snap.ID,
		"status":         snap.Status,
		"platformProfit": profitAmount,
	})
}

// settleStoreProfits writes the per-store ledger rows for a delivered
// regular order. Store profit is ledger-only; no wallet moves.
func (h *Handler) settleStoreProfits(r *http.Request, orderID int64) {
	rows, err := h.DB.Query(r.Context(), `
		select store_id, sum(line_total)
		from order_items
		where order_id = $1
		group by store_id
	`, orderID)
	if err != nil {
		h.Logger.Error("store profit query failed", zap.Int64("orderId", orderID), zap.Error(err))
		return
	}
	defer rows.Close()

	type storeShare struct {
		storeID  int64
		subtotal float64
	}
	shares := make([]storeShare, 0, 4)
	for rows.Next() {
		var s storeShare
		if err := rows.Scan(&s.storeID, &s.subtotal); err != nil {
			h.Logger.Error("store profit scan failed", zap.Int64("orderId", orderID), zap.Error(err))
			return
		}
		shares = append(shares, s)
	}

	for _, s := range shares {
		if _, derr := h.Profit.ProcessStoreOrderProfit(r.Context(), s.storeID, orderID, s.subtotal); derr != nil {
			h.Logger.Error("store profit settlement failed",
				zap.Int64("orderId", orderID),
				zap.Int64("storeId", s.storeID),
				zap.String("code", derr.Code))
		}
	}
}

// DriverCancelDelivery backs a driver out of a scheduled custom
// delivery. Immediate deliveries cannot be dropped this way.
func (h *Handler) DriverCancelDelivery(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.driverFromContext(w, r)
	if !ok {
		return
	}
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ORDER_ID", "Invalid order id")
		return
	}

	var req cancelRequest
	_ = decodeBody(r, &req)

	snap, derr := h.Orders.CancelDeliveryByDriver(r.Context(), lifecycle.KindCustom, orderID, driverID, req.Reason)
	if derr != nil {
		writeDomainError(w, derr)
		return
	}

	if h.Events != nil {
		if userID := h.orderOwner(r, lifecycle.KindCustom, orderID); userID != 0 {
			h.Events.DeliveryCancelled(r.Context(), orderID, userID, driverID, req.Reason)
		}
	}

	response.Success(w, map[string]any{"id": snap.ID, "status": snap.Status})
}

type driverLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *Handler) DriverUpdateLocation(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.driverFromContext(w, r)
	if !ok {
		return
	}

	var req driverLocationRequest
	if err := decodeBody(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if !geo.ValidCoordinate(req.Lat, req.Lng) {
		response.Error(w, http.StatusBadRequest, "INVALID_COORDINATES", "Coordinates out of range")
		return
	}

	_, err := h.DB.Exec(r.Context(), `
		update drivers
		set current_lat = $1, current_lng = $2, last_activity_at = now()
		where id = $3
	`, req.Lat, req.Lng, driverID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "LOCATION_UPDATE_FAILED", "Could not update location")
		return
	}
	response.Success(w, map[string]any{"lat": req.Lat, "lng": req.Lng})
}

type driverStatusRequest struct {
	IsOnline bool `json:"isOnline"`
}

func (h *Handler) DriverUpdateStatus(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.driverFromContext(w, r)
	if !ok {
		return
	}

	var req driverStatusRequest
	if err := decodeBody(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	_, err := h.DB.Exec(r.Context(), `
		update drivers set is_online = $1, last_activity_at = now() where id = $2
	`, req.IsOnline, driverID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "STATUS_UPDATE_FAILED", "Could not update status")
		return
	}
	response.Success(w, map[string]any{"isOnline": req.IsOnline})
}

// DriverActiveOrders lists the deliveries the driver currently holds.
func (h *Handler) DriverActiveOrders(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.driverFromContext(w, r)
	if !ok {
		return
	}

	type activeOrder struct {
		Kind            string     `json:"kind"`
		ID              int64      `json:"id"`
		Status          string     `json:"status"`
		DeliveryFee     float64    `json:"deliveryFee"`
		DeliveryAddress string     `json:"deliveryAddress"`
		IsImmediate     bool       `json:"isImmediate"`
		AssignedAt      *time.Time `json:"assignedAt,omitempty"`
	}

	out := make([]activeOrder, 0)
	rows, err := h.DB.Query(r.Context(), `
		select 'order', id, status, delivery_fee, delivery_address, is_immediate, driver_assigned_at
		from orders
		where driver_id = $1 and status = 'shipping'
		union all
		select 'custom_order', id, status, delivery_fee, delivery_address, is_immediate, driver_assigned_at
		from custom_orders
		where driver_id = $1 and status = 'shipping'
	`, driverID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "ACTIVE_ORDERS_FAILED", "Could not list active orders")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var o activeOrder
		if err := rows.Scan(&o.Kind, &o.ID, &o.Status, &o.DeliveryFee, &o.DeliveryAddress, &o.IsImmediate, &o.AssignedAt); err != nil {
			response.Error(w, http.StatusInternalServerError, "ACTIVE_ORDERS_FAILED", "Could not list active orders")
			return
		}
		out = append(out, o)
	}
	response.Success(w, map[string]any{"orders": out})
}
