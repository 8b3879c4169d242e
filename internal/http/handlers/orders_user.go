package handlers

import (
	"errors"
	"net/http"
	"time"

	"mandoob-dispatch-services/internal/lifecycle"
	"mandoob-dispatch-services/internal/middleware"
	"mandoob-dispatch-services/pkg/response"

	"github.com/jackc/pgx/v5"
)

type orderListItem struct {
	ID                    int64      `json:"id"`
	Status                string     `json:"status"`
	Subtotal              float64    `json:"subtotal"`
	DiscountAmount        float64    `json:"discountAmount"`
	DeliveryFee           float64    `json:"deliveryFee"`
	Total                 float64    `json:"total"`
	CouponCode            *string    `json:"couponCode,omitempty"`
	DeliveryAddress       string     `json:"deliveryAddress"`
	IsImmediate           bool       `json:"isImmediate"`
	DriverID              *int64     `json:"driverId,omitempty"`
	ConfirmationExpiresAt *time.Time `json:"confirmationExpiresAt,omitempty"`
	CancellationReason    *string    `json:"cancellationReason,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
}

func (h *Handler) OrdersList(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	rows, err := h.DB.Query(r.Context(), `
		select id, status, subtotal, discount_amount, delivery_fee, total, coupon_code,
		       delivery_address, is_immediate, driver_id, confirmation_expires_at,
		       cancellation_reason, created_at
		from orders
		where user_id = $1
		order by created_at desc
		limit 100
	`, ac.UserID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "ORDERS_LIST_FAILED", "Could not list orders")
		return
	}
	defer rows.Close()

	orders := make([]orderListItem, 0)
	for rows.Next() {
		var item orderListItem
		if err := rows.Scan(&item.ID, &item.Status, &item.Subtotal, &item.DiscountAmount,
			&item.DeliveryFee, &item.Total, &item.CouponCode, &item.DeliveryAddress,
			&item.IsImmediate, &item.DriverID, &item.ConfirmationExpiresAt,
			&item.CancellationReason, &item.CreatedAt); err != nil {
			response.Error(w, http.StatusInternalServerError, "ORDERS_LIST_FAILED", "Could not list orders")
			return
		}
		orders = append(orders, item)
	}
	response.Success(w, map[string]any{"orders": orders})
}

type orderItemView struct {
	ProductName    string  `json:"productName"`
	VariantDetails *string `json:"variantDetails,omitempty"`
	Quantity       int32   `json:"quantity"`
	UnitPrice      float64 `json:"unitPrice"`
	DiscountAmount float64 `json:"discountAmount"`
	LineTotal      float64 `json:"lineTotal"`
}

func (h *Handler) OrderDetail(w http.ResponseWriter, r *http.Request) {
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

	var item orderListItem
	err = h.DB.QueryRow(r.Context(), `
		select id, status, subtotal, discount_amount, delivery_fee, total, coupon_code,
		       delivery_address, is_immediate, driver_id, confirmation_expires_at,
		       cancellation_reason, created_at
		from orders
		where id = $1 and user_id = $2
	`, orderID, ac.UserID).Scan(&item.ID, &item.Status, &item.Subtotal, &item.DiscountAmount,
		&item.DeliveryFee, &item.Total, &item.CouponCode, &item.DeliveryAddress,
		&item.IsImmediate, &item.DriverID, &item.ConfirmationExpiresAt,
		&item.CancellationReason, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Error(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "ORDER_DETAIL_FAILED", "Could not load order")
		return
	}

	rows, err := h.DB.Query(r.Context(), `
		select product_name, variant_details, quantity, unit_price, discount_amount, line_total
		from order_items where order_id = $1 order by id
	`, orderID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "ORDER_DETAIL_FAILED", "Could not load order items")
		return
	}
	defer rows.Close()

	items := make([]orderItemView, 0)
	for rows.Next() {
		var v orderItemView
		if err := rows.Scan(&v.ProductName, &v.VariantDetails, &v.Quantity, &v.UnitPrice, &v.DiscountAmount, &v.LineTotal); err != nil {
			response.Error(w, http.StatusInternalServerError, "ORDER_DETAIL_FAILED", "Could not load order items")
			return
		}
		items = append(items, v)
	}

	response.Success(w, map[string]any{"order": item, "items": items})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// OrderCancel lets the owning user cancel an order that no driver has
// claimed yet. Works for both regular and custom orders via the kind
// query parameter.
func (h *Handler) OrderCancel(w http.ResponseWriter, r *http.Request) {
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
	kind, ok := lifecycle.ParseKind(r.URL.Query().Get("kind"))
	if !ok {
		response.Error(w, http.StatusBadRequest, "INVALID_KIND", "Unknown order kind")
		return
	}

	var req cancelRequest
	_ = decodeBody(r, &req)

	snap, derr := h.Orders.CancelByUser(r.Context(), kind, orderID, ac.UserID, req.Reason)
	if derr != nil {
		writeDomainError(w, derr)
		return
	}

	if h.Events != nil {
		h.Events.OrderCancelled(r.Context(), string(kind), orderID, ac.UserID, req.Reason)
	}

	response.Success(w, map[string]any{"id": snap.ID, "status": snap.Status})
}

func (h *Handler) NotificationsList(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	rows, err := h.DB.Query(r.Context(), `
		select id, type, payload, read_at, created_at
		from notifications
		where recipient_kind = 'user' and recipient_id = $1
		order by created_at desc
		limit 50
	`, ac.UserID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "NOTIFICATIONS_FAILED", "Could not list notifications")
		return
	}
	defer rows.Close()

	type notification struct {
		ID        int64      `json:"id"`
		Type      string     `json:"type"`
		Payload   any        `json:"payload"`
		ReadAt    *time.Time `json:"readAt,omitempty"`
		CreatedAt time.Time  `json:"createdAt"`
	}
	out := make([]notification, 0)
	for rows.Next() {
		var n notification
		var raw []byte
		if err := rows.Scan(&n.ID, &n.Type, &raw, &n.ReadAt, &n.CreatedAt); err != nil {
			response.Error(w, http.StatusInternalServerError, "NOTIFICATIONS_FAILED", "Could not list notifications")
			return
		}
		n.Payload = jsonRaw(raw)
		out = append(out, n)
	}
	response.Success(w, map[string]any{"notifications": out})
}
