package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"mandoob-dispatch-services/internal/config"
	"mandoob-dispatch-services/internal/coupon"
	"mandoob-dispatch-services/internal/domain"
	"mandoob-dispatch-services/internal/geofence"
	"mandoob-dispatch-services/internal/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Notifier receives order-created events after the transaction commits.
// Notification failure must never roll back an order, so implementations
// log and swallow their own errors.
type Notifier interface {
	OrderCreated(ctx context.Context, orderID, userID int64, storeIDs []int64, total float64)
}

// Coordinator converts a user's active cart into an immutable order in
// one transaction: everything from validation through stock decrement
// either lands together or not at all.
type Coordinator struct {
	DB       *pgxpool.Pool
	Geofence *geofence.Engine
	Cfg      config.Config
	Logger   *zap.Logger
	Notifier Notifier
}

func New(db *pgxpool.Pool, gf *geofence.Engine, cfg config.Config, logger *zap.Logger, notifier Notifier) *Coordinator {
	return &Coordinator{DB: db, Geofence: gf, Cfg: cfg, Logger: logger, Notifier: notifier}
}

type Input struct {
	UserID              int64
	CouponCode          string
	DeliveryAddress     string
	DeliveryLat         *float64
	DeliveryLng         *float64
	DeliveryFee         float64
	IsImmediate         bool
	RequestedDeliveryAt *time.Time
}

type Result struct {
	OrderID        int64     `json:"orderId"`
	Status         string    `json:"status"`
	Subtotal       float64   `json:"subtotal"`
	DiscountAmount float64   `json:"discountAmount"`
	DeliveryFee    float64   `json:"deliveryFee"`
	Total          float64   `json:"total"`
	CouponCode     string    `json:"couponCode,omitempty"`
	ExpiresAt      time.Time `json:"confirmationExpiresAt"`
	ItemCount      int       `json:"itemCount"`
}

type cartLine struct {
	CartItemID     int64
	ProductID      int64
	VariantID      *int64
	StoreID        int64
	Quantity       int32
	UnitPrice      float64
	ProductName    string
	ProductStock   int32
	IsAccepted     bool
	VariantName    *string
	VariantStock   *int32
	VariantActive  *bool
	AllocatedDisc  float64
}

// validateLine enforces per-item rules before any mutation: the product
// is still accepted, the variant (if any) is still active, and enough
// stock exists for the requested quantity.
func validateLine(line cartLine) *domain.Error {
	if !line.IsAccepted {
		return domain.Validation("PRODUCT_UNAVAILABLE", "Product is no longer available: "+line.ProductName,
			map[string]any{"productId": line.ProductID})
	}
	if line.Quantity <= 0 {
		return domain.Validation("INVALID_QUANTITY", "Item quantity must be positive",
			map[string]any{"productId": line.ProductID})
	}
	if line.VariantID != nil {
		if line.VariantActive == nil || !*line.VariantActive {
			return domain.Validation("VARIANT_UNAVAILABLE", "Product variant is no longer available: "+line.ProductName,
				map[string]any{"productId": line.ProductID, "variantId": *line.VariantID})
		}
		if line.VariantStock == nil || *line.VariantStock < line.Quantity {
			return insufficientStock(line)
		}
		return nil
	}
	if line.ProductStock < line.Quantity {
		return insufficientStock(line)
	}
	return nil
}

func insufficientStock(line cartLine) *domain.Error {
	return domain.Validation("INSUFFICIENT_STOCK", "Not enough stock for "+line.ProductName,
		map[string]any{"productId": line.ProductID, "requested": line.Quantity})
}

// totals sums the lines. Rounding happens once here, at the edge of
// persistence, so per-line rounding errors cannot compound.
func totals(lines []cartLine, deliveryFee float64) (subtotal, discount, total float64) {
	for _, line := range lines {
		subtotal += line.UnitPrice * float64(line.Quantity)
		discount += line.AllocatedDisc
	}
	subtotal = utils.Round2(subtotal)
	discount = utils.Round2(discount)
	total = utils.Round2(subtotal - discount + deliveryFee)
	if total < 0 {
		total = 0
	}
	return subtotal, discount, total
}

func distinctStores(lines []cartLine) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	out := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.StoreID]; ok {
			continue
		}
		seen[line.StoreID] = struct{}{}
		out = append(out, line.StoreID)
	}
	return out
}

// Checkout runs the whole cart-to-order conversion. Any validation
// failure aborts before a single row is mutated.
func (c *Coordinator) Checkout(ctx context.Context, input Input) (*Result, *domain.Error) {
	if strings.TrimSpace(input.DeliveryAddress) == "" {
		return nil, domain.Validation("DELIVERY_ADDRESS_REQUIRED", "Delivery address is required", nil)
	}
	if input.DeliveryFee < 0 {
		return nil, domain.Validation("INVALID_DELIVERY_FEE", "Delivery fee cannot be negative", nil)
	}

	now := time.Now()

	tx, err := c.DB.Begin(ctx)
	if err != nil {
		return nil, domain.System("TX_BEGIN_FAILED", "Could not start checkout transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cartID, derr := c.loadActiveCart(ctx, tx, input.UserID)
	if derr != nil {
		return nil, derr
	}

	lines, derr := c.loadCartLines(ctx, tx, cartID)
	if derr != nil {
		return nil, derr
	}
	if len(lines) == 0 {
		return nil, domain.Validation("CART_EMPTY", "Cart has no items", nil)
	}

	for _, line := range lines {
		if verr := validateLine(line); verr != nil {
			return nil, verr
		}
	}

	storeIDs := distinctStores(lines)
	if len(storeIDs) > 1 {
		spread, err := c.Geofence.ValidateStoresDistance(ctx, storeIDs)
		if err != nil {
			return nil, domain.System("STORES_DISTANCE_FAILED", "Could not validate store distances")
		}
		if !spread.Valid {
			return nil, domain.Validation("stores_distance_exceeded", "Stores in the cart are too far apart",
				map[string]any{
					"maxDistanceKm": spread.MaxDistanceKm,
					"limitKm":       c.Cfg.StoresMaxSpreadKm,
					"storeAId":      spread.StoreAID,
					"storeBId":      spread.StoreBID,
				})
		}
	}

	var appliedCoupon *coupon.Coupon
	couponCode := strings.TrimSpace(input.CouponCode)
	if couponCode != "" {
		appliedCoupon, derr = coupon.Lock(ctx, tx, couponCode, input.UserID, now)
		if derr != nil {
			return nil, derr
		}

		lineInputs := make([]coupon.LineInput, len(lines))
		for i, line := range lines {
			lineInputs[i] = coupon.LineInput{ProductID: line.ProductID, UnitPrice: line.UnitPrice, Quantity: line.Quantity}
		}
		discounts, derr := appliedCoupon.Allocate(lineInputs)
		if derr != nil {
			return nil, derr
		}
		for i := range lines {
			lines[i].AllocatedDisc = discounts[i]
		}
	}

	subtotal, discount, total := totals(lines, input.DeliveryFee)
	expiresAt := now.Add(c.Cfg.ConfirmationWindow)

	var couponID *int64
	var couponCodeSnapshot *string
	if appliedCoupon != nil {
		couponID = &appliedCoupon.ID
		couponCodeSnapshot = &appliedCoupon.Code
	}

	var orderID int64
	err = tx.QueryRow(ctx, `
		insert into orders (
			user_id, coupon_id, coupon_code, subtotal, discount_amount, delivery_fee, total,
			status, delivery_address, delivery_lat, delivery_lng,
			is_immediate, requested_delivery_at, confirmation_expires_at
		) values ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9, $10, $11, $12, $13)
		returning id
	`, input.UserID, couponID, couponCodeSnapshot, subtotal, discount, utils.Round2(input.DeliveryFee), total,
		input.DeliveryAddress, input.DeliveryLat, input.DeliveryLng,
		input.IsImmediate, input.RequestedDeliveryAt, expiresAt).Scan(&orderID)
	if err != nil {
		return nil, domain.System("ORDER_CREATE_FAILED", "Could not create order")
	}

	for _, line := range lines {
		lineTotal := utils.Round2(line.UnitPrice*float64(line.Quantity) - line.AllocatedDisc)
		if lineTotal < 0 {
			lineTotal = 0
		}
		_, err := tx.Exec(ctx, `
			insert into order_items (
				order_id, store_id, product_id, variant_id,
				product_name, variant_details, quantity, unit_price, discount_amount, line_total
			) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, orderID, line.StoreID, line.ProductID, line.VariantID,
			line.ProductName, line.VariantName, line.Quantity, line.UnitPrice,
			utils.Round2(line.AllocatedDisc), lineTotal)
		if err != nil {
			return nil, domain.System("ORDER_ITEM_CREATE_FAILED", "Could not create order items")
		}
	}

	if appliedCoupon != nil {
		if derr := coupon.RecordUsage(ctx, tx, appliedCoupon.ID, input.UserID, orderID); derr != nil {
			return nil, derr
		}
	}

	// Stock decrement as a conditional update: the quantity guard in the
	// WHERE clause closes the overselling race between concurrent
	// checkouts without a row lock.
	for _, line := range lines {
		var tag string
		if line.VariantID != nil {
			err = tx.QueryRow(ctx, `
				update product_variants
				set stock_quantity = stock_quantity - $1
				where id = $2 and stock_quantity >= $1
				returning 'ok'
			`, line.Quantity, *line.VariantID).Scan(&tag)
		} else {
			err = tx.QueryRow(ctx, `
				update products
				set quantity = quantity - $1
				where id = $2 and quantity >= $1
				returning 'ok'
			`, line.Quantity, line.ProductID).Scan(&tag)
		}
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, insufficientStock(line)
			}
			return nil, domain.System("STOCK_DECREMENT_FAILED", "Could not decrement stock")
		}
	}

	// Carts are completed, never deleted: they stay for audit history.
	if _, err := tx.Exec(ctx, `
		update carts set status = 'completed', updated_at = now() where id = $1
	`, cartID); err != nil {
		return nil, domain.System("CART_COMPLETE_FAILED", "Could not complete cart")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.System("TX_COMMIT_FAILED", "Could not commit checkout transaction")
	}

	if c.Notifier != nil {
		c.Notifier.OrderCreated(ctx, orderID, input.UserID, storeIDs, total)
	}

	result := &Result{
		OrderID:        orderID,
		Status:         "pending",
		Subtotal:       subtotal,
		DiscountAmount: discount,
		DeliveryFee:    utils.Round2(input.DeliveryFee),
		Total:          total,
		ExpiresAt:      expiresAt,
		ItemCount:      len(lines),
	}
	if appliedCoupon != nil {
		result.CouponCode = appliedCoupon.Code
	}
	return result, nil
}

func (c *Coordinator) loadActiveCart(ctx context.Context, tx pgx.Tx, userID int64) (int64, *domain.Error) {
	var cartID int64
	err := tx.QueryRow(ctx, `
		select id from carts
		where user_id = $1 and status = 'active'
		order by created_at desc
		limit 1
	`, userID).Scan(&cartID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.Validation("CART_EMPTY", "No active cart to check out", nil)
		}
		return 0, domain.System("CART_LOAD_FAILED", "Could not load cart")
	}
	return cartID, nil
}

func (c *Coordinator) loadCartLines(ctx context.Context, tx pgx.Tx, cartID int64) ([]cartLine, *domain.Error) {
	rows, err := tx.Query(ctx, `
		select ci.id, ci.product_id, ci.variant_id, p.store_id, ci.quantity, ci.unit_price,
		       p.name, p.quantity, p.is_accepted,
		       v.name, v.stock_quantity, v.is_active
		from cart_items ci
		join products p on p.id = ci.product_id
		left join product_variants v on v.id = ci.variant_id
		where ci.cart_id = $1
		order by ci.id
	`, cartID)
	if err != nil {
		return nil, domain.System("CART_LOAD_FAILED", "Could not load cart items")
	}
	defer rows.Close()

	lines := make([]cartLine, 0, 8)
	for rows.Next() {
		var line cartLine
		if err := rows.Scan(&line.CartItemID, &line.ProductID, &line.VariantID, &line.StoreID,
			&line.Quantity, &line.UnitPrice, &line.ProductName, &line.ProductStock, &line.IsAccepted,
			&line.VariantName, &line.VariantStock, &line.VariantActive); err != nil {
			return nil, domain.System("CART_LOAD_FAILED", "Could not read cart items")
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.System("CART_LOAD_FAILED", "Could not read cart items")
	}
	return lines, nil
}

// PriceChanges reports cart items whose captured unit price has drifted
// from the product's current price.
type PriceChange struct {
	ProductID    int64   `json:"productId"`
	ProductName  string  `json:"productName"`
	CapturedAt   float64 `json:"capturedPrice"`
	CurrentPrice float64 `json:"currentPrice"`
}

func (c *Coordinator) PriceChanges(ctx context.Context, userID int64) ([]PriceChange, *domain.Error) {
	rows, err := c.DB.Query(ctx, `
		select ci.product_id, p.name, ci.unit_price, p.price
		from cart_items ci
		join carts ca on ca.id = ci.cart_id
		join products p on p.id = ci.product_id
		where ca.user_id = $1 and ca.status = 'active' and ci.unit_price <> p.price
	`, userID)
	if err != nil {
		return nil, domain.System("CART_LOAD_FAILED", "Could not check cart prices")
	}
	defer rows.Close()

	changes := make([]PriceChange, 0)
	for rows.Next() {
		var pc PriceChange
		if err := rows.Scan(&pc.ProductID, &pc.ProductName, &pc.CapturedAt, &pc.CurrentPrice); err != nil {
			return nil, domain.System("CART_LOAD_FAILED", "Could not check cart prices")
		}
		changes = append(changes, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.System("CART_LOAD_FAILED", "Could not check cart prices")
	}
	return changes, nil
}
