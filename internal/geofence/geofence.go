package geofence

import (
	"context"
	"time"

	"mandoob-dispatch-services/internal/config"
	"mandoob-dispatch-services/internal/domain"
	"mandoob-dispatch-services/internal/geo"
	"mandoob-dispatch-services/internal/profit"
	"mandoob-dispatch-services/internal/utils"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Engine decides which drivers may see or accept an order at a given
// moment, and which orders a given driver may see.
type Engine struct {
	DB  *pgxpool.Pool
	Cfg config.Config
}

func New(db *pgxpool.Pool, cfg config.Config) *Engine {
	return &Engine{DB: db, Cfg: cfg}
}

type Driver struct {
	ID             int64
	Name           string
	VehicleType    string
	Lat            *float64
	Lng            *float64
	IsOnline       bool
	IsActive       bool
	LastActivityAt *time.Time
	WalletBalance  float64
}

// IsRecentlyActive reports whether the driver counts as active for
// dispatch: flagged active, online, and heard from within the window.
func IsRecentlyActive(d Driver, now time.Time, window time.Duration) bool {
	if !d.IsActive || !d.IsOnline {
		return false
	}
	if d.LastActivityAt == nil {
		return false
	}
	return now.Sub(*d.LastActivityAt) <= window
}

// InRadius requires known coordinates; a driver without a position is
// never inside any ring.
func InRadius(d Driver, center geo.Point, radiusKm float64) bool {
	if d.Lat == nil || d.Lng == nil {
		return false
	}
	return geo.WithinRadiusKm(*d.Lat, *d.Lng, center.Lat, center.Lng, radiusKm)
}

type orderSnapshot struct {
	ID          int64
	CreatedAt   time.Time
	IsImmediate bool
	DeliveryFee float64
	DeliveryLat *float64
	DeliveryLng *float64
}

// OrderCentroid averages the distinct store coordinates behind the order's
// line items and falls back to the delivery point when no store has a
// known position.
func (e *Engine) OrderCentroid(ctx context.Context, orderID int64) (geo.Point, bool, error) {
	rows, err := e.DB.Query(ctx, `
		select distinct s.id, s.lat, s.lng
		from order_items oi
		join stores s on s.id = oi.store_id
		where oi.order_id = $1 and s.lat is not null and s.lng is not null
	`, orderID)
	if err != nil {
		return geo.Point{}, false, err
	}
	defer rows.Close()

	points := make([]geo.Point, 0, 4)
	for rows.Next() {
		var storeID int64
		var lat, lng float64
		if err := rows.Scan(&storeID, &lat, &lng); err != nil {
			return geo.Point{}, false, err
		}
		points = append(points, geo.Point{Lat: lat, Lng: lng})
	}
	if err := rows.Err(); err != nil {
		return geo.Point{}, false, err
	}

	if c, ok := geo.Centroid(points); ok {
		return c, true, nil
	}

	var deliveryLat, deliveryLng *float64
	if err := e.DB.QueryRow(ctx, `select delivery_lat, delivery_lng from orders where id = $1`, orderID).
		Scan(&deliveryLat, &deliveryLng); err != nil {
		return geo.Point{}, false, err
	}
	if deliveryLat == nil || deliveryLng == nil {
		return geo.Point{}, false, nil
	}
	return geo.Point{Lat: *deliveryLat, Lng: *deliveryLng}, true, nil
}

// CustomOrderCentroid averages every pickup coordinate plus the delivery
// coordinate.
func (e *Engine) CustomOrderCentroid(ctx context.Context, customOrderID int64) (geo.Point, bool, error) {
	rows, err := e.DB.Query(ctx, `
		select pickup_lat, pickup_lng
		from custom_order_items
		where custom_order_id = $1 and pickup_lat is not null and pickup_lng is not null
		order by order_index
	`, customOrderID)
	if err != nil {
		return geo.Point{}, false, err
	}
	defer rows.Close()

	points := make([]geo.Point, 0, 4)
	for rows.Next() {
		var lat, lng float64
		if err := rows.Scan(&lat, &lng); err != nil {
			return geo.Point{}, false, err
		}
		points = append(points, geo.Point{Lat: lat, Lng: lng})
	}
	if err := rows.Err(); err != nil {
		return geo.Point{}, false, err
	}

	var deliveryLat, deliveryLng *float64
	if err := e.DB.QueryRow(ctx, `select delivery_lat, delivery_lng from custom_orders where id = $1`, customOrderID).
		Scan(&deliveryLat, &deliveryLng); err != nil {
		return geo.Point{}, false, err
	}
	if deliveryLat != nil && deliveryLng != nil {
		points = append(points, geo.Point{Lat: *deliveryLat, Lng: *deliveryLng})
	}

	c, ok := geo.Centroid(points)
	return c, ok, nil
}

// EligibleDriversForOrder intersects active drivers, drivers inside the
// order's current ring, and drivers passing the order's immediate or
// scheduled eligibility rule.
func (e *Engine) EligibleDriversForOrder(ctx context.Context, orderID int64, now time.Time) ([]Driver, error) {
	var snap orderSnapshot
	err := e.DB.QueryRow(ctx, `
		select id, created_at, is_immediate, delivery_fee, delivery_lat, delivery_lng
		from orders where id = $1
	`, orderID).Scan(&snap.ID, &snap.CreatedAt, &snap.IsImmediate, &snap.DeliveryFee, &snap.DeliveryLat, &snap.DeliveryLng)
	if err != nil {
		return nil, err
	}

	center, ok, err := e.OrderCentroid(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	radius := CurrentRadiusKm(snap.CreatedAt, now)

	candidates, err := e.loadCandidateDrivers(ctx, now)
	if err != nil {
		return nil, err
	}

	eligible := make([]Driver, 0, len(candidates))
	for _, d := range candidates {
		if !InRadius(d, center, radius) {
			continue
		}
		ok, err := e.DriverEligibleForLoad(ctx, d, snap.IsImmediate, snap.DeliveryFee)
		if err != nil {
			return nil, err
		}
		if ok {
			eligible = append(eligible, d)
		}
	}
	return eligible, nil
}

// DriverEligibleForLoad applies the per-order workload rule: an immediate
// order requires an otherwise idle driver whose wallet can cover the
// platform's cut, a scheduled order allows a few concurrent assignments.
func (e *Engine) DriverEligibleForLoad(ctx context.Context, d Driver, isImmediate bool, deliveryFee float64) (bool, error) {
	if isImmediate {
		count, err := e.assignmentCount(ctx, d.ID, true)
		if err != nil {
			return false, err
		}
		if count > 0 {
			return false, nil
		}
		pct, err := profit.VehiclePercentage(ctx, e.DB, d.VehicleType)
		if err != nil {
			return false, err
		}
		required := deliveryFee * pct / 100
		return d.WalletBalance >= required, nil
	}

	count, err := e.assignmentCount(ctx, d.ID, false)
	if err != nil {
		return false, err
	}
	return count < e.Cfg.MaxScheduledOrders, nil
}

func (e *Engine) assignmentCount(ctx context.Context, driverID int64, immediate bool) (int64, error) {
	var count int64
	err := e.DB.QueryRow(ctx, `
		select
			(select count(*) from orders where driver_id = $1 and status = 'shipping' and is_immediate = $2) +
			(select count(*) from custom_orders where driver_id = $1 and status = 'shipping' and is_immediate = $2)
	`, driverID, immediate).Scan(&count)
	return count, err
}

func (e *Engine) loadCandidateDrivers(ctx context.Context, now time.Time) ([]Driver, error) {
	rows, err := e.DB.Query(ctx, `
		select id, name, vehicle_type, current_lat, current_lng,
		       is_online, is_active, last_activity_at, wallet_balance
		from drivers
		where is_active = true
		  and is_online = true
		  and last_activity_at is not null
		  and last_activity_at >= $1
		  and current_lat is not null
		  and current_lng is not null
	`, now.Add(-e.Cfg.DriverActivityWindow))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drivers := make([]Driver, 0, 16)
	for rows.Next() {
		var d Driver
		var wallet pgtype.Numeric
		if err := rows.Scan(&d.ID, &d.Name, &d.VehicleType, &d.Lat, &d.Lng,
			&d.IsOnline, &d.IsActive, &d.LastActivityAt, &wallet); err != nil {
			return nil, err
		}
		d.WalletBalance = utils.NumericToFloat64(wallet)
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

// ValidateStoresDistance rejects carts whose stores are spread more than
// the configured cap apart, reporting the worst pair for user messaging.
func (e *Engine) ValidateStoresDistance(ctx context.Context, storeIDs []int64) (StoresDistanceResult, error) {
	if len(storeIDs) < 2 {
		return StoresDistanceResult{Valid: true}, nil
	}
	stores, err := e.loadStorePoints(ctx, storeIDs)
	if err != nil {
		return StoresDistanceResult{}, err
	}
	return validateSpread(stores, e.Cfg.StoresMaxSpreadKm), nil
}

// SortStoresByDistance produces the static nearest-from-start pickup route
// plus the tail leg to the delivery point.
func (e *Engine) SortStoresByDistance(ctx context.Context, storeIDs []int64, start, end geo.Point) (Route, error) {
	stores, err := e.loadStorePoints(ctx, storeIDs)
	if err != nil {
		return Route{}, err
	}
	return sortRoute(stores, start, end), nil
}

func (e *Engine) loadStorePoints(ctx context.Context, storeIDs []int64) ([]StorePoint, error) {
	rows, err := e.DB.Query(ctx, `
		select id, lat, lng from stores where id = any($1) and lat is not null and lng is not null
	`, storeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]StorePoint, 0, len(storeIDs))
	for rows.Next() {
		var sp StorePoint
		if err := rows.Scan(&sp.StoreID, &sp.Point.Lat, &sp.Point.Lng); err != nil {
			return nil, err
		}
		stores = append(stores, sp)
	}
	return stores, rows.Err()
}

// QuoteDeliveryFee prices a delivery leg: base plus per-km rate, clamped
// to the configured floor and ceiling.
func (e *Engine) QuoteDeliveryFee(distanceKm float64) (float64, *domain.Error) {
	if !geo.IsFinite(distanceKm) || distanceKm < 0 {
		return 0, domain.Validation("INVALID_DISTANCE", "Distance must be a non-negative number", nil)
	}
	fee := e.Cfg.DeliveryFeeBase + e.Cfg.DeliveryFeePerKm*distanceKm
	if fee < e.Cfg.DeliveryFeeMin {
		fee = e.Cfg.DeliveryFeeMin
	}
	if e.Cfg.DeliveryFeeMax > 0 && fee > e.Cfg.DeliveryFeeMax {
		fee = e.Cfg.DeliveryFeeMax
	}
	return utils.Round2(fee), nil
}

type AvailableOrder struct {
	Kind        string    `json:"kind"`
	ID          int64     `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	IsImmediate bool      `json:"isImmediate"`
	DeliveryFee float64   `json:"deliveryFee"`
	DistanceKm  float64   `json:"distanceKm"`
	RadiusKm    float64   `json:"radiusKm"`
}

// AvailableOrdersForDriver returns every pending, driverless, unexpired
// order (regular and custom) whose centroid falls inside the progressive
// radius measured from the driver's current position.
func (e *Engine) AvailableOrdersForDriver(ctx context.Context, driver Driver, now time.Time) ([]AvailableOrder, error) {
	if driver.Lat == nil || driver.Lng == nil {
		return nil, nil
	}
	position := geo.Point{Lat: *driver.Lat, Lng: *driver.Lng}

	out := make([]AvailableOrder, 0, 8)

	rows, err := e.DB.Query(ctx, `
		select id, created_at, is_immediate, delivery_fee
		from orders
		where status = 'pending' and driver_id is null
		  and (confirmation_expires_at is null or confirmation_expires_at > $1)
		order by created_at
	`, now)
	if err != nil {
		return nil, err
	}
	pending := make([]orderSnapshot, 0, 8)
	for rows.Next() {
		var snap orderSnapshot
		if err := rows.Scan(&snap.ID, &snap.CreatedAt, &snap.IsImmediate, &snap.DeliveryFee); err != nil {
			rows.Close()
			return nil, err
		}
		pending = append(pending, snap)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, snap := range pending {
		center, ok, err := e.OrderCentroid(ctx, snap.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		radius := CurrentRadiusKm(snap.CreatedAt, now)
		d := position.DistanceTo(center)
		if d > radius {
			continue
		}
		eligible, err := e.DriverEligibleForLoad(ctx, driver, snap.IsImmediate, snap.DeliveryFee)
		if err != nil {
			return nil, err
		}
		if !eligible {
			continue
		}
		out = append(out, AvailableOrder{
			Kind:        "order",
			ID:          snap.ID,
			CreatedAt:   snap.CreatedAt,
			IsImmediate: snap.IsImmediate,
			DeliveryFee: snap.DeliveryFee,
			DistanceKm:  utils.Round3(d),
			RadiusKm:    radius,
		})
	}

	customRows, err := e.DB.Query(ctx, `
		select id, created_at, is_immediate, delivery_fee
		from custom_orders
		where status = 'pending' and driver_id is null
		  and (confirmation_expires_at is null or confirmation_expires_at > $1)
		order by created_at
	`, now)
	if err != nil {
		return nil, err
	}
	pendingCustom := make([]orderSnapshot, 0, 8)
	for customRows.Next() {
		var snap orderSnapshot
		if err := customRows.Scan(&snap.ID, &snap.CreatedAt, &snap.IsImmediate, &snap.DeliveryFee); err != nil {
			customRows.Close()
			return nil, err
		}
		pendingCustom = append(pendingCustom, snap)
	}
	customRows.Close()
	if err := customRows.Err(); err != nil {
		return nil, err
	}

	for _, snap := range pendingCustom {
		center, ok, err := e.CustomOrderCentroid(ctx, snap.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		radius := CurrentRadiusKm(snap.CreatedAt, now)
		d := position.DistanceTo(center)
		if d > radius {
			continue
		}
		eligible, err := e.DriverEligibleForLoad(ctx, driver, snap.IsImmediate, snap.DeliveryFee)
		if err != nil {
			return nil, err
		}
		if !eligible {
			continue
		}
		out = append(out, AvailableOrder{
			Kind:        "custom_order",
			ID:          snap.ID,
			CreatedAt:   snap.CreatedAt,
			IsImmediate: snap.IsImmediate,
			DeliveryFee: snap.DeliveryFee,
			DistanceKm:  utils.Round3(d),
			RadiusKm:    radius,
		})
	}

	return out, nil
}
