package profit

import (
	"context"
	"strconv"
	"strings"

	"mandoob-dispatch-services/internal/domain"
	"mandoob-dispatch-services/internal/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TagBike       = "bike_profit_percentage"
	TagMotorbike  = "motorbike_profit_percentage"
	TagStoreOrder = "order_profit_percentage"

	SourceDriver = "driver"
	SourceStore  = "store"
)

// Engine computes the platform's cut after delivery and keeps the
// append-only profit ledger. Ledger rows are only ever inserted.
type Engine struct {
	DB             *pgxpool.Pool
	PlatformUserID int64
}

func New(db *pgxpool.Pool, platformUserID int64) *Engine {
	return &Engine{DB: db, PlatformUserID: platformUserID}
}

// NormalizeVehicleTag folds vehicle type spellings (including locale
// variants) down to the two canonical profit-percentage tags.
func NormalizeVehicleTag(vehicleType string) string {
	switch strings.ToLower(strings.TrimSpace(vehicleType)) {
	case "motorbike", "motorcycle", "moto", "scooter", "دراجة نارية":
		return TagMotorbike
	case "bike", "bicycle", "cycle", "دراجة هوائية", "دراجة":
		return TagBike
	default:
		return TagBike
	}
}

// DeliveryProfit is the platform share of a delivery fee.
func DeliveryProfit(deliveryFee, percentage float64) float64 {
	return deliveryFee * percentage / 100
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VehiclePercentage reads the profit percentage for a driver's vehicle
// type from settings.
func VehiclePercentage(ctx context.Context, q querier, vehicleType string) (float64, error) {
	return settingPercentage(ctx, q, NormalizeVehicleTag(vehicleType))
}

func settingPercentage(ctx context.Context, q querier, key string) (float64, error) {
	var raw string
	err := q.QueryRow(ctx, `select value from settings where key = $1`, key).Scan(&raw)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	pct, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, nil
	}
	return pct, nil
}

// ProcessDriverDeliveryProfit debits the driver's wallet with the
// platform share of the delivery fee, credits the platform account, and
// appends a ledger row — all in one transaction. A zero or negative
// computed share is a no-op, not an error.
func (e *Engine) ProcessDriverDeliveryProfit(ctx context.Context, driverID int64, orderType string, orderID int64, deliveryFee float64) (float64, *domain.Error) {
	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return 0, domain.System("TX_BEGIN_FAILED", "Could not start profit transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var vehicleType string
	err = tx.QueryRow(ctx, `select vehicle_type from drivers where id = $1 for update`, driverID).Scan(&vehicleType)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, domain.NotFound("DRIVER_NOT_FOUND", "Driver not found")
		}
		return 0, domain.System("PROFIT_FAILED", "Could not load driver")
	}

	pct, err := settingPercentage(ctx, tx, NormalizeVehicleTag(vehicleType))
	if err != nil {
		return 0, domain.System("PROFIT_FAILED", "Could not load profit percentage")
	}

	amount := utils.Round2(DeliveryProfit(deliveryFee, pct))
	if amount <= 0 {
		return 0, nil
	}

	if _, err := tx.Exec(ctx, `
		update drivers set wallet_balance = wallet_balance - $1 where id = $2
	`, amount, driverID); err != nil {
		return 0, domain.System("PROFIT_FAILED", "Could not debit driver wallet")
	}

	if e.PlatformUserID != 0 {
		if _, err := tx.Exec(ctx, `
			update users set wallet_balance = wallet_balance + $1 where id = $2
		`, amount, e.PlatformUserID); err != nil {
			return 0, domain.System("PROFIT_FAILED", "Could not credit platform wallet")
		}
	}

	if _, err := tx.Exec(ctx, `
		insert into admin_profits (source_type, source_id, order_type, order_id, amount, description)
		values ($1, $2, $3, $4, $5, $6)
	`, SourceDriver, driverID, orderType, orderID, amount, "delivery fee share"); err != nil {
		return 0, domain.System("PROFIT_FAILED", "Could not record profit ledger row")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, domain.System("TX_COMMIT_FAILED", "Could not commit profit transaction")
	}
	return amount, nil
}

// ProcessStoreOrderProfit records the platform share of a store's order
// subtotal in the ledger. The store wallet is settled elsewhere in the
// flow, so no balance moves here.
func (e *Engine) ProcessStoreOrderProfit(ctx context.Context, storeID, orderID int64, storeSubtotal float64) (float64, *domain.Error) {
	pct, err := settingPercentage(ctx, e.DB, TagStoreOrder)
	if err != nil {
		return 0, domain.System("PROFIT_FAILED", "Could not load profit percentage")
	}

	amount := utils.Round2(DeliveryProfit(storeSubtotal, pct))
	if amount <= 0 {
		return 0, nil
	}

	if _, err := e.DB.Exec(ctx, `
		insert into admin_profits (source_type, source_id, order_type, order_id, amount, description)
		values ($1, $2, $3, $4, $5, $6)
	`, SourceStore, storeID, "order", orderID, amount, "order subtotal share"); err != nil {
		return 0, domain.System("PROFIT_FAILED", "Could not record profit ledger row")
	}
	return amount, nil
}

type FinancialStatistics struct {
	DriverProfitTotal    float64 `json:"driverProfitTotal"`
	StoreProfitTotal     float64 `json:"storeProfitTotal"`
	DeliveredOrderTotal  float64 `json:"deliveredOrderTotal"`
	DeliveredOrderCount  int64   `json:"deliveredOrderCount"`
	DeliveredCustomCount int64   `json:"deliveredCustomOrderCount"`
}

// Statistics aggregates the ledger by source plus delivered-order totals.
// Pure read, no side effects.
func (e *Engine) Statistics(ctx context.Context) (FinancialStatistics, *domain.Error) {
	var stats FinancialStatistics

	err := e.DB.QueryRow(ctx, `
		select
			coalesce(sum(amount) filter (where source_type = $1), 0),
			coalesce(sum(amount) filter (where source_type = $2), 0)
		from admin_profits
	`, SourceDriver, SourceStore).Scan(&stats.DriverProfitTotal, &stats.StoreProfitTotal)
	if err != nil {
		return stats, domain.System("STATS_FAILED", "Could not aggregate profit ledger")
	}

	err = e.DB.QueryRow(ctx, `
		select coalesce(sum(total), 0), count(*) from orders where status = 'delivered'
	`).Scan(&stats.DeliveredOrderTotal, &stats.DeliveredOrderCount)
	if err != nil {
		return stats, domain.System("STATS_FAILED", "Could not aggregate delivered orders")
	}

	err = e.DB.QueryRow(ctx, `
		select count(*) from custom_orders where status = 'delivered'
	`).Scan(&stats.DeliveredCustomCount)
	if err != nil {
		return stats, domain.System("STATS_FAILED", "Could not aggregate delivered custom orders")
	}

	return stats, nil
}
