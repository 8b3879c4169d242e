package assignment

import (
	"context"
	"time"

	"mandoob-dispatch-services/internal/domain"
	"mandoob-dispatch-services/internal/geofence"
	"mandoob-dispatch-services/internal/lifecycle"
	"mandoob-dispatch-services/internal/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Coordinator guarantees at most one driver is ever assigned to an
// order. Acceptance is a single conditional update: a read-then-write
// check in two steps would reintroduce the double-assignment race, since
// concurrent requests may land on different server processes.
type Coordinator struct {
	DB       *pgxpool.Pool
	Geofence *geofence.Engine
	Orders   *lifecycle.Manager
}

func New(db *pgxpool.Pool, gf *geofence.Engine, orders *lifecycle.Manager) *Coordinator {
	return &Coordinator{DB: db, Geofence: gf, Orders: orders}
}

// AcceptOrder claims a pending order for a driver. First driver wins;
// everyone else gets a conflict, not a generic failure.
func (c *Coordinator) AcceptOrder(ctx context.Context, kind lifecycle.Kind, orderID, driverID int64, now time.Time) (lifecycle.Snapshot, *domain.Error) {
	driver, derr := c.loadDriver(ctx, driverID)
	if derr != nil {
		return lifecycle.Snapshot{}, derr
	}
	if !driver.IsActive {
		return lifecycle.Snapshot{}, domain.Validation("DRIVER_INACTIVE", "Driver account is not active", nil)
	}

	snap, derr := c.Orders.Load(ctx, kind, orderID)
	if derr != nil {
		return lifecycle.Snapshot{}, derr
	}
	if failure := classifyUnavailable(snap, now); failure != nil {
		return lifecycle.Snapshot{}, failure
	}

	fee, immediate, derr := c.orderLoad(ctx, kind, orderID)
	if derr != nil {
		return lifecycle.Snapshot{}, derr
	}
	eligible, err := c.Geofence.DriverEligibleForLoad(ctx, driver, immediate, fee)
	if err != nil {
		return lifecycle.Snapshot{}, domain.System("ELIGIBILITY_CHECK_FAILED", "Could not check driver eligibility")
	}
	if !eligible {
		return lifecycle.Snapshot{}, domain.Validation("DRIVER_NOT_ELIGIBLE", "Driver is not eligible for this order", nil)
	}

	// The compare-and-swap: availability is re-verified in the WHERE
	// clause, so of N concurrent accepts exactly one affects a row.
	tag, err := c.DB.Exec(ctx, `
		update `+kind.Table()+`
		set driver_id = $1, driver_assigned_at = $2, status = $3, updated_at = now()
		where id = $4 and driver_id is null and status = $5
	`, driverID, now, lifecycle.StatusShipping, orderID, lifecycle.StatusPending)
	if err != nil {
		return lifecycle.Snapshot{}, domain.System("ACCEPT_FAILED", "Could not accept order")
	}
	if tag.RowsAffected() == 0 {
		current, derr := c.Orders.Load(ctx, kind, orderID)
		if derr != nil {
			return lifecycle.Snapshot{}, derr
		}
		if failure := classifyUnavailable(current, now); failure != nil {
			return lifecycle.Snapshot{}, failure
		}
		return lifecycle.Snapshot{}, domain.Conflict("ORDER_ALREADY_TAKEN", "Order was already accepted by another driver", nil)
	}

	return c.Orders.Load(ctx, kind, orderID)
}

// classifyUnavailable maps an unclaimable snapshot to the error the
// caller should see. A lost race surfaces as a conflict so clients
// refresh instead of resubmitting.
func classifyUnavailable(snap lifecycle.Snapshot, now time.Time) *domain.Error {
	if snap.IsAvailableForDriver(now) {
		return nil
	}
	if snap.HasDriver() {
		return domain.Conflict("ORDER_ALREADY_TAKEN", "Order was already accepted by another driver", nil)
	}
	if snap.Status != lifecycle.StatusPending {
		return lifecycle.TransitionError(snap.Status, lifecycle.StatusShipping)
	}
	return domain.Validation("CONFIRMATION_WINDOW_EXPIRED", "The confirmation window for this order has expired", nil)
}

func (c *Coordinator) loadDriver(ctx context.Context, driverID int64) (geofence.Driver, *domain.Error) {
	var d geofence.Driver
	var wallet pgtype.Numeric
	err := c.DB.QueryRow(ctx, `
		select id, name, vehicle_type, current_lat, current_lng,
		       is_online, is_active, last_activity_at, wallet_balance
		from drivers where id = $1
	`, driverID).Scan(&d.ID, &d.Name, &d.VehicleType, &d.Lat, &d.Lng,
		&d.IsOnline, &d.IsActive, &d.LastActivityAt, &wallet)
	if err != nil {
		if err == pgx.ErrNoRows {
			return d, domain.NotFound("DRIVER_NOT_FOUND", "Driver not found")
		}
		return d, domain.System("DRIVER_LOAD_FAILED", "Could not load driver")
	}
	d.WalletBalance = utils.NumericToFloat64(wallet)
	return d, nil
}

func (c *Coordinator) orderLoad(ctx context.Context, kind lifecycle.Kind, orderID int64) (fee float64, immediate bool, derr *domain.Error) {
	err := c.DB.QueryRow(ctx, `
		select delivery_fee, is_immediate from `+kind.Table()+` where id = $1
	`, orderID).Scan(&fee, &immediate)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, domain.NotFound("ORDER_NOT_FOUND", "Order not found")
		}
		return 0, false, domain.System("ORDER_LOAD_FAILED", "Could not load order")
	}
	return fee, immediate, nil
}
