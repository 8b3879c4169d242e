package lifecycle

import (
	"context"
	"strings"
	"time"

	"mandoob-dispatch-services/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Manager applies state-machine transitions as guarded single-statement
// updates: the legality check read earlier is always re-verified in the
// WHERE clause at write time.
type Manager struct {
	DB                 *pgxpool.Pool
	ConfirmationWindow time.Duration
}

func NewManager(db *pgxpool.Pool, confirmationWindow time.Duration) *Manager {
	return &Manager{DB: db, ConfirmationWindow: confirmationWindow}
}

func (m *Manager) Load(ctx context.Context, kind Kind, id int64) (Snapshot, *domain.Error) {
	snap := Snapshot{Kind: kind}
	err := m.DB.QueryRow(ctx, `
		select id, status, driver_id, is_immediate, driver_assigned_at, confirmation_expires_at, cancellation_reason
		from `+kind.Table()+` where id = $1
	`, id).Scan(&snap.ID, &snap.Status, &snap.DriverID, &snap.IsImmediate,
		&snap.DriverAssignedAt, &snap.ConfirmationExpiresAt, &snap.CancellationReason)
	if err != nil {
		if err == pgx.ErrNoRows {
			return snap, domain.NotFound("ORDER_NOT_FOUND", "Order not found")
		}
		return snap, domain.System("ORDER_LOAD_FAILED", "Could not load order")
	}
	return snap, nil
}

// MarkDelivered moves shipping -> delivered for the assigned driver.
func (m *Manager) MarkDelivered(ctx context.Context, kind Kind, id, driverID int64) (Snapshot, *domain.Error) {
	tag, err := m.DB.Exec(ctx, `
		update `+kind.Table()+`
		set status = $1, updated_at = now()
		where id = $2 and driver_id = $3 and status = $4
	`, StatusDelivered, id, driverID, StatusShipping)
	if err != nil {
		return Snapshot{}, domain.System("ORDER_UPDATE_FAILED", "Could not update order")
	}
	if tag.RowsAffected() == 0 {
		return Snapshot{}, m.explainFailure(ctx, kind, id, StatusDelivered)
	}
	return m.Load(ctx, kind, id)
}

// CancelByUser: legal only from pending. Reason is optional free text.
func (m *Manager) CancelByUser(ctx context.Context, kind Kind, id, userID int64, reason string) (Snapshot, *domain.Error) {
	tag, err := m.DB.Exec(ctx, `
		update `+kind.Table()+`
		set status = $1, cancellation_reason = nullif(trim($2), ''), updated_at = now()
		where id = $3 and user_id = $4 and status = $5
	`, StatusCancelled, reason, id, userID, StatusPending)
	if err != nil {
		return Snapshot{}, domain.System("ORDER_UPDATE_FAILED", "Could not cancel order")
	}
	if tag.RowsAffected() == 0 {
		return Snapshot{}, m.explainFailure(ctx, kind, id, StatusCancelled)
	}
	return m.Load(ctx, kind, id)
}

// CancelDeliveryByDriver lets the assigned driver abandon a shipping
// custom order. The reason is mandatory, and immediate deliveries may
// never be cancelled by the driver — only scheduled ones.
func (m *Manager) CancelDeliveryByDriver(ctx context.Context, kind Kind, id, driverID int64, reason string) (Snapshot, *domain.Error) {
	if kind != KindCustom {
		return Snapshot{}, domain.Validation("DRIVER_CANCEL_NOT_ALLOWED", "Drivers can only cancel custom order deliveries", nil)
	}
	if strings.TrimSpace(reason) == "" {
		return Snapshot{}, domain.Validation("CANCELLATION_REASON_REQUIRED", "A cancellation reason is required", nil)
	}

	tag, err := m.DB.Exec(ctx, `
		update `+kind.Table()+`
		set status = $1, cancellation_reason = trim($2), updated_at = now()
		where id = $3 and driver_id = $4 and status = $5 and is_immediate = false
	`, StatusCancelled, reason, id, driverID, StatusShipping)
	if err != nil {
		return Snapshot{}, domain.System("ORDER_UPDATE_FAILED", "Could not cancel delivery")
	}
	if tag.RowsAffected() == 0 {
		snap, derr := m.Load(ctx, kind, id)
		if derr != nil {
			return Snapshot{}, derr
		}
		if snap.IsImmediate {
			return Snapshot{}, domain.Validation("IMMEDIATE_CANCEL_FORBIDDEN", "Immediate deliveries cannot be cancelled by the driver", nil)
		}
		if snap.DriverID == nil || *snap.DriverID != driverID {
			return Snapshot{}, domain.Validation("NOT_ASSIGNED_DRIVER", "Order is not assigned to this driver", nil)
		}
		return Snapshot{}, TransitionError(snap.Status, StatusCancelled)
	}
	return m.Load(ctx, kind, id)
}

// AdminCancel: any non-terminal state may be cancelled by an admin.
func (m *Manager) AdminCancel(ctx context.Context, kind Kind, id int64, reason string) (Snapshot, *domain.Error) {
	tag, err := m.DB.Exec(ctx, `
		update `+kind.Table()+`
		set status = $1, cancellation_reason = nullif(trim($2), ''), updated_at = now()
		where id = $3 and status not in ($4, $5)
	`, StatusCancelled, reason, id, StatusDelivered, StatusCancelled)
	if err != nil {
		return Snapshot{}, domain.System("ORDER_UPDATE_FAILED", "Could not cancel order")
	}
	if tag.RowsAffected() == 0 {
		return Snapshot{}, m.explainFailure(ctx, kind, id, StatusCancelled)
	}
	return m.Load(ctx, kind, id)
}

// RetryDelivery reopens a cancelled order: back to pending, driver and
// reason cleared, fresh confirmation window from now.
func (m *Manager) RetryDelivery(ctx context.Context, kind Kind, id int64, now time.Time) (Snapshot, *domain.Error) {
	tag, err := m.DB.Exec(ctx, `
		update `+kind.Table()+`
		set status = $1,
		    driver_id = null,
		    driver_assigned_at = null,
		    cancellation_reason = null,
		    confirmation_expires_at = $2,
		    updated_at = now()
		where id = $3 and status = $4
	`, StatusPending, now.Add(m.ConfirmationWindow), id, StatusCancelled)
	if err != nil {
		return Snapshot{}, domain.System("ORDER_UPDATE_FAILED", "Could not retry delivery")
	}
	if tag.RowsAffected() == 0 {
		return Snapshot{}, m.explainFailure(ctx, kind, id, StatusPending)
	}
	return m.Load(ctx, kind, id)
}

// ResendToDrivers extends the confirmation window without changing
// status. Legal only while pending, driverless, and already expired.
func (m *Manager) ResendToDrivers(ctx context.Context, kind Kind, id int64, now time.Time) (Snapshot, *domain.Error) {
	tag, err := m.DB.Exec(ctx, `
		update `+kind.Table()+`
		set confirmation_expires_at = $1, updated_at = now()
		where id = $2 and status = $3 and driver_id is null and confirmation_expires_at < $4
	`, now.Add(m.ConfirmationWindow), id, StatusPending, now)
	if err != nil {
		return Snapshot{}, domain.System("ORDER_UPDATE_FAILED", "Could not resend order")
	}
	if tag.RowsAffected() == 0 {
		snap, derr := m.Load(ctx, kind, id)
		if derr != nil {
			return Snapshot{}, derr
		}
		return Snapshot{}, domain.Validation("RESEND_NOT_ALLOWED",
			"Order cannot be resent to drivers",
			map[string]any{
				"status":    snap.Status,
				"hasDriver": snap.HasDriver(),
				"expired":   snap.IsConfirmationExpired(now),
			})
	}
	return m.Load(ctx, kind, id)
}

// SweepExpired re-extends the window of every pending, driverless order
// whose window lapsed. Run by the background sweeper; failures are
// logged by the caller, never raised to a request.
func (m *Manager) SweepExpired(ctx context.Context, kind Kind, now time.Time) ([]int64, error) {
	rows, err := m.DB.Query(ctx, `
		update `+kind.Table()+`
		set confirmation_expires_at = $1, updated_at = now()
		where status = $2 and driver_id is null and confirmation_expires_at < $3
		returning id
	`, now.Add(m.ConfirmationWindow), StatusPending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// explainFailure turns a zero-row guarded update into the precise domain
// error: missing order or an illegal transition naming both states.
func (m *Manager) explainFailure(ctx context.Context, kind Kind, id int64, requested Status) *domain.Error {
	snap, derr := m.Load(ctx, kind, id)
	if derr != nil {
		return derr
	}
	return TransitionError(snap.Status, requested)
}
