package lifecycle

import (
	"time"

	"mandoob-dispatch-services/internal/domain"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusShipping  Status = "shipping"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Kind selects which order table a transition applies to. Regular and
// custom orders share the same four-state machine.
type Kind string

const (
	KindOrder  Kind = "order"
	KindCustom Kind = "custom_order"
)

func (k Kind) Table() string {
	if k == KindCustom {
		return "custom_orders"
	}
	return "orders"
}

func ParseKind(value string) (Kind, bool) {
	switch value {
	case string(KindOrder), "":
		return KindOrder, true
	case string(KindCustom), "custom":
		return KindCustom, true
	default:
		return "", false
	}
}

// transitions lists every legal edge. delivered and cancelled are
// terminal except for the explicit retry edge cancelled -> pending.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusShipping:  true,
		StatusCancelled: true,
	},
	StatusShipping: {
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusCancelled: {
		StatusPending: true, // retry delivery
	},
}

func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

func TransitionError(from, to Status) *domain.Error {
	return domain.Validation("ILLEGAL_TRANSITION",
		"Order cannot move from "+string(from)+" to "+string(to),
		map[string]any{"currentStatus": from, "requestedStatus": to})
}

type Snapshot struct {
	ID                    int64
	Kind                  Kind
	Status                Status
	DriverID              *int64
	IsImmediate           bool
	DriverAssignedAt      *time.Time
	ConfirmationExpiresAt *time.Time
	CancellationReason    *string
}

func (s Snapshot) HasDriver() bool {
	return s.DriverID != nil
}

func (s Snapshot) IsConfirmationExpired(now time.Time) bool {
	if s.ConfirmationExpiresAt == nil {
		return false
	}
	return now.After(*s.ConfirmationExpiresAt)
}

// IsAvailableForDriver reports whether any driver may still claim the
// order: pending, unclaimed, confirmation window open.
func (s Snapshot) IsAvailableForDriver(now time.Time) bool {
	return s.Status == StatusPending && !s.HasDriver() && !s.IsConfirmationExpired(now)
}

func (s Snapshot) CanUserCancel() bool {
	return s.Status == StatusPending
}

func (s Snapshot) CanAdminCancel() bool {
	return s.Status != StatusDelivered && s.Status != StatusCancelled
}

// CanResendToDrivers: still pending, nobody claimed it, and the previous
// confirmation window has already lapsed.
func (s Snapshot) CanResendToDrivers(now time.Time) bool {
	return s.Status == StatusPending && !s.HasDriver() && s.IsConfirmationExpired(now)
}

// CanDriverCancelDelivery holds for custom orders only: drivers may back
// out of a scheduled delivery they hold, never an immediate one.
func (s Snapshot) CanDriverCancelDelivery() bool {
	return s.Kind == KindCustom && s.Status == StatusShipping && s.HasDriver() && !s.IsImmediate
}
