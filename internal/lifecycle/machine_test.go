package lifecycle

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusShipping, true},
		{StatusPending, StatusCancelled, true},
		{StatusShipping, StatusDelivered, true},
		{StatusShipping, StatusCancelled, true},
		{StatusCancelled, StatusPending, true}, // retry

		{StatusPending, StatusDelivered, false}, // cannot skip shipping
		{StatusShipping, StatusPending, false},
		{StatusDelivered, StatusPending, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusDelivered, StatusShipping, false},
		{StatusCancelled, StatusShipping, false},
		{StatusCancelled, StatusDelivered, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransitionError(t *testing.T) {
	err := TransitionError(StatusPending, StatusDelivered)
	if err.Code != "ILLEGAL_TRANSITION" {
		t.Fatalf("unexpected code %s", err.Code)
	}
	if err.Details["currentStatus"] != StatusPending || err.Details["requestedStatus"] != StatusDelivered {
		t.Fatalf("details must identify current and requested state: %+v", err.Details)
	}
}

func TestAvailabilityPredicates(t *testing.T) {
	now := time.Now()
	open := now.Add(3 * time.Minute)
	lapsed := now.Add(-time.Minute)
	driverID := int64(7)

	cases := []struct {
		name          string
		snap          Snapshot
		available     bool
		canResend     bool
		canUserCancel bool
	}{
		{
			name:          "fresh pending order",
			snap:          Snapshot{Status: StatusPending, ConfirmationExpiresAt: &open},
			available:     true,
			canResend:     false,
			canUserCancel: true,
		},
		{
			name:          "expired pending order",
			snap:          Snapshot{Status: StatusPending, ConfirmationExpiresAt: &lapsed},
			available:     false,
			canResend:     true,
			canUserCancel: true,
		},
		{
			name:          "claimed order",
			snap:          Snapshot{Status: StatusPending, DriverID: &driverID, ConfirmationExpiresAt: &open},
			available:     false,
			canResend:     false,
			canUserCancel: true,
		},
		{
			name:          "shipping order",
			snap:          Snapshot{Status: StatusShipping, DriverID: &driverID},
			available:     false,
			canResend:     false,
			canUserCancel: false,
		},
		{
			name:          "no window set",
			snap:          Snapshot{Status: StatusPending},
			available:     true,
			canResend:     false,
			canUserCancel: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.snap.IsAvailableForDriver(now); got != tc.available {
				t.Errorf("IsAvailableForDriver = %v, want %v", got, tc.available)
			}
			if got := tc.snap.CanResendToDrivers(now); got != tc.canResend {
				t.Errorf("CanResendToDrivers = %v, want %v", got, tc.canResend)
			}
			if got := tc.snap.CanUserCancel(); got != tc.canUserCancel {
				t.Errorf("CanUserCancel = %v, want %v", got, tc.canUserCancel)
			}
		})
	}
}

func TestCanAdminCancel(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusPending:   true,
		StatusShipping:  true,
		StatusDelivered: false,
		StatusCancelled: false,
	} {
		if got := (Snapshot{Status: status}).CanAdminCancel(); got != want {
			t.Errorf("CanAdminCancel(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestCanDriverCancelDelivery(t *testing.T) {
	driverID := int64(3)

	cases := []struct {
		name string
		snap Snapshot
		want bool
	}{
		{"scheduled custom shipping", Snapshot{Kind: KindCustom, Status: StatusShipping, DriverID: &driverID, IsImmediate: false}, true},
		{"immediate custom shipping", Snapshot{Kind: KindCustom, Status: StatusShipping, DriverID: &driverID, IsImmediate: true}, false},
		{"regular order shipping", Snapshot{Kind: KindOrder, Status: StatusShipping, DriverID: &driverID, IsImmediate: false}, false},
		{"custom pending", Snapshot{Kind: KindCustom, Status: StatusPending, DriverID: &driverID}, false},
		{"custom shipping without driver", Snapshot{Kind: KindCustom, Status: StatusShipping}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.snap.CanDriverCancelDelivery(); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	cases := []struct {
		input string
		want  Kind
		ok    bool
	}{
		{"", KindOrder, true},
		{"order", KindOrder, true},
		{"custom_order", KindCustom, true},
		{"custom", KindCustom, true},
		{"ride", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseKind(tc.input)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseKind(%q) = (%q, %v), want (%q, %v)", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestKindTable(t *testing.T) {
	if KindOrder.Table() != "orders" || KindCustom.Table() != "custom_orders" {
		t.Fatal("kind table mapping is wrong")
	}
}
