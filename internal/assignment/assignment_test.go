package assignment

import (
	"testing"
	"time"

	"mandoob-dispatch-services/internal/domain"
	"mandoob-dispatch-services/internal/lifecycle"
)

func TestClassifyUnavailable(t *testing.T) {
	now := time.Now()
	open := now.Add(4 * time.Minute)
	lapsed := now.Add(-time.Minute)
	otherDriver := int64(99)

	cases := []struct {
		name     string
		snap     lifecycle.Snapshot
		wantCode string
		wantKind domain.Kind
		wantNil  bool
	}{
		{
			name:    "claimable order",
			snap:    lifecycle.Snapshot{Status: lifecycle.StatusPending, ConfirmationExpiresAt: &open},
			wantNil: true,
		},
		{
			name:     "lost the race",
			snap:     lifecycle.Snapshot{Status: lifecycle.StatusShipping, DriverID: &otherDriver},
			wantCode: "ORDER_ALREADY_TAKEN",
			wantKind: domain.KindConflict,
		},
		{
			name:     "already delivered",
			snap:     lifecycle.Snapshot{Status: lifecycle.StatusDelivered},
			wantCode: "ILLEGAL_TRANSITION",
			wantKind: domain.KindValidation,
		},
		{
			name:     "cancelled",
			snap:     lifecycle.Snapshot{Status: lifecycle.StatusCancelled},
			wantCode: "ILLEGAL_TRANSITION",
			wantKind: domain.KindValidation,
		},
		{
			name:     "window expired",
			snap:     lifecycle.Snapshot{Status: lifecycle.StatusPending, ConfirmationExpiresAt: &lapsed},
			wantCode: "CONFIRMATION_WINDOW_EXPIRED",
			wantKind: domain.KindValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyUnavailable(tc.snap, now)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected an error")
			}
			if got.Code != tc.wantCode {
				t.Fatalf("expected code %s, got %s", tc.wantCode, got.Code)
			}
			if got.Kind != tc.wantKind {
				t.Fatalf("expected kind %s, got %s", tc.wantKind, got.Kind)
			}
		})
	}
}
