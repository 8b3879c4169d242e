package queue

import (
	"strings"
	"testing"
)

func TestEventRecipients(t *testing.T) {
	driverID := int64(7)

	cases := []struct {
		name string
		evt  orderEvent
		want []eventRecipient
	}{
		{
			name: "created fans out to user and stores",
			evt:  orderEvent{Type: EventOrderCreated, UserID: 1, StoreIDs: []int64{10, 20}},
			want: []eventRecipient{{"user", 1}, {"store", 10}, {"store", 20}},
		},
		{
			name: "assigned reaches user and driver",
			evt:  orderEvent{Type: EventOrderAssigned, UserID: 1, DriverID: &driverID},
			want: []eventRecipient{{"user", 1}, {"driver", 7}},
		},
		{
			name: "cancelled without driver is user only",
			evt:  orderEvent{Type: EventOrderCancelled, UserID: 1},
			want: []eventRecipient{{"user", 1}},
		},
		{
			name: "stores only notified on creation",
			evt:  orderEvent{Type: EventOrderDelivered, UserID: 1, StoreIDs: []int64{10}, DriverID: &driverID},
			want: []eventRecipient{{"user", 1}, {"driver", 7}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := eventRecipients(tc.evt)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d recipients, want %d: %v", len(got), len(tc.want), got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("recipient %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestNotificationText(t *testing.T) {
	cases := []struct {
		name      string
		evt       orderEvent
		wantTitle string
		wantIn    string
	}{
		{"created", orderEvent{Type: EventOrderCreated, OrderID: 5}, "Order placed", "#5"},
		{"assigned", orderEvent{Type: EventOrderAssigned, OrderID: 5}, "Driver assigned", "on the way"},
		{"delivered", orderEvent{Type: EventOrderDelivered, OrderID: 5}, "Order delivered", "delivered"},
		{"cancelled with reason", orderEvent{Type: EventOrderCancelled, OrderID: 5, Reason: "out of stock"}, "Order cancelled", "Reason: out of stock"},
		{"delivery cancelled", orderEvent{Type: EventOrderDeliveryCancelled, OrderID: 5}, "Delivery cancelled", "available for other drivers"},
		{"resent", orderEvent{Type: EventOrderResent, OrderID: 5}, "Order resent", "again"},
		{"unknown type is silent", orderEvent{Type: "order.noop", OrderID: 5}, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			title, message := notificationText(tc.evt)
			if title != tc.wantTitle {
				t.Fatalf("title = %q, want %q", title, tc.wantTitle)
			}
			if tc.wantIn != "" && !strings.Contains(message, tc.wantIn) {
				t.Errorf("message %q does not contain %q", message, tc.wantIn)
			}
		})
	}
}
