package coupon

import (
	"math"
	"testing"

	"mandoob-dispatch-services/internal/utils"
)

func TestLineDiscountPercentage(t *testing.T) {
	cases := []struct {
		name      string
		amount    float64
		unitPrice float64
		quantity  int32
		want      float64
	}{
		{"ten percent on two units", 10, 100.00, 2, 20.00},
		{"full discount", 100, 50, 1, 50},
		{"fractional result", 12.5, 9.99, 3, 3.74625},
		{"zero quantity", 10, 100, 0, 0},
		{"zero amount", 0, 100, 2, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := LineDiscount(TypePercentage, tc.amount, tc.unitPrice, tc.quantity)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestLineDiscountFixedNeverExceedsSubtotal(t *testing.T) {
	cases := []struct {
		name      string
		amount    float64
		unitPrice float64
		quantity  int32
		want      float64
	}{
		{"below subtotal", 15, 100, 2, 15},
		{"capped at subtotal", 500, 100, 2, 200},
		{"exactly subtotal", 200, 100, 2, 200},
		{"cheap single item", 50, 3.5, 1, 3.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := LineDiscount(TypeFixed, tc.amount, tc.unitPrice, tc.quantity)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			subtotal := tc.unitPrice * float64(tc.quantity)
			if got > subtotal {
				t.Fatalf("fixed discount %v exceeds line subtotal %v", got, subtotal)
			}
		})
	}
}

func TestLineDiscountRoundingAtPersistence(t *testing.T) {
	// 10% of 100.00 x 2 must come out exactly 20.00 after the single
	// round at persistence time.
	raw := LineDiscount(TypePercentage, 10, 100.00, 2)
	if utils.Round2(raw) != 20.00 {
		t.Fatalf("expected 20.00, got %v", utils.Round2(raw))
	}
	if utils.Round2(100.00*2-raw) != 180.00 {
		t.Fatalf("expected line total 180.00, got %v", utils.Round2(100.00*2-raw))
	}
}

func TestAllocate(t *testing.T) {
	scoped := &Coupon{Type: TypePercentage, Amount: 10, ProductScope: []int64{1, 2}}
	lines := []LineInput{
		{ProductID: 1, UnitPrice: 100, Quantity: 2},
		{ProductID: 3, UnitPrice: 50, Quantity: 1},
		{ProductID: 2, UnitPrice: 10, Quantity: 5},
	}

	discounts, derr := scoped.Allocate(lines)
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if discounts[0] != 20 || discounts[1] != 0 || discounts[2] != 5 {
		t.Fatalf("unexpected allocation: %v", discounts)
	}

	unscoped := &Coupon{Type: TypeFixed, Amount: 5}
	discounts, derr = unscoped.Allocate(lines)
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	for i, d := range discounts {
		if d <= 0 {
			t.Fatalf("line %d: unscoped coupon should discount every line, got %v", i, d)
		}
	}
}

func TestAllocateNoEligibleLines(t *testing.T) {
	c := &Coupon{Type: TypePercentage, Amount: 10, ProductScope: []int64{42}}
	_, derr := c.Allocate([]LineInput{{ProductID: 1, UnitPrice: 10, Quantity: 1}})
	if derr == nil {
		t.Fatal("expected an error for a coupon with zero eligible lines")
	}
	if derr.Code != ErrCouponNotApplicableItems {
		t.Fatalf("expected %s, got %s", ErrCouponNotApplicableItems, derr.Code)
	}
}

func TestParseType(t *testing.T) {
	if _, ok := ParseType("percentage"); !ok {
		t.Fatal("percentage should parse")
	}
	if _, ok := ParseType("fixed"); !ok {
		t.Fatal("fixed should parse")
	}
	if _, ok := ParseType("bogus"); ok {
		t.Fatal("bogus should not parse")
	}
}
